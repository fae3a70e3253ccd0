// Package imagegen renders planned images. The Gemini backend does real
// generation; the stub writes placeholder files for offline runs and tests.
// Both satisfy the generation interface the tool layer expects.
package imagegen

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"contentflow/pkg/assets"
	"contentflow/pkg/logx"
)

// GeminiGenerator renders images through the Gemini image API and stores
// them in the asset store under the run's thread.
type GeminiGenerator struct {
	client   *genai.Client
	store    *assets.Store
	threadID string
	model    string
	logger   *logx.Logger
}

// DefaultModel is the image model used when config names none.
const DefaultModel = "imagen-3.0-generate-002"

// NewGemini creates a Gemini-backed generator scoped to one thread.
func NewGemini(ctx context.Context, apiKey, model string, store *assets.Store, threadID string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("image generation requires an API key")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image client: %w", err)
	}

	return &GeminiGenerator{
		client:   client,
		store:    store,
		threadID: threadID,
		model:    model,
		logger:   logx.NewLogger("imagegen"),
	}, nil
}

// Generate renders one image and stores it, returning the stored path and
// asset ID.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, sequence int) (string, string, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return "", "", fmt.Errorf("image generation request failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", "", fmt.Errorf("image generation returned no images")
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	path, id, err := g.store.Put(g.threadID, fmt.Sprintf("image-%02d.png", sequence), data)
	if err != nil {
		return "", "", err
	}

	g.logger.Info("generated image %d (%d bytes) -> %s", sequence, len(data), path)
	return path, id, nil
}

// StubGenerator writes small placeholder files instead of calling a model.
// Used by the mock provider and in tests.
type StubGenerator struct {
	store    *assets.Store
	threadID string
}

// NewStub creates a stub generator scoped to one thread.
func NewStub(store *assets.Store, threadID string) *StubGenerator {
	return &StubGenerator{store: store, threadID: threadID}
}

// Generate stores a placeholder whose content records the prompt, so runs
// stay inspectable without an image backend.
func (s *StubGenerator) Generate(_ context.Context, prompt string, sequence int) (string, string, error) {
	placeholder := fmt.Sprintf("placeholder image %d\nprompt: %s\n", sequence, prompt)
	return s.store.Put(s.threadID, fmt.Sprintf("image-%02d.txt", sequence), []byte(placeholder))
}
