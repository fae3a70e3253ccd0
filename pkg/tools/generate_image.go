package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ImageGenerator produces one image from a prompt and returns the stored
// asset's path and ID. Implementations live outside this package; the tool
// only needs the interface.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, sequence int) (path string, assetID string, err error)
}

// GeneratedAsset records one successful generation.
type GeneratedAsset struct {
	Sequence int    `json:"sequence"`
	Path     string `json:"path"`
	AssetID  string `json:"asset_id"`
}

// AssetLog accumulates generated assets during a stage run, the way the
// evidence store accumulates facts. The stage drains it afterwards. Safe
// for concurrent use.
type AssetLog struct {
	mu      sync.Mutex
	entries []GeneratedAsset
}

// NewAssetLog creates an empty log.
func NewAssetLog() *AssetLog {
	return &AssetLog{}
}

// Add records one generated asset.
func (l *AssetLog) Add(a GeneratedAsset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, a)
}

// Drain returns all entries and resets the log.
func (l *AssetLog) Drain() []GeneratedAsset {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	return out
}

// GenerateImageTool renders one planned image via the configured generator.
type GenerateImageTool struct {
	generator ImageGenerator
	log       *AssetLog
}

// NewGenerateImageTool creates a generate_image tool around the generator.
// Successful generations are recorded in log.
func NewGenerateImageTool(generator ImageGenerator, log *AssetLog) *GenerateImageTool {
	return &GenerateImageTool{generator: generator, log: log}
}

// Name returns the tool identifier.
func (g *GenerateImageTool) Name() string {
	return ToolGenerateImage
}

// Definition returns the tool definition for model binding.
func (g *GenerateImageTool) Definition() Definition {
	return Definition{
		Name:        ToolGenerateImage,
		Description: "Generate one image from a prompt. Call once per planned image, in sequence order.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"prompt": {
					Type:        "string",
					Description: "Full generation prompt including style tokens",
				},
				"sequence": {
					Type:        "integer",
					Description: "Sequence number from the image plan, starting at 1",
				},
			},
			Required: []string{"prompt", "sequence"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (g *GenerateImageTool) PromptDocumentation() string {
	return `- **generate_image** - Generate one image from a prompt
  - Parameters:
    - prompt (string, required): full generation prompt, style tokens included
    - sequence (integer, required): plan sequence number, starting at 1
  - Call once per planned image, in order; returns the stored asset path`
}

// Exec generates the image and reports where it was stored.
func (g *GenerateImageTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt parameter is required")
	}

	seq, ok := intArg(args["sequence"])
	if !ok || seq < 1 {
		return nil, fmt.Errorf("sequence parameter must be a positive integer")
	}

	path, assetID, err := g.generator.Generate(ctx, prompt, seq)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if g.log != nil {
		g.log.Add(GeneratedAsset{Sequence: seq, Path: path, AssetID: assetID})
	}
	return fmt.Sprintf("generated image %d: %s (asset %s)", seq, path, assetID), nil
}

// intArg accepts the numeric types JSON decoding and providers produce.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
