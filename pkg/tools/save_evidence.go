package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Evidence is one saved research fact. It mirrors the research stage's
// output shape so drained items can be folded into the evidence pack
// without translation.
type Evidence struct {
	Fact   string `json:"fact"`
	Source string `json:"source,omitempty"`
	Quote  string `json:"quote,omitempty"`
}

// EvidenceStore accumulates facts saved during a research pass. The stage
// drains it once the model finishes. Safe for concurrent use; the executor
// may run several save calls in parallel.
type EvidenceStore struct {
	mu    sync.Mutex
	items []Evidence
}

// NewEvidenceStore creates an empty store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{}
}

// Add appends one item.
func (s *EvidenceStore) Add(item Evidence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

// Drain returns all items and resets the store.
func (s *EvidenceStore) Drain() []Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	return out
}

// Len reports the number of pending items.
func (s *EvidenceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// SaveEvidenceTool records a confirmed fact into the evidence store.
type SaveEvidenceTool struct {
	store *EvidenceStore
}

// NewSaveEvidenceTool creates a save_evidence tool writing to store.
func NewSaveEvidenceTool(store *EvidenceStore) *SaveEvidenceTool {
	return &SaveEvidenceTool{store: store}
}

// Name returns the tool identifier.
func (s *SaveEvidenceTool) Name() string {
	return ToolSaveEvidence
}

// Definition returns the tool definition for model binding.
func (s *SaveEvidenceTool) Definition() Definition {
	return Definition{
		Name:        ToolSaveEvidence,
		Description: "Save one verified fact to the evidence pack. Call once per fact, as you confirm it.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"fact": {
					Type:        "string",
					Description: "The fact, stated plainly",
				},
				"source": {
					Type:        "string",
					Description: "URL or publication the fact came from",
				},
				"quote": {
					Type:        "string",
					Description: "Optional verbatim supporting quote",
				},
			},
			Required: []string{"fact"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (s *SaveEvidenceTool) PromptDocumentation() string {
	return `- **save_evidence** - Save one verified fact to the evidence pack
  - Parameters:
    - fact (string, required): the fact, stated plainly
    - source (string, optional): URL or publication
    - quote (string, optional): verbatim supporting quote
  - Call once per fact; saved facts survive into the final evidence summary`
}

// Exec stores the fact.
func (s *SaveEvidenceTool) Exec(_ context.Context, args map[string]any) (any, error) {
	fact, _ := args["fact"].(string)
	if strings.TrimSpace(fact) == "" {
		return nil, fmt.Errorf("fact parameter is required")
	}
	source, _ := args["source"].(string)
	quote, _ := args["quote"].(string)

	s.store.Add(Evidence{Fact: fact, Source: source, Quote: quote})
	return fmt.Sprintf("saved (%d items pending)", s.store.Len()), nil
}
