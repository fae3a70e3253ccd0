package tools

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a scriptable tool for executor tests.
type fakeTool struct {
	name     string
	required []string
	exec     func(ctx context.Context, args map[string]any) (any, error)
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() Definition {
	props := map[string]Property{}
	for _, r := range f.required {
		props[r] = Property{Type: "string"}
	}
	return Definition{
		Name:        f.name,
		Description: "test tool",
		InputSchema: InputSchema{Type: "object", Properties: props, Required: f.required},
	}
}

func (f *fakeTool) PromptDocumentation() string {
	return fmt.Sprintf("- **%s** - test tool", f.name)
}

func (f *fakeTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	return f.exec(ctx, args)
}

func newTestRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	tool := &fakeTool{name: "dup", exec: func(context.Context, map[string]any) (any, error) { return "ok", nil }}

	require.NoError(t, r.Register(tool))
	assert.Error(t, r.Register(tool))
}

func TestRegistryValidate(t *testing.T) {
	r := newTestRegistry(t, &fakeTool{
		name:     "needs_query",
		required: []string{"query"},
		exec:     func(context.Context, map[string]any) (any, error) { return "ok", nil },
	})

	assert.NoError(t, r.Validate("needs_query", map[string]any{"query": "x"}))
	assert.Error(t, r.Validate("needs_query", map[string]any{}))
	assert.Error(t, r.Validate("unknown", map[string]any{}))
}

func TestRegistryDefinitionsSkipsUnknown(t *testing.T) {
	r := newTestRegistry(t, &fakeTool{
		name: "known",
		exec: func(context.Context, map[string]any) (any, error) { return "ok", nil },
	})

	defs := r.Definitions([]string{"known", "never_registered"})
	require.Len(t, defs, 1)
	assert.Equal(t, "known", defs[0].Name)
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	slow := &fakeTool{name: "slow", exec: func(ctx context.Context, _ map[string]any) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "slow done", nil
	}}
	fast := &fakeTool{name: "fast", exec: func(context.Context, map[string]any) (any, error) {
		return "fast done", nil
	}}

	e := NewExecutor(newTestRegistry(t, slow, fast), DefaultExecutorConfig())

	results, intr, err := e.ExecuteBatch(context.Background(), []Call{
		{ID: "c1", Name: "slow"},
		{ID: "c2", Name: "fast"},
	})
	require.NoError(t, err)
	assert.Nil(t, intr)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "slow done", results[0].Content)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "fast done", results[1].Content)
}

func TestExecuteBatchFailureIsResultNotError(t *testing.T) {
	boom := &fakeTool{name: "boom", exec: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("exploded")
	}}
	ok := &fakeTool{name: "ok", exec: func(context.Context, map[string]any) (any, error) {
		return "fine", nil
	}}

	cfg := DefaultExecutorConfig()
	cfg.MaxRetries = 0
	e := NewExecutor(newTestRegistry(t, boom, ok), cfg)

	results, intr, err := e.ExecuteBatch(context.Background(), []Call{
		{ID: "c1", Name: "boom"},
		{ID: "c2", Name: "ok"},
	})
	require.NoError(t, err)
	assert.Nil(t, intr)
	assert.True(t, results[0].IsError())
	assert.Contains(t, results[0].Err, "exploded")
	assert.False(t, results[1].IsError())
}

func TestExecuteBatchRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	flaky := &fakeTool{name: "flaky", exec: func(context.Context, map[string]any) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}}

	cfg := DefaultExecutorConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	e := NewExecutor(newTestRegistry(t, flaky), cfg)

	results, _, err := e.ExecuteBatch(context.Background(), []Call{{ID: "c1", Name: "flaky"}})
	require.NoError(t, err)
	assert.Equal(t, "recovered", results[0].Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecuteBatchInvalidArgsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	strict := &fakeTool{
		name:     "strict",
		required: []string{"must"},
		exec: func(context.Context, map[string]any) (any, error) {
			attempts.Add(1)
			return "ok", nil
		},
	}

	e := NewExecutor(newTestRegistry(t, strict), DefaultExecutorConfig())

	results, _, err := e.ExecuteBatch(context.Background(), []Call{{ID: "c1", Name: "strict"}})
	require.NoError(t, err)
	assert.True(t, results[0].IsError())
	assert.Equal(t, int32(0), attempts.Load())
}

func TestExecuteBatchCallTimeout(t *testing.T) {
	hang := &fakeTool{name: "hang", exec: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	cfg := ExecutorConfig{CallTimeout: 10 * time.Millisecond, MaxRetries: 0}
	e := NewExecutor(newTestRegistry(t, hang), cfg)

	results, _, err := e.ExecuteBatch(context.Background(), []Call{{ID: "c1", Name: "hang"}})
	require.NoError(t, err)
	assert.True(t, results[0].IsError())
}

func TestExecuteBatchSurfacesInterrupt(t *testing.T) {
	e := NewExecutor(newTestRegistry(t, NewAskUserTool()), DefaultExecutorConfig())

	results, intr, err := e.ExecuteBatch(context.Background(), []Call{
		{ID: "c1", Name: ToolAskUser, Params: map[string]any{
			"question": "Which platform is this for?",
			"key":      "brief.platform",
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, intr)
	assert.Equal(t, "Which platform is this for?", intr.Question)
	assert.Equal(t, "brief.platform", intr.Key)
	assert.Contains(t, results[0].Content, "waiting for operator")
}

func TestSaveEvidenceTool(t *testing.T) {
	store := NewEvidenceStore()
	tool := NewSaveEvidenceTool(store)

	_, err := tool.Exec(context.Background(), map[string]any{
		"fact":   "cold brew sales rose 30% in 2025",
		"source": "https://example.com/report",
	})
	require.NoError(t, err)

	_, err = tool.Exec(context.Background(), map[string]any{"fact": ""})
	assert.Error(t, err)

	items := store.Drain()
	require.Len(t, items, 1)
	assert.Equal(t, "cold brew sales rose 30% in 2025", items[0].Fact)
	assert.Equal(t, 0, store.Len())
}

func TestWebSearchToolStaticProvider(t *testing.T) {
	tool := NewWebSearchTool(&StaticProvider{Results: []SearchResult{
		{Title: "Report", URL: "https://example.com", Snippet: "sales up"},
	}})

	out, err := tool.Exec(context.Background(), map[string]any{"query": "coffee sales"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "example.com")

	_, err = tool.Exec(context.Background(), map[string]any{"query": "  "})
	assert.Error(t, err)
}

type fakeGenerator struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, seq int) (string, string, error) {
	if f.fail {
		return "", "", errors.New("render failed")
	}
	f.calls.Add(1)
	return fmt.Sprintf("assets/img-%d.png", seq), fmt.Sprintf("asset-%d", seq), nil
}

func TestGenerateImageTool(t *testing.T) {
	gen := &fakeGenerator{}
	log := NewAssetLog()
	tool := NewGenerateImageTool(gen, log)

	out, err := tool.Exec(context.Background(), map[string]any{
		"prompt":   "steaming mug, warm editorial flat",
		"sequence": float64(1), // JSON numbers decode as float64
	})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "img-1.png")

	assets := log.Drain()
	require.Len(t, assets, 1)
	assert.Equal(t, "assets/img-1.png", assets[0].Path)
	assert.Equal(t, "asset-1", assets[0].AssetID)

	_, err = tool.Exec(context.Background(), map[string]any{"prompt": "x", "sequence": 0})
	assert.Error(t, err)

	tool = NewGenerateImageTool(&fakeGenerator{fail: true}, log)
	_, err = tool.Exec(context.Background(), map[string]any{"prompt": "x", "sequence": 2})
	assert.Error(t, err)
}

func TestDocumentationIncludesRegisteredTools(t *testing.T) {
	r := newTestRegistry(t, NewAskUserTool(), NewSaveEvidenceTool(NewEvidenceStore()))

	doc := r.Documentation([]string{ToolAskUser, ToolSaveEvidence})
	assert.Contains(t, doc, "ask_user")
	assert.Contains(t, doc, "save_evidence")
}
