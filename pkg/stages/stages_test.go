package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentflow/pkg/compressor"
	"contentflow/pkg/config"
	"contentflow/pkg/gate"
	"contentflow/pkg/graph"
	"contentflow/pkg/llm"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
)

// testHarness builds stage deps around a scripted model client.
type testHarness struct {
	deps     Deps
	evidence *tools.EvidenceStore
	assets   *tools.AssetLog
	registry *tools.Registry
}

func newHarness(t *testing.T, client llm.Client, gen tools.ImageGenerator) *testHarness {
	t.Helper()

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	evidence := tools.NewEvidenceStore()
	assets := tools.NewAssetLog()

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewAskUserTool()))
	require.NoError(t, registry.Register(tools.NewSaveEvidenceTool(evidence)))
	require.NoError(t, registry.Register(tools.NewWebSearchTool(&tools.StaticProvider{
		Results: []tools.SearchResult{{Title: "hit", URL: "https://example.com", Snippet: "s"}},
	})))
	if gen != nil {
		require.NoError(t, registry.Register(tools.NewGenerateImageTool(gen, assets)))
	}

	execCfg := tools.DefaultExecutorConfig()
	execCfg.RetryDelay = 0

	return &testHarness{
		deps: Deps{
			Client:     client,
			Renderer:   renderer,
			Registry:   registry,
			Executor:   tools.NewExecutor(registry, execCfg),
			Compressor: compressor.New(client, renderer, compressor.Config{Threshold: 1000, RecentTail: 4}),
			Evidence:   evidence,
			Gate:       gate.New(&config.QualityCfg{Default: 0.6}),
		},
		evidence: evidence,
		assets:   assets,
		registry: registry,
	}
}

func briefedState() *state.State {
	st := state.New("autumn coffee launch", 3)
	st.Apply(state.Update{Brief: &state.CreativeBrief{
		Topic:    "autumn coffee launch",
		Audience: "commuters",
		Goal:     "drive preorders",
	}})
	return st
}

func TestBriefCompilerParsesBrief(t *testing.T) {
	client := llm.MockText(`{"topic": "autumn coffee launch", "audience": "commuters", "goal": "drive preorders",
		"constraints": ["a", "b", "c", "d", "e"], "keywords": ["k1","k2","k3","k4","k5","k6","k7"]}`)
	h := newHarness(t, client, nil)
	node := NewBriefCompiler(h.deps)

	res, err := node.Run(context.Background(), state.New("autumn coffee launch", 3))
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeContinue, res.Outcome)

	require.NotNil(t, res.Update.Brief)
	assert.Equal(t, "commuters", res.Update.Brief.Audience)
	// Oversized lists are truncated, not rejected.
	assert.Len(t, res.Update.Brief.Constraints, state.MaxBriefConstraints)
	assert.Len(t, res.Update.Brief.Keywords, state.MaxBriefKeywords)
}

func TestBriefCompilerEmptyTopicAsksOperator(t *testing.T) {
	h := newHarness(t, llm.MockText("unused"), nil)
	node := NewBriefCompiler(h.deps)

	res, err := node.Run(context.Background(), state.New("", 3))
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeSuspend, res.Outcome)
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, "brief.topic", res.Interrupt.Key)
}

func TestBriefCompilerMalformedAnswerFails(t *testing.T) {
	h := newHarness(t, llm.MockText("I would rather chat about briefs."), nil)
	node := NewBriefCompiler(h.deps)

	res, err := node.Run(context.Background(), state.New("topic", 3))
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeFail, res.Outcome)
	assert.Equal(t, "brief_parse_failed", res.FailureCode)
}

func TestResearchRunsToolLoop(t *testing.T) {
	client := llm.NewMockClient([]llm.CompletionResponse{
		{
			Content: "searching",
			ToolCalls: []tools.Call{{
				ID:     "t1",
				Name:   tools.ToolSaveEvidence,
				Params: map[string]any{"fact": "cold brew sales rose 30%", "source": "https://example.com"},
			}},
		},
		{Content: `{"items": [], "summary": "sales are climbing"}`},
	}, nil)

	h := newHarness(t, client, nil)
	node := NewResearch(h.deps)

	res, err := node.Run(context.Background(), briefedState())
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeContinue, res.Outcome)

	require.NotNil(t, res.Update.Evidence)
	require.Len(t, res.Update.Evidence.Items, 1)
	assert.Equal(t, "cold brew sales rose 30%", res.Update.Evidence.Items[0].Fact)
	assert.Equal(t, "sales are climbing", res.Update.Evidence.Summary)
	require.NotNil(t, res.Update.ResearchComplete)
	assert.True(t, *res.Update.ResearchComplete)

	// Conversation log contains the tool exchange.
	var sawToolMsg bool
	for _, m := range res.Update.Messages {
		if m.Role == llm.RoleTool {
			sawToolMsg = true
		}
	}
	assert.True(t, sawToolMsg)
}

func TestResearchDeduplicatesFacts(t *testing.T) {
	client := llm.MockText(`{"items": [{"fact": "same"}, {"fact": "same"}, {"fact": "other"}], "summary": "s"}`)
	h := newHarness(t, client, nil)
	node := NewResearch(h.deps)

	res, err := node.Run(context.Background(), briefedState())
	require.NoError(t, err)
	assert.Len(t, res.Update.Evidence.Items, 2)
}

func TestReferenceAnalyzerWithoutImageUsesNeutralStyle(t *testing.T) {
	h := newHarness(t, llm.MockText("unused"), nil)
	node := NewReferenceAnalyzer(h.deps)

	res, err := node.Run(context.Background(), briefedState())
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeContinue, res.Outcome)
	require.NotNil(t, res.Update.StyleAnalysis)
	assert.NotEmpty(t, res.Update.StyleAnalysis.StyleTokens)
}

func TestReferenceAnalyzerParsesStyle(t *testing.T) {
	client := llm.MockText(`{"style_name": "warm editorial flat", "palette": ["#aa6644"], "tone": "cozy", "style_tokens": ["warm flat illustration"]}`)
	h := newHarness(t, client, nil)
	node := NewReferenceAnalyzer(h.deps)

	st := briefedState()
	st.ReferenceImg = "ref.png"
	res, err := node.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "warm editorial flat", res.Update.StyleAnalysis.StyleName)
}

func TestLayoutPlannerNormalizesSequences(t *testing.T) {
	client := llm.MockText(`{"images": [
		{"image_seq": 0, "role": "cover", "visual_focus": "mug", "text_density": "light"},
		{"image_seq": 5, "role": "section", "visual_focus": "beans", "text_density": "none"}
	]}`)
	h := newHarness(t, client, nil)
	node := NewLayoutPlanner(h.deps)

	res, err := node.Run(context.Background(), briefedState())
	require.NoError(t, err)
	require.NotNil(t, res.Update.Layout)
	assert.Equal(t, 1, res.Update.Layout.Images[0].ImageSeq)
	assert.Equal(t, 2, res.Update.Layout.Images[1].ImageSeq)
}

func TestWriterInvalidatesPreviousReview(t *testing.T) {
	client := llm.MockText(`{"title": "Morning Ritual", "body": "Cold brew is up 30%.", "tags": ["coffee"]}`)
	h := newHarness(t, client, nil)
	node := NewWriter(h.deps)

	res, err := node.Run(context.Background(), briefedState())
	require.NoError(t, err)
	require.NotNil(t, res.Update.Article)
	assert.Equal(t, "Morning Ritual", res.Update.Article.Title)
	require.NotNil(t, res.Update.ReviewComplete)
	assert.False(t, *res.Update.ReviewComplete)
}

func TestImagePlannerBackfillsPrompts(t *testing.T) {
	client := llm.MockText(`{"plans": [{"sequence": 1, "role": "cover", "description": "steaming mug at dawn"}]}`)
	h := newHarness(t, client, nil)
	node := NewImagePlanner(h.deps)

	st := briefedState()
	st.Apply(state.Update{
		Layout:         &state.LayoutSpec{Images: []state.ImageLayout{{ImageSeq: 1, Role: "cover"}}},
		LayoutComplete: state.BoolPtr(true),
	})

	res, err := node.Run(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, res.Update.ImagePlans, 1)
	assert.Equal(t, "steaming mug at dawn", res.Update.ImagePlans[0].Prompt)
	require.NotNil(t, res.Update.ImagesComplete)
	assert.False(t, *res.Update.ImagesComplete)
}

type scriptedGenerator struct {
	failSeq int
}

func (s *scriptedGenerator) Generate(_ context.Context, _ string, seq int) (string, string, error) {
	if seq == s.failSeq {
		return "", "", assert.AnError
	}
	return "assets/img.png", "asset-x", nil
}

func TestImageGeneratorRunsAllPlans(t *testing.T) {
	h := newHarness(t, llm.MockText("unused"), &scriptedGenerator{})
	node := NewImageGenerator(h.deps, h.assets)

	st := briefedState()
	st.Apply(state.Update{
		ImagePlans: []state.ImagePlan{
			{Sequence: 1, Prompt: "a"},
			{Sequence: 2, Prompt: "b"},
		},
		PlanComplete: state.BoolPtr(true),
	})

	res, err := node.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeContinue, res.Outcome)
	assert.Len(t, res.Update.GeneratedImagePaths, 2)
	require.NotNil(t, res.Update.GeneratedImageCount)
	assert.Equal(t, 2, *res.Update.GeneratedImageCount)
	require.NotNil(t, res.Update.ImagesComplete)
	assert.True(t, *res.Update.ImagesComplete)
}

func TestImageGeneratorPartialFailure(t *testing.T) {
	h := newHarness(t, llm.MockText("unused"), &scriptedGenerator{failSeq: 2})
	node := NewImageGenerator(h.deps, h.assets)

	st := briefedState()
	st.Apply(state.Update{
		ImagePlans:   []state.ImagePlan{{Sequence: 1, Prompt: "a"}, {Sequence: 2, Prompt: "b"}},
		PlanComplete: state.BoolPtr(true),
	})

	res, err := node.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, graph.OutcomeFail, res.Outcome)
	assert.Equal(t, "image_generation_incomplete", res.FailureCode)
	// The image that did render is kept.
	assert.Len(t, res.Update.GeneratedImagePaths, 1)
}

func reviewedState() *state.State {
	st := briefedState()
	st.Apply(state.Update{
		Article:         &state.Article{Title: "T", Body: "b"},
		ContentComplete: state.BoolPtr(true),
	})
	return st
}

func TestReviewerApproves(t *testing.T) {
	client := llm.MockText(`{"approved": true, "scores": {
		"info_density": 0.8, "text_image_alignment": 0.8, "style_consistency": 0.8,
		"readability": 0.8, "platform_fit": 0.8}, "suggestions": ""}`)
	h := newHarness(t, client, nil)
	node := NewReviewer(h.deps)

	res, err := node.Run(context.Background(), reviewedState())
	require.NoError(t, err)
	require.NotNil(t, res.Update.ReviewComplete)
	assert.True(t, *res.Update.ReviewComplete)
	assert.Nil(t, res.Update.Decision)
}

func TestReviewerGateRetryTargetsFixingStage(t *testing.T) {
	client := llm.MockText(`{"approved": false, "scores": {
		"info_density": 0.4, "text_image_alignment": 0.8, "style_consistency": 0.8,
		"readability": 0.8, "platform_fit": 0.8}, "suggestions": "add harder numbers"}`)
	h := newHarness(t, client, nil)
	node := NewReviewer(h.deps)

	res, err := node.Run(context.Background(), reviewedState())
	require.NoError(t, err)
	require.NotNil(t, res.Update.ReviewComplete)
	assert.False(t, *res.Update.ReviewComplete)
	assert.Equal(t, 1, res.Update.IterationDelta)
	require.NotNil(t, res.Update.Decision)
	assert.Equal(t, state.StageResearch, res.Update.Decision.NextStage)
	assert.Contains(t, res.Update.Decision.Guidance, "add harder numbers")
}

func TestReviewerRejectionWithPassingScoresStillRevises(t *testing.T) {
	client := llm.MockText(`{"approved": false, "target_agent": "writer_agent", "scores": {
		"info_density": 0.9, "text_image_alignment": 0.9, "style_consistency": 0.9,
		"readability": 0.9, "platform_fit": 0.9}, "suggestions": "the thesis is wrong"}`)
	h := newHarness(t, client, nil)
	node := NewReviewer(h.deps)

	res, err := node.Run(context.Background(), reviewedState())
	require.NoError(t, err)
	require.NotNil(t, res.Update.ReviewComplete)
	assert.False(t, *res.Update.ReviewComplete)
	require.NotNil(t, res.Update.Decision)
	assert.Equal(t, state.StageWriter, res.Update.Decision.NextStage)
	assert.Contains(t, res.Update.Decision.Guidance, "the thesis is wrong")
}

func TestReviewerBudgetExhaustedShips(t *testing.T) {
	client := llm.MockText(`{"approved": false, "scores": {
		"info_density": 0.1, "text_image_alignment": 0.1, "style_consistency": 0.1,
		"readability": 0.1, "platform_fit": 0.1}, "suggestions": "start over"}`)
	h := newHarness(t, client, nil)
	node := NewReviewer(h.deps)

	st := reviewedState()
	st.Apply(state.Update{IterationDelta: 3})

	res, err := node.Run(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, res.Update.ReviewComplete)
	assert.True(t, *res.Update.ReviewComplete)
	assert.Nil(t, res.Update.Decision)
}

func TestRegisterAllCoversPipeline(t *testing.T) {
	h := newHarness(t, llm.MockText("unused"), &scriptedGenerator{})
	reg := graph.NewRegistry()

	require.NoError(t, RegisterAll(reg, h.deps, h.assets))
	assert.NoError(t, reg.Complete())
}
