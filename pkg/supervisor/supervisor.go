// Package supervisor implements the pipeline's coordinating stage: it reads
// the shared state, asks the model which stage should run next, and parses
// the model's answer into a routing decision.
package supervisor

import (
	"context"
	"fmt"
	"strings"

	"contentflow/pkg/llm"
	"contentflow/pkg/logx"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
)

// Options tunes the supervisor. The zero value is usable.
type Options struct {
	// Tools are management tool definitions bound to the decision call so
	// the model sees what the pipeline can do. The supervisor itself never
	// executes them; a tool-calling answer counts as no decision.
	Tools []tools.Definition
	// MaxGuidanceLen overrides the guidance truncation limit. Zero keeps
	// the default.
	MaxGuidanceLen int
}

// Supervisor decides the next stage. It never mutates the state it reads;
// the same state always yields the same prompt.
type Supervisor struct {
	client   llm.Client
	renderer *templates.Renderer
	opts     Options
	logger   *logx.Logger
}

// New creates a supervisor over the given model client.
func New(client llm.Client, renderer *templates.Renderer) *Supervisor {
	return NewWithOptions(client, renderer, Options{})
}

// NewWithOptions creates a supervisor with management tools and budgets.
func NewWithOptions(client llm.Client, renderer *templates.Renderer, opts Options) *Supervisor {
	return &Supervisor{
		client:   client,
		renderer: renderer,
		opts:     opts,
		logger:   logx.NewLogger("supervisor"),
	}
}

// Decide asks the model for a routing decision. A nil decision with a nil
// error means the model's answer was unusable; the router falls back to
// the default pipeline order.
func (s *Supervisor) Decide(ctx context.Context, st *state.State) (*state.Decision, error) {
	prompt, err := s.BuildPrompt(st)
	if err != nil {
		return nil, err
	}

	req := llm.NewCompletionRequest("", []llm.Message{llm.NewUserMessage(prompt)})
	req.Tools = s.opts.Tools

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("supervisor model call failed: %w", err)
	}
	if len(resp.ToolCalls) > 0 {
		s.logger.Warn("supervisor answered with tool calls instead of a decision, falling back to pipeline order")
		return nil, nil
	}

	decision := parseDecision(resp.Content, s.opts.MaxGuidanceLen)
	if decision == nil {
		s.logger.Warn("unparseable supervisor decision, falling back to pipeline order: %.120s", resp.Content)
		return nil, nil
	}

	s.logger.Info("decision: next=%s guidance=%.80s", decision.NextStage, decision.Guidance)
	return decision, nil
}

// BuildPrompt renders the supervisor prompt from the state. Exposed so
// tests can check that equal states produce equal prompts.
func (s *Supervisor) BuildPrompt(st *state.State) (string, error) {
	data := &templates.PromptData{
		Topic:            st.Topic,
		Summary:          st.Summary,
		IterationCount:   st.IterationCount,
		MaxIterations:    st.MaxIterations,
		CompletionReport: CompletionReport(st),
	}
	if st.Review != nil {
		data.ReviewFeedback = renderReview(st.Review)
	}

	prompt, err := s.renderer.Render(templates.SupervisorTemplate, data)
	if err != nil {
		return "", fmt.Errorf("failed to render supervisor prompt: %w", err)
	}
	return prompt, nil
}

// CompletionReport summarizes pipeline progress for the supervisor prompt.
func CompletionReport(st *state.State) string {
	var b strings.Builder
	line := func(name string, done bool, detail string) {
		mark := "pending"
		if done {
			mark = "done"
		}
		if detail != "" {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", name, mark, detail)
			return
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, mark)
	}

	line("brief", st.Brief != nil, "")
	detail := ""
	if st.Evidence != nil {
		detail = fmt.Sprintf("%d items", len(st.Evidence.Items))
	}
	line("research", st.ResearchComplete, detail)
	line("reference analysis", st.ReferenceAnalyzed, "")
	detail = ""
	if st.Layout != nil {
		detail = fmt.Sprintf("%d images planned", len(st.Layout.Images))
	}
	line("layout", st.LayoutComplete, detail)
	detail = ""
	if st.Article != nil {
		detail = st.Article.Title
	}
	line("article", st.ContentComplete, detail)
	line("image plans", st.PlanComplete, "")
	detail = ""
	if st.GeneratedImageCount > 0 {
		detail = fmt.Sprintf("%d generated", st.GeneratedImageCount)
	}
	line("images", st.ImagesComplete, detail)
	line("review", st.ReviewComplete, "")
	return b.String()
}

func renderReview(r *state.ReviewFeedback) string {
	var b strings.Builder
	if r.Approved {
		b.WriteString("approved\n")
	} else {
		b.WriteString("not approved\n")
	}
	if r.Scores != nil {
		for _, dim := range state.QualityDimensions {
			fmt.Fprintf(&b, "- %s: %.2f\n", dim, r.Scores.Score(dim))
		}
	}
	if r.Suggestions != "" {
		fmt.Fprintf(&b, "suggestions: %s\n", r.Suggestions)
	}
	return b.String()
}
