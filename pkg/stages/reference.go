package stages

import (
	"context"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// ReferenceAnalyzer classifies the run's reference image into a reusable
// visual style.
type ReferenceAnalyzer struct {
	base
}

// NewReferenceAnalyzer creates the reference analyzer node.
func NewReferenceAnalyzer(deps Deps) *ReferenceAnalyzer {
	return &ReferenceAnalyzer{base: newBase(deps, state.StageReferenceAnalyzer)}
}

// Run implements graph.Node.
func (n *ReferenceAnalyzer) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	if st.ReferenceImg == "" {
		// No reference material: record a neutral default so downstream
		// stages have style tokens to work with.
		n.logger.Info("no reference image, using neutral style")
		return graph.Continue(state.Update{
			StyleAnalysis: &state.StyleAnalysis{
				StyleName:   "clean editorial",
				Tone:        "neutral",
				StyleTokens: []string{"clean composition", "soft natural light"},
			},
			ReferenceAnalyzed: state.BoolPtr(true),
		}), nil
	}

	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	prompt, err := n.deps.Renderer.Render(templates.ReferenceAnalyzerTemplate, n.promptData(st))
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, nil)
	if err != nil {
		return graph.Result{}, err
	}

	var analysis state.StyleAnalysis
	if !utils.DecodeJSONObject(conv.content, &analysis) || analysis.StyleName == "" {
		u.Messages = conv.messages
		return graph.Fail("style_parse_failed", u), nil
	}

	u.StyleAnalysis = &analysis
	u.ReferenceAnalyzed = state.BoolPtr(true)
	n.logger.Info("reference classified as %q", analysis.StyleName)
	return suspendOrContinue(conv, u), nil
}
