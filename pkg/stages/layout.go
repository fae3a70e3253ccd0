package stages

import (
	"context"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// LayoutPlanner decides how many images the piece gets and how text and
// imagery share each one.
type LayoutPlanner struct {
	base
}

// NewLayoutPlanner creates the layout planner node.
func NewLayoutPlanner(deps Deps) *LayoutPlanner {
	return &LayoutPlanner{base: newBase(deps, state.StageLayoutPlanner)}
}

// Run implements graph.Node.
func (n *LayoutPlanner) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	prompt, err := n.deps.Renderer.Render(templates.LayoutPlannerTemplate, n.promptData(st))
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, nil)
	if err != nil {
		return graph.Result{}, err
	}

	var layout state.LayoutSpec
	if !utils.DecodeJSONObject(conv.content, &layout) || len(layout.Images) == 0 {
		u.Messages = conv.messages
		return graph.Fail("layout_parse_failed", u), nil
	}

	// Normalize sequence numbers; models occasionally zero-index or skip.
	for i := range layout.Images {
		layout.Images[i].ImageSeq = i + 1
	}

	u.Layout = &layout
	u.LayoutComplete = state.BoolPtr(true)
	n.logger.Info("layout planned: %d images", len(layout.Images))
	return suspendOrContinue(conv, u), nil
}
