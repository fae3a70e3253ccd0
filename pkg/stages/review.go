package stages

import (
	"context"
	"fmt"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// Reviewer scores the finished piece and applies the quality gate: a
// failing dimension sends the pipeline back to the stage best placed to
// fix it, within the revision budget.
type Reviewer struct {
	base
}

// NewReviewer creates the review node.
func NewReviewer(deps Deps) *Reviewer {
	return &Reviewer{base: newBase(deps, state.StageReviewer)}
}

// Run implements graph.Node.
func (n *Reviewer) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	if st.Article == nil {
		return graph.Fail("nothing_to_review", state.Update{}), nil
	}

	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	prompt, err := n.deps.Renderer.Render(templates.ReviewTemplate, n.promptData(st))
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, nil)
	if err != nil {
		return graph.Result{}, err
	}

	var review state.ReviewFeedback
	if !utils.DecodeJSONObject(conv.content, &review) {
		u.Messages = conv.messages
		return graph.Fail("review_parse_failed", u), nil
	}

	u.Review = &review
	verdict := n.deps.Gate.Evaluate(st, &review)

	switch {
	case verdict.Terminated:
		n.logger.Warn("revision budget spent, shipping with scores as-is")
		u.ReviewComplete = state.BoolPtr(true)

	case verdict.Approved:
		n.logger.Info("review passed")
		u.ReviewComplete = state.BoolPtr(true)

	default:
		n.logger.Info("review failed (%s), revising via %s", verdict.Reason, verdict.Target)
		u.ReviewComplete = state.BoolPtr(false)
		u.IterationDelta = 1
		u.Decision = &state.Decision{
			NextStage: verdict.Target,
			Guidance:  fmt.Sprintf("Revision pass: %s. %s", verdict.Reason, review.Suggestions),
		}
	}

	return suspendOrContinue(conv, u), nil
}
