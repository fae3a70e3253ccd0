package stages

import (
	"context"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// ImagePlanner turns the layout into concrete generation prompts.
type ImagePlanner struct {
	base
}

// NewImagePlanner creates the image planner node.
func NewImagePlanner(deps Deps) *ImagePlanner {
	return &ImagePlanner{base: newBase(deps, state.StageImagePlanner)}
}

type rawImagePlans struct {
	Plans []state.ImagePlan `json:"plans"`
}

// Run implements graph.Node.
func (n *ImagePlanner) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	prompt, err := n.deps.Renderer.Render(templates.ImagePlannerTemplate, n.promptData(st))
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, nil)
	if err != nil {
		return graph.Result{}, err
	}

	var raw rawImagePlans
	if !utils.DecodeJSONObject(conv.content, &raw) || len(raw.Plans) == 0 {
		u.Messages = conv.messages
		return graph.Fail("image_plan_parse_failed", u), nil
	}

	for i := range raw.Plans {
		raw.Plans[i].Sequence = i + 1
		if raw.Plans[i].Prompt == "" {
			raw.Plans[i].Prompt = raw.Plans[i].Description
		}
	}

	u.ImagePlans = raw.Plans
	u.PlanComplete = state.BoolPtr(true)
	// New prompts supersede anything generated from the old ones.
	u.ImagesComplete = state.BoolPtr(false)
	n.logger.Info("image plan ready: %d prompts", len(raw.Plans))
	return suspendOrContinue(conv, u), nil
}
