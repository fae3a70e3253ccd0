package stages

import (
	"context"
	"fmt"
	"sort"

	"contentflow/pkg/events"
	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/tools"
)

// ImageGenerator executes the image plans. It drives the generation tool
// directly through the executor rather than asking a model to; the plans
// already say exactly what to render.
type ImageGenerator struct {
	base
	assets *tools.AssetLog
}

// NewImageGenerator creates the image generator node. assets must be the
// same log the generate_image tool writes to.
func NewImageGenerator(deps Deps, assets *tools.AssetLog) *ImageGenerator {
	return &ImageGenerator{
		base:   newBase(deps, state.StageImageGenerator),
		assets: assets,
	}
}

// Run implements graph.Node.
func (n *ImageGenerator) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	if len(st.ImagePlans) == 0 {
		return graph.Fail("no_image_plans", state.Update{}), nil
	}

	calls := make([]tools.Call, 0, len(st.ImagePlans))
	for _, plan := range st.ImagePlans {
		calls = append(calls, tools.Call{
			ID:   fmt.Sprintf("gen-%s-%d", st.ThreadID, plan.Sequence),
			Name: tools.ToolGenerateImage,
			Params: map[string]any{
				"prompt":   plan.Prompt,
				"sequence": plan.Sequence,
			},
		})
	}

	for _, c := range calls {
		n.emit(st.ThreadID, events.TypeToolCall, map[string]any{"name": c.Name, "call_id": c.ID})
	}
	results, _, err := n.deps.Executor.ExecuteBatch(ctx, calls)
	if err != nil {
		return graph.Result{}, err
	}
	for _, r := range results {
		n.emit(st.ThreadID, events.TypeToolResult, map[string]any{
			"name": r.Name, "call_id": r.CallID, "error": r.IsError(),
		})
	}

	generated := n.assets.Drain()
	sort.Slice(generated, func(i, j int) bool {
		return generated[i].Sequence < generated[j].Sequence
	})

	var u state.Update
	for _, a := range generated {
		u.GeneratedImagePaths = append(u.GeneratedImagePaths, a.Path)
		u.GeneratedAssetIDs = append(u.GeneratedAssetIDs, a.AssetID)
	}
	u.GeneratedImageCount = state.IntPtr(len(st.GeneratedImagePaths) + len(generated))

	failed := 0
	for _, r := range results {
		if r.IsError() {
			failed++
			n.logger.Warn("generation call %s failed: %s", r.CallID, r.Err)
		}
	}

	if failed > 0 {
		n.logger.Warn("%d of %d images failed to generate", failed, len(calls))
		return graph.Fail("image_generation_incomplete", u), nil
	}

	u.ImagesComplete = state.BoolPtr(true)
	n.logger.Info("generated %d images", len(generated))
	return graph.Continue(u), nil
}
