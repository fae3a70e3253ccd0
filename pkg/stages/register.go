package stages

import (
	"contentflow/pkg/graph"
	"contentflow/pkg/tools"
)

// RegisterAll builds every pipeline node and adds it to the registry.
func RegisterAll(reg *graph.Registry, deps Deps, assets *tools.AssetLog) error {
	nodes := []graph.Node{
		NewBriefCompiler(deps),
		NewResearch(deps),
		NewReferenceAnalyzer(deps),
		NewLayoutPlanner(deps),
		NewWriter(deps),
		NewImagePlanner(deps),
		NewImageGenerator(deps, assets),
		NewReviewer(deps),
	}
	for _, n := range nodes {
		if err := reg.Add(n); err != nil {
			return err
		}
	}
	return nil
}
