package stages

import (
	"context"

	"contentflow/pkg/graph"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
	"contentflow/pkg/utils"
)

// Research gathers evidence for the brief using search tools.
type Research struct {
	base
}

// NewResearch creates the research node.
func NewResearch(deps Deps) *Research {
	return &Research{base: newBase(deps, state.StageResearch)}
}

type rawEvidencePack struct {
	Items   []state.EvidenceItem `json:"items"`
	Summary string               `json:"summary"`
}

// Run implements graph.Node.
func (n *Research) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	data := n.promptData(st)
	toolNames := []string{tools.ToolWebSearch, tools.ToolSaveEvidence, tools.ToolAskUser}
	data.ToolDocumentation = n.deps.Registry.Documentation(toolNames)

	prompt, err := n.deps.Renderer.Render(templates.ResearchTemplate, data)
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, toolNames)
	if err != nil {
		return graph.Result{}, err
	}
	if conv.interrupt != nil {
		return suspendOrContinue(conv, u), nil
	}

	var raw rawEvidencePack
	parsed := utils.DecodeJSONObject(conv.content, &raw)

	// Facts saved through the tool count even when the final answer is
	// unusable; drain them either way.
	saved := n.deps.Evidence.Drain()
	for _, item := range saved {
		raw.Items = append(raw.Items, state.EvidenceItem{
			Fact:   item.Fact,
			Source: item.Source,
			Quote:  item.Quote,
		})
	}

	if !parsed && len(raw.Items) == 0 {
		u.Messages = conv.messages
		return graph.Fail("research_parse_failed", u), nil
	}

	u.Evidence = &state.EvidencePack{
		Items:   dedupeEvidence(raw.Items),
		Summary: raw.Summary,
	}
	u.ResearchComplete = state.BoolPtr(true)
	n.logger.Info("research complete: %d evidence items", len(u.Evidence.Items))
	return suspendOrContinue(conv, u), nil
}

// dedupeEvidence drops exact duplicate facts, keeping first occurrence.
func dedupeEvidence(items []state.EvidenceItem) []state.EvidenceItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if item.Fact == "" || seen[item.Fact] {
			continue
		}
		seen[item.Fact] = true
		out = append(out, item)
	}
	return out
}
