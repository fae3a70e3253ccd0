package stages

import (
	"context"
	"strings"

	"contentflow/pkg/graph"
	"contentflow/pkg/llm"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
	"contentflow/pkg/utils"
)

// BriefCompiler turns the raw topic into a creative brief.
type BriefCompiler struct {
	base
}

// NewBriefCompiler creates the brief compiler node.
func NewBriefCompiler(deps Deps) *BriefCompiler {
	return &BriefCompiler{base: newBase(deps, state.StageBriefCompiler)}
}

// Run implements graph.Node.
func (n *BriefCompiler) Run(ctx context.Context, st *state.State) (graph.Result, error) {
	topic := strings.TrimSpace(st.Topic)
	if topic == "" && st.Clarified("brief.topic") {
		// The operator was already asked; their answer is the topic.
		topic = operatorAnswer(st.Messages)
	}
	if topic == "" {
		// Nothing to compile; this needs the operator, not the model.
		if st.Clarified("brief.topic") {
			return graph.Fail("brief_topic_missing", state.Update{}), nil
		}
		return graph.Suspend(&tools.Interrupt{
			Question: "What topic should this piece cover?",
			Key:      "brief.topic",
		}, state.Update{}), nil
	}

	u, err := n.compress(ctx, st)
	if err != nil {
		return graph.Result{}, err
	}

	data := n.promptData(st)
	data.Topic = topic
	prompt, err := n.deps.Renderer.Render(templates.BriefCompilerTemplate, data)
	if err != nil {
		return graph.Result{}, err
	}

	conv, err := n.converse(ctx, st, prompt, []string{tools.ToolAskUser})
	if err != nil {
		return graph.Result{}, err
	}
	if conv.interrupt != nil {
		return suspendOrContinue(conv, u), nil
	}

	var brief state.CreativeBrief
	if !utils.DecodeJSONObject(conv.content, &brief) || brief.Topic == "" {
		u.Messages = conv.messages
		return graph.Fail("brief_parse_failed", u), nil
	}

	if len(brief.Constraints) > state.MaxBriefConstraints {
		brief.Constraints = brief.Constraints[:state.MaxBriefConstraints]
	}
	if len(brief.Keywords) > state.MaxBriefKeywords {
		brief.Keywords = brief.Keywords[:state.MaxBriefKeywords]
	}

	u.Brief = &brief
	n.logger.Info("brief compiled for %q (audience: %s)", brief.Topic, brief.Audience)
	return suspendOrContinue(conv, u), nil
}

// operatorAnswer extracts the most recent operator reply from the message
// log. Resume records answers as user messages in a fixed format.
func operatorAnswer(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != llm.RoleUser || !strings.HasPrefix(m.Content, "Operator answer to ") {
			continue
		}
		if idx := strings.Index(m.Content, `": `); idx >= 0 {
			return strings.TrimSpace(m.Content[idx+3:])
		}
	}
	return ""
}
