// Package stages implements the pipeline's worker nodes. Every stage has
// the same shape: compress history if it has grown, render its prompt from
// the shared state, converse with the model (running any requested tools),
// and parse the final answer into a typed state update.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contentflow/pkg/compressor"
	"contentflow/pkg/events"
	"contentflow/pkg/gate"
	"contentflow/pkg/graph"
	"contentflow/pkg/llm"
	"contentflow/pkg/logx"
	"contentflow/pkg/state"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
)

// maxToolRounds bounds tool-call loops within one stage run.
const maxToolRounds = 8

// Deps carries the collaborators every stage shares.
type Deps struct {
	Client     llm.Client
	Renderer   *templates.Renderer
	Registry   *tools.Registry
	Executor   *tools.Executor
	Compressor *compressor.Compressor
	Evidence   *tools.EvidenceStore
	Gate       *gate.Gate
	Sink       events.Sink // optional; tool activity events
}

// base carries the per-stage plumbing shared by all nodes.
type base struct {
	deps   Deps
	stage  state.Stage
	logger *logx.Logger
}

func newBase(deps Deps, stage state.Stage) base {
	return base{
		deps:   deps,
		stage:  stage,
		logger: logx.NewLogger(string(stage)),
	}
}

// Stage returns the node's stage identifier.
func (b *base) Stage() state.Stage { return b.stage }

func (b *base) emit(threadID string, typ events.Type, payload map[string]any) {
	if b.deps.Sink == nil {
		return
	}
	b.deps.Sink.Emit(events.New(threadID, typ, string(b.stage), payload))
}

// compress folds old history into the summary when the log has grown past
// the threshold. The returned update carries the replacement log; stages
// merge their own messages on top of it.
func (b *base) compress(ctx context.Context, st *state.State) (state.Update, error) {
	var u state.Update
	if b.deps.Compressor == nil || !b.deps.Compressor.ShouldCompress(st.Messages) {
		return u, nil
	}

	summary, kept, err := b.deps.Compressor.Compress(ctx, st.Summary, st.Messages)
	if err != nil {
		// Compression is an optimization; a failed fold must not sink
		// the stage run.
		b.logger.Warn("compression failed, continuing uncompressed: %v", err)
		return u, nil
	}
	u.Summary = state.StrPtr(summary)
	u.ReplaceLog = kept
	return u, nil
}

// conversation is the outcome of one model exchange including tool rounds.
type conversation struct {
	messages  []llm.Message
	content   string
	interrupt *tools.Interrupt
}

// converse sends the prompt, executes requested tools, and loops until the
// model answers in text or asks the operator a question.
func (b *base) converse(ctx context.Context, st *state.State, prompt string, toolNames []string) (*conversation, error) {
	conv := &conversation{
		messages: []llm.Message{llm.NewUserMessage(prompt)},
	}

	req := llm.NewCompletionRequest("", conv.messages)
	req.Tools = b.deps.Registry.Definitions(toolNames)

	for round := 0; round <= maxToolRounds; round++ {
		resp, err := b.deps.Client.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		assistant := llm.NewAssistantMessage(resp.Content, resp.ToolCalls)
		conv.messages = append(conv.messages, assistant)
		conv.content = resp.Content

		if len(resp.ToolCalls) == 0 {
			return conv, nil
		}

		for _, c := range resp.ToolCalls {
			b.emit(st.ThreadID, events.TypeToolCall, map[string]any{"name": c.Name, "call_id": c.ID})
		}
		results, intr, err := b.deps.Executor.ExecuteBatch(ctx, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			content := r.Content
			if r.IsError() {
				content = fmt.Sprintf("error: %s", r.Err)
			}
			b.emit(st.ThreadID, events.TypeToolResult, map[string]any{
				"name": r.Name, "call_id": r.CallID, "error": r.IsError(),
			})
			conv.messages = append(conv.messages, llm.NewToolMessage(r.CallID, r.Name, content))
		}
		if intr != nil {
			conv.interrupt = intr
			return conv, nil
		}

		req.Messages = conv.messages
	}

	return nil, fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

// promptData pre-renders the shared state for templates.
func (b *base) promptData(st *state.State) *templates.PromptData {
	data := &templates.PromptData{
		Topic:          st.Topic,
		Summary:        st.Summary,
		IterationCount: st.IterationCount,
		MaxIterations:  st.MaxIterations,
		Extra:          map[string]any{},
	}
	if st.Decision != nil {
		data.Guidance = st.Decision.Guidance
		if len(st.Decision.FocusAreas) > 0 {
			data.FocusAreas = "- " + strings.Join(st.Decision.FocusAreas, "\n- ")
		}
	}
	if st.Brief != nil {
		data.Brief = asJSON(st.Brief)
	}
	if st.Evidence != nil {
		data.Evidence = asJSON(st.Evidence)
	}
	if st.StyleAnalysis != nil {
		data.StyleAnalysis = asJSON(st.StyleAnalysis)
	}
	if st.Layout != nil {
		data.Layout = asJSON(st.Layout)
	}
	if len(st.ImagePlans) > 0 {
		data.ImagePlans = asJSON(st.ImagePlans)
	}
	if st.Article != nil {
		data.Article = fmt.Sprintf("# %s\n\n%s", st.Article.Title, st.Article.Body)
	}
	if st.Review != nil {
		data.ReviewFeedback = asJSON(st.Review)
	}
	if st.ReferenceImg != "" {
		data.Extra["ReferenceImage"] = st.ReferenceImg
	}
	return data
}

func asJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// suspendOrContinue turns a conversation into the stage result, handling
// the interrupt case uniformly.
func suspendOrContinue(conv *conversation, u state.Update) graph.Result {
	u.Messages = append(conv.messages, u.Messages...)
	if conv.interrupt != nil {
		return graph.Suspend(conv.interrupt, u)
	}
	return graph.Continue(u)
}
