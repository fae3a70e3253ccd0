// Package compressor folds old conversation history into a running summary
// so stage prompts stay inside the model's context budget.
package compressor

import (
	"context"
	"fmt"
	"strings"

	"contentflow/pkg/llm"
	"contentflow/pkg/logx"
	"contentflow/pkg/templates"
	"contentflow/pkg/utils"
)

// Config bounds the compression window.
type Config struct {
	// Threshold is the message count at which compression kicks in.
	Threshold int
	// RecentTail is how many trailing messages survive verbatim.
	RecentTail int
	// MaxContextTokens triggers compression by estimated token count even
	// below the message threshold. Zero disables the token trigger.
	MaxContextTokens int
	// CompactionBuffer is the headroom reserved under MaxContextTokens.
	CompactionBuffer int
}

// DefaultConfig returns the standard window.
func DefaultConfig() Config {
	return Config{Threshold: 15, RecentTail: 4}
}

// Compressor condenses conversation history with a model call. It is
// stateless between calls; the running summary lives in the shared state.
type Compressor struct {
	client   llm.Client
	renderer *templates.Renderer
	counter  *utils.TokenCounter
	cfg      Config
	logger   *logx.Logger
}

// New creates a compressor.
func New(client llm.Client, renderer *templates.Renderer, cfg Config) *Compressor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.RecentTail < 0 {
		cfg.RecentTail = DefaultConfig().RecentTail
	}
	// A nil counter falls back to the character heuristic.
	counter, _ := utils.NewTokenCounter()
	return &Compressor{
		client:   client,
		renderer: renderer,
		counter:  counter,
		cfg:      cfg,
		logger:   logx.NewLogger("compressor"),
	}
}

// ShouldCompress reports whether the log has grown past the message
// threshold or the token budget.
func (c *Compressor) ShouldCompress(messages []llm.Message) bool {
	if len(messages) >= c.cfg.Threshold {
		return true
	}
	if c.cfg.MaxContextTokens > 0 {
		return c.countTokens(messages) > c.cfg.MaxContextTokens-c.cfg.CompactionBuffer
	}
	return false
}

// Compress folds everything before the recent tail into a single summary
// message. The previous summary is folded in too, so the result is
// cumulative. Returns the replacement log: one summary message followed by
// the verbatim tail.
func (c *Compressor) Compress(ctx context.Context, previousSummary string, messages []llm.Message) (string, []llm.Message, error) {
	cut := len(messages) - c.cfg.RecentTail
	if cut < 1 {
		// Nothing old enough to fold.
		return previousSummary, messages, nil
	}
	cut = adjustCut(messages, cut)
	if cut < 1 {
		return previousSummary, messages, nil
	}

	head := messages[:cut]
	tail := messages[cut:]

	transcript := renderTranscript(head)
	prompt, err := c.renderer.Render(templates.CompressionTemplate, &templates.PromptData{
		Summary: previousSummary,
		Extra:   map[string]any{"Transcript": transcript},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to render compression prompt: %w", err)
	}

	resp, err := c.client.Complete(ctx, llm.NewCompletionRequest("", []llm.Message{
		llm.NewUserMessage(prompt),
	}))
	if err != nil {
		return "", nil, fmt.Errorf("compression model call failed: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", nil, fmt.Errorf("compression produced an empty summary")
	}

	before := c.countTokens(messages)
	kept := append([]llm.Message{llm.NewSummaryMessage(summary)}, tail...)
	after := c.countTokens(kept)
	c.logger.Info("compressed %d messages to %d (%d -> %d tokens)",
		len(messages), len(kept), before, after)

	return summary, kept, nil
}

// countTokens sums token counts across messages.
func (c *Compressor) countTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += c.counter.CountTokens(m.Content)
	}
	return total
}

// adjustCut moves the cut backwards so a tool-call message and its results
// land on the same side of the boundary. Tool results directly follow the
// assistant message that requested them, so walking back past leading tool
// results puts the whole exchange in the tail.
func adjustCut(messages []llm.Message, cut int) int {
	for cut > 0 && messages[cut].Role == llm.RoleTool {
		cut--
	}
	return cut
}

// renderTranscript flattens messages for the compression prompt.
func renderTranscript(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleTool:
			fmt.Fprintf(&b, "[tool %s result] %s\n", m.ToolName, m.Content)
		case llm.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				fmt.Fprintf(&b, "assistant: %s [called: %s]\n", m.Content, strings.Join(names, ", "))
				continue
			}
			fmt.Fprintf(&b, "assistant: %s\n", m.Content)
		default:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}
