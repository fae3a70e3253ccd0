// Package llm defines the vendor-neutral model invocation interface and the
// conversation message type threaded through Shared State.
package llm

import (
	"context"

	"contentflow/pkg/tools"
	"contentflow/pkg/utils"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem is an instruction message, never stored in the state log.
	RoleSystem Role = "system"
	// RoleUser is a message from the human.
	RoleUser Role = "user"
	// RoleAssistant is a message from the model.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool execution result paired with a prior tool call.
	RoleTool Role = "tool"
)

// Message is one entry in the append-only conversation log. Messages are
// never mutated after creation; compression replaces a prefix of the log with
// a summary message but leaves individual messages intact.
type Message struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`
	// ToolCallID links a RoleTool message to the assistant tool call it
	// answers. The compressor relies on this pairing to pick safe window
	// boundaries.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	// Summary marks a message synthesized by the context compressor.
	Summary bool `json:"summary,omitempty"`
}

// NewUserMessage creates a new user message with a stable identifier.
func NewUserMessage(content string) Message {
	return Message{ID: utils.NewMessageID(), Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string, calls []tools.Call) Message {
	return Message{ID: utils.NewMessageID(), Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolMessage creates a tool-result message paired with callID.
func NewToolMessage(callID, name, content string) Message {
	return Message{ID: utils.NewMessageID(), Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// NewSummaryMessage creates a compressor-produced summary message.
func NewSummaryMessage(content string) Message {
	return Message{ID: utils.NewMessageID(), Role: RoleAssistant, Content: content, Summary: true}
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Tools       []tools.Definition
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is the model's reply: text content plus any structured
// tool-call requests the model elected to make.
type CompletionResponse struct {
	Content   string
	ToolCalls []tools.Call
}

// Client is the narrow model-invocation interface all stages depend on.
type Client interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
}

// NewCompletionRequest creates a completion request with default budgets.
// A BudgetedClient in the chain replaces the defaults with configured ones.
func NewCompletionRequest(system string, messages []Message) CompletionRequest {
	return CompletionRequest{
		System:      system,
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// BudgetedClient applies configured reply and temperature budgets to every
// request before it reaches the vendor client.
type BudgetedClient struct {
	base        Client
	maxTokens   int
	temperature float32
}

// NewBudgetedClient wraps base. Zero values leave the request untouched.
func NewBudgetedClient(base Client, maxTokens int, temperature float32) *BudgetedClient {
	return &BudgetedClient{base: base, maxTokens: maxTokens, temperature: temperature}
}

// Complete implements Client.
func (c *BudgetedClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	if c.maxTokens > 0 {
		in.MaxTokens = c.maxTokens
	}
	if c.temperature > 0 {
		in.Temperature = c.temperature
	}
	return c.base.Complete(ctx, in)
}
