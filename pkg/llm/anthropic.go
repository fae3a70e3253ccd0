// Package llm: Anthropic Claude client adapter.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"contentflow/pkg/tools"
)

// AnthropicClient wraps the Anthropic API client to implement Client.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a Claude client for the given model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete implements the Client interface.
func (c *AnthropicClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	messages, err := toAlternating(in.Messages)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("message conversion error: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System, Type: "text"}}
	}
	if len(in.Tools) > 0 {
		params.Tools = toAnthropicTools(in.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, NewTransientError(fmt.Errorf("anthropic api: %w", err))
	}
	if resp == nil || len(resp.Content) == 0 {
		return CompletionResponse{}, NewTransientError(fmt.Errorf("empty response from Claude API"))
	}

	var content string
	var calls []tools.Call
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			calls = append(calls, tools.Call{ID: toolUse.ID, Name: toolUse.Name, Params: args})
		}
	}

	return CompletionResponse{Content: content, ToolCalls: calls}, nil
}

// toAlternating converts the conversation log to Anthropic's strict
// user/assistant alternation. Tool-result messages become user content;
// consecutive same-role messages are merged.
func toAlternating(messages []Message) ([]anthropic.MessageParam, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	var merged []anthropic.MessageParam
	var userParts []string

	flush := func() {
		if len(userParts) > 0 {
			merged = append(merged, anthropic.NewUserMessage(
				anthropic.NewTextBlock(strings.Join(userParts, "\n\n"))))
			userParts = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleAssistant:
			flush()
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				content = describeCalls(msg.ToolCalls)
			}
			merged = append(merged, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		case RoleTool:
			userParts = append(userParts, fmt.Sprintf("[tool %s result]\n%s", msg.ToolName, msg.Content))
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if len(merged) == 0 {
		return nil, fmt.Errorf("must have at least one non-system message")
	}
	// The API requires the sequence to end with a user turn.
	if merged[len(merged)-1].Role != anthropic.MessageParamRoleUser {
		merged = append(merged, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
	}
	// And to start with one.
	if merged[0].Role != anthropic.MessageParamRoleUser {
		merged = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("(conversation resumed)")),
		}, merged...)
	}

	return merged, nil
}

func describeCalls(calls []tools.Call) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return "[requested tools: " + strings.Join(names, ", ") + "]"
}

func toAnthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		props := make(map[string]any, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			prop := def.InputSchema.Properties[name]
			propMap := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				propMap["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				propMap["enum"] = prop.Enum
			}
			props[name] = propMap
		}

		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: props,
			Required:   def.InputSchema.Required,
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, def.Name))
	}
	return out
}
