// Package llm: OpenAI client adapter using the official Go SDK.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"contentflow/pkg/tools"
)

// OpenAIClient wraps the official OpenAI client to implement Client.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client for the given model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the Client interface via the Chat Completions API.
func (c *OpenAIClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:         openai.Float(float64(in.Temperature)),
	}
	if len(in.Tools) > 0 {
		params.Tools = toOpenAITools(in.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, NewTransientError(fmt.Errorf("openai api: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return CompletionResponse{}, NewTransientError(fmt.Errorf("empty response from OpenAI API"))
	}

	choice := resp.Choices[0]
	result := CompletionResponse{Content: choice.Message.Content}

	for i := range choice.Message.ToolCalls {
		tc := &choice.Message.ToolCalls[i]
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return CompletionResponse{}, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
		}
		result.ToolCalls = append(result.ToolCalls, tools.Call{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Params: args,
		})
	}

	return result, nil
}

func toOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
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

		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters{
					"type":       "object",
					"properties": props,
					"required":   def.InputSchema.Required,
				},
			},
		})
	}
	return out
}
