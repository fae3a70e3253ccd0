// Package llm: Ollama client adapter for local model runtimes.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"contentflow/pkg/tools"
)

// OllamaClient wraps the Ollama API client to implement Client.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client for an Ollama server.
// hostURL defaults to http://localhost:11434 when unparseable or empty.
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements the Client interface.
func (o *OllamaClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: in.System})
	}
	for i := range in.Messages {
		msg := &in.Messages[i]
		m := api.Message{Role: string(msg.Role), Content: msg.Content}
		if msg.Role == RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			m.ToolCalls = append(m.ToolCalls, api.ToolCall{
				ID: tc.ID,
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: api.ToolCallFunctionArguments(tc.Params),
				},
			})
		}
		messages = append(messages, m)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		req.Tools = toOllamaTools(in.Tools)
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return CompletionResponse{}, NewTransientError(fmt.Errorf("ollama api: %w", err))
	}

	result := CompletionResponse{Content: response.Message.Content}
	for i := range response.Message.ToolCalls {
		tc := &response.Message.ToolCalls[i]
		result.ToolCalls = append(result.ToolCalls, tools.Call{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Params: map[string]any(tc.Function.Arguments),
		})
	}
	return result, nil
}

func toOllamaTools(defs []tools.Definition) api.Tools {
	out := make(api.Tools, len(defs))
	for i := range defs {
		def := &defs[i]
		props := make(map[string]api.ToolProperty, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			prop := def.InputSchema.Properties[name]
			p := api.ToolProperty{
				Type:        api.PropertyType{prop.Type},
				Description: prop.Description,
			}
			if len(prop.Enum) > 0 {
				enumVals := make([]any, len(prop.Enum))
				for j, v := range prop.Enum {
					enumVals[j] = v
				}
				p.Enum = enumVals
			}
			props[name] = p
		}

		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: props,
					Required:   def.InputSchema.Required,
				},
			},
		}
	}
	return out
}
