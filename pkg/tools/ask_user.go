package tools

import (
	"context"
	"fmt"
)

// Interrupt is the value ask_user returns instead of a normal result. The
// executor detects it and stops the batch so the engine can suspend the
// workflow until a human answers.
type Interrupt struct {
	Question string `json:"question"`
	// Key deduplicates questions across resumes; a question whose key was
	// already answered in this run is never asked again.
	Key string `json:"key"`
}

// AskUserTool lets a stage pause the workflow and put a question to the
// human operator. It never answers anything itself.
type AskUserTool struct{}

// NewAskUserTool creates an ask_user tool instance.
func NewAskUserTool() *AskUserTool {
	return &AskUserTool{}
}

// Name returns the tool identifier.
func (a *AskUserTool) Name() string {
	return ToolAskUser
}

// Definition returns the tool definition for model binding.
func (a *AskUserTool) Definition() Definition {
	return Definition{
		Name:        ToolAskUser,
		Description: "Ask the human operator a question and pause the workflow until they answer. Use only when you cannot proceed without their input.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"question": {
					Type:        "string",
					Description: "The question for the operator, with enough context to answer without reading the full history",
				},
				"key": {
					Type:        "string",
					Description: "Stable identifier for this question, e.g. 'brief.audience'. The same key is never asked twice in one run",
				},
			},
			Required: []string{"question", "key"},
		},
	}
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (a *AskUserTool) PromptDocumentation() string {
	return `- **ask_user** - Ask the human operator a question and pause until they answer
  - Parameters:
    - question (string, required): the question, self-contained
    - key (string, required): stable identifier, e.g. 'brief.audience'
  - The workflow suspends until the operator responds; use sparingly
  - A key that was already answered in this run will not be asked again`
}

// Exec returns an Interrupt; it never produces a normal result.
func (a *AskUserTool) Exec(_ context.Context, args map[string]any) (any, error) {
	question, _ := args["question"].(string)
	key, _ := args["key"].(string)
	if question == "" || key == "" {
		return nil, fmt.Errorf("question and key parameters are required")
	}
	return &Interrupt{Question: question, Key: key}, nil
}
