// Package tools provides the tool registry and execution node for the
// content pipeline. Stages bind a subset of registered tools to their model
// calls; requested tool calls are executed by the Executor and folded back
// into the conversation as tool-result messages.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool name constants - use these instead of magic strings.
const (
	ToolAskUser       = "ask_user"
	ToolWebSearch     = "web_search"
	ToolSaveEvidence  = "save_evidence"
	ToolGenerateImage = "generate_image"
)

// Property describes a single input schema property.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// InputSchema describes a tool's input parameters as a JSON schema object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is the vendor-neutral tool definition bound to model calls.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Call is a tool invocation requested by the model.
type Call struct {
	Params map[string]any `json:"params"`
	ID     string         `json:"id"`
	Name   string         `json:"name"`
}

// Result is the outcome of one executed call. Err is a message rather than
// an error value because results are folded into the conversation log.
type Result struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Err     string `json:"error,omitempty"`
}

// IsError reports whether the call failed.
func (r *Result) IsError() bool { return r.Err != "" }

// Tool is the interface all pipeline tools implement.
type Tool interface {
	// Name returns the tool identifier.
	Name() string
	// Definition returns the tool definition for model binding.
	Definition() Definition
	// PromptDocumentation returns markdown documentation for LLM prompts.
	PromptDocumentation() string
	// Exec executes the tool with validated arguments.
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds tool instances and their compiled input schemas. It is an
// injected instance, not module-level state; construct one per process and
// pass it to the stages that need it. Safe for concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool and compiles its input schema for argument
// validation. Registering a duplicate name is an error.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	schema, err := compileSchema(tool.Definition().InputSchema)
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// Definitions returns definitions for the named tools, for model binding.
// Unknown names are skipped; a stage asking for a tool that was never
// registered simply runs without it.
func (r *Registry) Definitions(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, tool.Definition())
		}
	}
	return defs
}

// Validate checks call arguments against the tool's input schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if schema == nil {
		return fmt.Errorf("tool %s not found", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(normalizeForSchema(args)); err != nil {
		return fmt.Errorf("invalid arguments for tool %s: %w", name, err)
	}
	return nil
}

// Documentation returns markdown documentation for the named tools.
func (r *Registry) Documentation(names []string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var doc strings.Builder
	doc.WriteString("## Available Tools\n\n")
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			doc.WriteString(tool.PromptDocumentation())
			doc.WriteString("\n")
		}
	}
	return doc.String()
}

// compileSchema turns an InputSchema into a validating jsonschema.Schema.
func compileSchema(in InputSchema) (*jsonschema.Schema, error) {
	if in.Type == "" {
		in.Type = "object"
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// normalizeForSchema round-trips args through JSON so the validator sees
// canonical types (float64 numbers, map[string]any objects).
func normalizeForSchema(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return args
	}
	return out
}
