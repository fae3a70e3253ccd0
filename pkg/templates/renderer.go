// Package templates provides prompt rendering for pipeline stages.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// PromptData holds the variables available to stage prompt templates.
// Fields are pre-rendered strings so templates stay flat.
type PromptData struct {
	Topic             string         `json:"topic"`
	Summary           string         `json:"summary,omitempty"`
	Brief             string         `json:"brief,omitempty"`
	Evidence          string         `json:"evidence,omitempty"`
	StyleAnalysis     string         `json:"style_analysis,omitempty"`
	Layout            string         `json:"layout,omitempty"`
	ImagePlans        string         `json:"image_plans,omitempty"`
	Article           string         `json:"article,omitempty"`
	ReviewFeedback    string         `json:"review_feedback,omitempty"`
	Guidance          string         `json:"guidance,omitempty"`
	FocusAreas        string         `json:"focus_areas,omitempty"`
	ToolDocumentation string         `json:"tool_documentation,omitempty"`
	IterationCount    int            `json:"iteration_count"`
	MaxIterations     int            `json:"max_iterations"`
	CompletionReport  string         `json:"completion_report,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// StageTemplate names one embedded prompt template.
type StageTemplate string

const (
	SupervisorTemplate        StageTemplate = "supervisor.tpl.md"
	BriefCompilerTemplate     StageTemplate = "brief_compiler.tpl.md"
	ResearchTemplate          StageTemplate = "research.tpl.md"
	ReferenceAnalyzerTemplate StageTemplate = "reference_analyzer.tpl.md"
	LayoutPlannerTemplate     StageTemplate = "layout_planner.tpl.md"
	WriterTemplate            StageTemplate = "writer.tpl.md"
	ImagePlannerTemplate      StageTemplate = "image_planner.tpl.md"
	ReviewTemplate            StageTemplate = "review.tpl.md"
	CompressionTemplate       StageTemplate = "compression.tpl.md"
)

var allTemplates = []StageTemplate{
	SupervisorTemplate,
	BriefCompilerTemplate,
	ResearchTemplate,
	ReferenceAnalyzerTemplate,
	LayoutPlannerTemplate,
	WriterTemplate,
	ImagePlannerTemplate,
	ReviewTemplate,
	CompressionTemplate,
}

// Renderer holds the parsed stage templates. Every template is loaded and
// parsed at construction; a missing or malformed template is a startup
// error, never discovered mid-run.
type Renderer struct {
	templates map[StageTemplate]*template.Template
}

// NewRenderer parses all embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[StageTemplate]*template.Template)}

	for _, name := range allTemplates {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
			"trim":     strings.TrimSpace,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render executes the named template with the given data.
func (r *Renderer) Render(name StageTemplate, data *PromptData) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Available returns the names of all loaded templates.
func (r *Renderer) Available() []StageTemplate {
	names := make([]StageTemplate, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
