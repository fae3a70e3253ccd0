package state

// CreativeBrief frames the piece: produced once by the brief compiler, read
// by most downstream stages.
type CreativeBrief struct {
	Topic       string   `json:"topic"`
	Audience    string   `json:"audience"`
	Goal        string   `json:"goal"`
	Constraints []string `json:"constraints,omitempty"` // at most 3
	Keywords    []string `json:"keywords,omitempty"`    // at most 5
}

// MaxBriefConstraints and MaxBriefKeywords bound brief size; parsers
// truncate rather than reject.
const (
	MaxBriefConstraints = 3
	MaxBriefKeywords    = 5
)

// EvidenceItem is one researched fact with optional attribution.
type EvidenceItem struct {
	Fact   string `json:"fact"`
	Source string `json:"source,omitempty"`
	Quote  string `json:"quote,omitempty"`
}

// EvidencePack is the research stage's output, consumed by the writer.
type EvidencePack struct {
	Items   []EvidenceItem `json:"items"`
	Summary string         `json:"summary"`
}

// StyleAnalysis captures reference-image classification results.
type StyleAnalysis struct {
	StyleName   string   `json:"style_name"`
	Palette     []string `json:"palette,omitempty"`
	Tone        string   `json:"tone,omitempty"`
	StyleTokens []string `json:"style_tokens,omitempty"`
}

// ImagePlan describes one planned image.
type ImagePlan struct {
	Sequence    int    `json:"sequence"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// LayoutBlock is one annotated region within an image layout.
type LayoutBlock struct {
	Area        string `json:"area"`
	Instruction string `json:"instruction"`
}

// ImageLayout is the per-image layout specification.
type ImageLayout struct {
	ImageSeq    int           `json:"image_seq"`
	Role        string        `json:"role"`
	VisualFocus string        `json:"visual_focus"`
	TextDensity string        `json:"text_density"`
	Blocks      []LayoutBlock `json:"blocks,omitempty"`
}

// LayoutSpec is the layout planner's output.
type LayoutSpec struct {
	Images []ImageLayout `json:"images"`
}

// Article is the written content: title, markdown body, tags.
type Article struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
}

// Quality dimension names, in gate priority order.
const (
	DimInfoDensity        = "info_density"
	DimTextImageAlignment = "text_image_alignment"
	DimStyleConsistency   = "style_consistency"
	DimReadability        = "readability"
	DimPlatformFit        = "platform_fit"
)

// QualityDimensions lists dimensions in the fixed priority order the gate
// evaluates them. First failing dimension wins.
var QualityDimensions = []string{ //nolint:gochecknoglobals // fixed priority order
	DimInfoDensity,
	DimTextImageAlignment,
	DimStyleConsistency,
	DimReadability,
	DimPlatformFit,
}

// QualityScores holds per-dimension review scores on a 0-1 scale.
type QualityScores struct {
	InfoDensity        float64 `json:"info_density"`
	TextImageAlignment float64 `json:"text_image_alignment"`
	StyleConsistency   float64 `json:"style_consistency"`
	Readability        float64 `json:"readability"`
	PlatformFit        float64 `json:"platform_fit"`
	Overall            float64 `json:"overall"`
}

// Score returns the value for a named dimension.
func (q *QualityScores) Score(dimension string) float64 {
	switch dimension {
	case DimInfoDensity:
		return q.InfoDensity
	case DimTextImageAlignment:
		return q.TextImageAlignment
	case DimStyleConsistency:
		return q.StyleConsistency
	case DimReadability:
		return q.Readability
	case DimPlatformFit:
		return q.PlatformFit
	default:
		return 0
	}
}

// ReviewFeedback is the review stage's verdict.
type ReviewFeedback struct {
	Approved    bool           `json:"approved"`
	Suggestions string         `json:"suggestions,omitempty"`
	TargetAgent Stage          `json:"target_agent,omitempty"`
	Scores      *QualityScores `json:"scores,omitempty"`
}

// Decision is the supervisor's parsed routing proposal.
type Decision struct {
	NextStage           Stage    `json:"next_stage"`
	Guidance            string   `json:"guidance,omitempty"`
	ContextFromPrevious string   `json:"context_from_previous,omitempty"`
	FocusAreas          []string `json:"focus_areas,omitempty"`
}
