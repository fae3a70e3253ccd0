package state

import (
	"contentflow/pkg/llm"
	"contentflow/pkg/utils"
)

// State is the single source of truth passed between stages. It is mutated
// only by applying stage-returned Updates through the field reducers in
// Apply; stages themselves never write to it.
type State struct {
	ThreadID     string     `json:"thread_id"`
	CurrentStage Stage      `json:"current_stage"`
	StepCount    int        `json:"step_count"`
	Topic        string     `json:"topic"`
	ReferenceImg string     `json:"reference_image,omitempty"`

	Messages []llm.Message `json:"messages"`
	Summary  string        `json:"summary,omitempty"`

	Brief         *CreativeBrief  `json:"brief,omitempty"`
	Evidence      *EvidencePack   `json:"evidence,omitempty"`
	StyleAnalysis *StyleAnalysis  `json:"style_analysis,omitempty"`
	Layout        *LayoutSpec     `json:"layout,omitempty"`
	ImagePlans    []ImagePlan     `json:"image_plans,omitempty"`
	Article       *Article        `json:"article,omitempty"`
	Review        *ReviewFeedback `json:"review,omitempty"`
	Decision      *Decision       `json:"decision,omitempty"`

	GeneratedImagePaths []string `json:"generated_image_paths,omitempty"`
	GeneratedAssetIDs   []string `json:"generated_asset_ids,omitempty"`
	GeneratedImageCount int      `json:"generated_image_count"`

	IterationCount int `json:"iteration_count"`
	MaxIterations  int `json:"max_iterations"`

	ResearchComplete  bool `json:"research_complete"`
	ReferenceAnalyzed bool `json:"reference_analyzed"`
	LayoutComplete    bool `json:"layout_complete"`
	ContentComplete   bool `json:"content_complete"`
	PlanComplete      bool `json:"plan_complete"`
	ImagesComplete    bool `json:"images_complete"`
	ReviewComplete    bool `json:"review_complete"`

	// ClarificationKeys records HITL question keys already asked in this
	// run; a key present here is never asked again.
	ClarificationKeys map[string]bool `json:"clarification_keys,omitempty"`

	// LastError carries the most recent stage-local failure code, for
	// supervisor prompts and diagnostics.
	LastError string `json:"last_error,omitempty"`
}

// New creates the shared state for a fresh workflow run.
func New(topic string, maxIterations int) *State {
	return &State{
		ThreadID:          utils.NewThreadID(),
		Topic:             topic,
		MaxIterations:     maxIterations,
		ClarificationKeys: make(map[string]bool),
	}
}

// Update is a partial state update returned by a stage. Pointer and slice
// fields left nil are not merged; each set field is folded in by its
// reducer (overwrite, append, monotonic max, or counter add).
type Update struct {
	CurrentStage *Stage

	// Append reducers.
	Messages            []llm.Message
	GeneratedImagePaths []string
	GeneratedAssetIDs   []string

	// Overwrite reducers (latest write wins).
	Summary        *string
	ReplaceLog     []llm.Message // compression: replaces the whole message log
	Brief          *CreativeBrief
	Evidence       *EvidencePack
	StyleAnalysis  *StyleAnalysis
	Layout         *LayoutSpec
	ImagePlans     []ImagePlan
	Article        *Article
	Review         *ReviewFeedback
	Decision       *Decision
	ClearDecision  bool
	LastError      *string

	// Monotonic max reducer: tolerates out-of-order or retried tool
	// results without ever decreasing the count.
	GeneratedImageCount *int

	// Counter reducer: added to the running total.
	IterationDelta int

	// Completion flags (overwrite).
	ResearchComplete  *bool
	ReferenceAnalyzed *bool
	LayoutComplete    *bool
	ContentComplete   *bool
	PlanComplete      *bool
	ImagesComplete    *bool
	ReviewComplete    *bool

	// Union reducer.
	ClarificationKeys []string
}

// Apply folds an update into the state using the per-field merge rules.
func (s *State) Apply(u Update) {
	if u.CurrentStage != nil {
		s.CurrentStage = *u.CurrentStage
	}

	if u.ReplaceLog != nil {
		s.Messages = u.ReplaceLog
	}
	s.Messages = append(s.Messages, u.Messages...)
	s.GeneratedImagePaths = append(s.GeneratedImagePaths, u.GeneratedImagePaths...)
	s.GeneratedAssetIDs = append(s.GeneratedAssetIDs, u.GeneratedAssetIDs...)

	if u.Summary != nil {
		s.Summary = *u.Summary
	}
	if u.Brief != nil {
		s.Brief = u.Brief
	}
	if u.Evidence != nil {
		s.Evidence = u.Evidence
	}
	if u.StyleAnalysis != nil {
		s.StyleAnalysis = u.StyleAnalysis
	}
	if u.Layout != nil {
		s.Layout = u.Layout
	}
	if u.ImagePlans != nil {
		s.ImagePlans = u.ImagePlans
	}
	if u.Article != nil {
		s.Article = u.Article
	}
	if u.Review != nil {
		s.Review = u.Review
	}
	if u.Decision != nil {
		s.Decision = u.Decision
	}
	if u.ClearDecision {
		s.Decision = nil
	}
	if u.LastError != nil {
		s.LastError = *u.LastError
	}

	if u.GeneratedImageCount != nil && *u.GeneratedImageCount > s.GeneratedImageCount {
		s.GeneratedImageCount = *u.GeneratedImageCount
	}

	s.IterationCount += u.IterationDelta

	applyFlag(&s.ResearchComplete, u.ResearchComplete)
	applyFlag(&s.ReferenceAnalyzed, u.ReferenceAnalyzed)
	applyFlag(&s.LayoutComplete, u.LayoutComplete)
	applyFlag(&s.ContentComplete, u.ContentComplete)
	applyFlag(&s.PlanComplete, u.PlanComplete)
	applyFlag(&s.ImagesComplete, u.ImagesComplete)
	applyFlag(&s.ReviewComplete, u.ReviewComplete)

	if len(u.ClarificationKeys) > 0 {
		if s.ClarificationKeys == nil {
			s.ClarificationKeys = make(map[string]bool)
		}
		for _, k := range u.ClarificationKeys {
			s.ClarificationKeys[k] = true
		}
	}
}

func applyFlag(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Clarified reports whether the given HITL question key was already asked.
func (s *State) Clarified(key string) bool {
	return s.ClarificationKeys[key]
}

// BudgetExhausted reports whether the iteration budget is spent.
func (s *State) BudgetExhausted() bool {
	return s.IterationCount >= s.MaxIterations
}

// Clone returns a deep copy, used when snapshotting for checkpoints.
func (s *State) Clone() *State {
	c := *s

	c.Messages = append([]llm.Message(nil), s.Messages...)
	c.GeneratedImagePaths = append([]string(nil), s.GeneratedImagePaths...)
	c.GeneratedAssetIDs = append([]string(nil), s.GeneratedAssetIDs...)
	c.ImagePlans = append([]ImagePlan(nil), s.ImagePlans...)

	if s.Brief != nil {
		b := *s.Brief
		b.Constraints = append([]string(nil), s.Brief.Constraints...)
		b.Keywords = append([]string(nil), s.Brief.Keywords...)
		c.Brief = &b
	}
	if s.Evidence != nil {
		e := *s.Evidence
		e.Items = append([]EvidenceItem(nil), s.Evidence.Items...)
		c.Evidence = &e
	}
	if s.StyleAnalysis != nil {
		sa := *s.StyleAnalysis
		c.StyleAnalysis = &sa
	}
	if s.Layout != nil {
		l := *s.Layout
		l.Images = append([]ImageLayout(nil), s.Layout.Images...)
		c.Layout = &l
	}
	if s.Article != nil {
		a := *s.Article
		c.Article = &a
	}
	if s.Review != nil {
		r := *s.Review
		if s.Review.Scores != nil {
			sc := *s.Review.Scores
			r.Scores = &sc
		}
		c.Review = &r
	}
	if s.Decision != nil {
		d := *s.Decision
		c.Decision = &d
	}

	c.ClarificationKeys = make(map[string]bool, len(s.ClarificationKeys))
	for k, v := range s.ClarificationKeys {
		c.ClarificationKeys[k] = v
	}

	return &c
}

// Ptr helpers keep Update literals readable.

// StagePtr returns a pointer to the given stage value.
func StagePtr(s Stage) *Stage { return &s }

// BoolPtr returns a pointer to the given bool value.
func BoolPtr(b bool) *bool { return &b }

// StrPtr returns a pointer to the given string value.
func StrPtr(v string) *string { return &v }

// IntPtr returns a pointer to the given int value.
func IntPtr(v int) *int { return &v }
