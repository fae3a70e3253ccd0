package supervisor

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"contentflow/pkg/state"
	"contentflow/pkg/utils"
)

// MaxGuidanceLen is the default cap on supervisor guidance carried between
// stages. Overridable per supervisor via Options.
const MaxGuidanceLen = 500

// rawDecision mirrors the JSON shape the supervisor is asked to produce.
type rawDecision struct {
	NextStage           string   `json:"next_stage"`
	Guidance            string   `json:"guidance"`
	ContextFromPrevious string   `json:"context_from_previous"`
	FocusAreas          []string `json:"focus_areas"`
}

// ParseDecision extracts a routing decision from model output. The output
// must contain a JSON object with a valid next_stage; anything else yields
// nil, and the router falls back to the default pipeline order. Parsing is
// strict on structure but tolerant of the code fences models wrap JSON in.
func ParseDecision(content string) *state.Decision {
	return parseDecision(content, MaxGuidanceLen)
}

func parseDecision(content string, maxGuidance int) *state.Decision {
	if maxGuidance <= 0 {
		maxGuidance = MaxGuidanceLen
	}
	payload := utils.ExtractJSONObject(content)
	if payload == "" {
		return nil
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil
	}

	stage, ok := state.ParseStage(strings.TrimSpace(raw.NextStage))
	if !ok {
		return nil
	}

	return &state.Decision{
		NextStage:           stage,
		Guidance:            truncate(raw.Guidance, maxGuidance),
		ContextFromPrevious: truncate(raw.ContextFromPrevious, maxGuidance),
		FocusAreas:          raw.FocusAreas,
	}
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
