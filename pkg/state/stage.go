// Package state defines the shared workflow state threaded through every
// stage, the closed set of stage identifiers, and the field-level merge
// rules applied to partial updates.
package state

// Stage identifies one node in the orchestration graph. The set is closed:
// routing code switches exhaustively over these values instead of comparing
// free-form strings.
type Stage string

const (
	StageSupervisor        Stage = "supervisor_agent"
	StageBriefCompiler     Stage = "brief_compiler_agent"
	StageResearch          Stage = "research_evidence_agent"
	StageReferenceAnalyzer Stage = "reference_analyzer_agent"
	StageLayoutPlanner     Stage = "layout_planner_agent"
	StageWriter            Stage = "writer_agent"
	StageImagePlanner      Stage = "image_planner_agent"
	StageImageGenerator    Stage = "image_generator_agent"
	StageReviewer          Stage = "review_agent"

	// StageEnd is the terminal symbol. It is not a runnable stage.
	StageEnd Stage = "END"
)

// PipelineStages lists the runnable stages in their default execution order.
// The supervisor is not included; it is the decision node, not a phase.
var PipelineStages = []Stage{ //nolint:gochecknoglobals // closed, immutable enumeration
	StageBriefCompiler,
	StageResearch,
	StageReferenceAnalyzer,
	StageLayoutPlanner,
	StageWriter,
	StageImagePlanner,
	StageImageGenerator,
	StageReviewer,
}

// ParseStage resolves a model-provided stage name. Only exact identifiers
// and the terminal spellings "END", "end", "__end__" are accepted; anything
// else is rejected rather than guessed.
func ParseStage(raw string) (Stage, bool) {
	switch raw {
	case "END", "end", "__end__":
		return StageEnd, true
	case string(StageSupervisor):
		return StageSupervisor, true
	}
	for _, s := range PipelineStages {
		if raw == string(s) {
			return s, true
		}
	}
	return "", false
}

// Runnable reports whether the stage can be executed by the engine.
func (s Stage) Runnable() bool {
	if s == StageSupervisor {
		return true
	}
	for _, p := range PipelineStages {
		if s == p {
			return true
		}
	}
	return false
}

func (s Stage) String() string { return string(s) }
