// Package router turns supervisor decisions into the stage that actually
// runs next. Every decision passes through precondition checks; a stage
// whose inputs are missing is replaced by the stage that produces them.
package router

import (
	"contentflow/pkg/logx"
	"contentflow/pkg/state"
)

// Router resolves the next stage from a decision and the current state.
type Router struct {
	logger *logx.Logger
}

// New creates a router.
func New() *Router {
	return &Router{logger: logx.NewLogger("router")}
}

// Next resolves the stage to run after the supervisor. A nil decision falls
// back to the default pipeline order. The result is always a runnable stage
// or StageEnd; it is never the supervisor itself.
func (r *Router) Next(st *state.State, decision *state.Decision) state.Stage {
	if decision == nil {
		next := DefaultNext(st)
		r.logger.Debug("no decision, default order picks %s", next)
		return next
	}

	target := decision.NextStage

	// The supervisor cannot schedule itself; that would loop forever.
	if target == state.StageSupervisor {
		next := DefaultNext(st)
		r.logger.Warn("decision targeted the supervisor, default order picks %s", next)
		return next
	}

	if target == state.StageEnd {
		if CanTerminate(st) {
			return state.StageEnd
		}
		next := DefaultNext(st)
		r.logger.Warn("premature END decision, default order picks %s", next)
		return next
	}

	if fallback, ok := precondition(st, target); !ok {
		r.logger.Info("stage %s missing inputs, routing to %s first", target, fallback)
		return fallback
	}
	return target
}

// precondition reports whether target's inputs exist; if not it returns the
// stage that produces them.
func precondition(st *state.State, target state.Stage) (state.Stage, bool) {
	switch target {
	case state.StageResearch, state.StageLayoutPlanner, state.StageReferenceAnalyzer:
		if st.Brief == nil {
			return state.StageBriefCompiler, false
		}
	case state.StageWriter:
		if st.Brief == nil {
			return state.StageBriefCompiler, false
		}
	case state.StageImagePlanner:
		if st.Layout == nil {
			return state.StageLayoutPlanner, false
		}
	case state.StageImageGenerator:
		if !st.PlanComplete || len(st.ImagePlans) == 0 {
			return state.StageImagePlanner, false
		}
	case state.StageReviewer:
		if !st.ContentComplete || st.Article == nil {
			return state.StageWriter, false
		}
	}
	return target, true
}

// CanTerminate reports whether the workflow may end: the piece is written
// and reviewed, or the revision budget is spent.
func CanTerminate(st *state.State) bool {
	if st.ContentComplete && st.ReviewComplete {
		return true
	}
	return st.BudgetExhausted()
}

// DefaultNext walks the pipeline in declaration order and returns the first
// stage whose output is missing. With everything done it returns StageEnd.
func DefaultNext(st *state.State) state.Stage {
	switch {
	case st.Brief == nil:
		return state.StageBriefCompiler
	case !st.ResearchComplete:
		return state.StageResearch
	case st.ReferenceImg != "" && !st.ReferenceAnalyzed:
		return state.StageReferenceAnalyzer
	case !st.LayoutComplete:
		return state.StageLayoutPlanner
	case !st.ContentComplete:
		return state.StageWriter
	case !st.PlanComplete:
		return state.StageImagePlanner
	case !st.ImagesComplete:
		return state.StageImageGenerator
	case !st.ReviewComplete:
		return state.StageReviewer
	default:
		return state.StageEnd
	}
}
