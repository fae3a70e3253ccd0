// Package gate implements the quality gate that decides, after each review,
// whether the piece ships or goes back for another revision pass.
package gate

import (
	"fmt"

	"contentflow/pkg/config"
	"contentflow/pkg/logx"
	"contentflow/pkg/state"
)

// Verdict is the gate's outcome for one review.
type Verdict struct {
	// Approved means every dimension cleared its threshold.
	Approved bool
	// Terminated means the revision budget is spent; the piece ships
	// as-is regardless of scores.
	Terminated bool
	// Target is the stage that should fix the highest-priority failing
	// dimension. Zero value when Approved or Terminated.
	Target state.Stage
	// FailedDimension is the dimension that picked the target. Empty when
	// the retry comes from the reviewer's verdict rather than a score.
	FailedDimension string
	// Reason explains the verdict in guidance-ready prose.
	Reason string
}

// retryTarget maps each quality dimension to the stage best placed to fix
// it. Dimensions are checked in declared priority order and the first
// failure wins, so one pass fixes one thing.
var retryTarget = map[string]state.Stage{ //nolint:gochecknoglobals // closed mapping over the dimension set
	state.DimInfoDensity:        state.StageResearch,
	state.DimTextImageAlignment: state.StageLayoutPlanner,
	state.DimStyleConsistency:   state.StageReferenceAnalyzer,
	state.DimReadability:        state.StageImagePlanner,
	state.DimPlatformFit:        state.StageWriter,
}

// Gate evaluates review feedback against configured thresholds.
type Gate struct {
	quality *config.QualityCfg
	logger  *logx.Logger
}

// New creates a gate over the given thresholds.
func New(quality *config.QualityCfg) *Gate {
	return &Gate{
		quality: quality,
		logger:  logx.NewLogger("quality-gate"),
	}
}

// Evaluate scores the review. When a retry is ordered the caller must also
// apply an iteration increment; Evaluate itself never mutates state.
func (g *Gate) Evaluate(st *state.State, review *state.ReviewFeedback) Verdict {
	if st.BudgetExhausted() {
		g.logger.Warn("revision budget exhausted after %d iterations, shipping as-is", st.IterationCount)
		return Verdict{Terminated: true}
	}

	if review == nil || review.Scores == nil {
		// An unusable review cannot justify another model-expensive
		// pass; treat it as approval rather than looping.
		g.logger.Warn("review carried no scores, approving by default")
		return Verdict{Approved: true}
	}

	if dim, ok := g.firstFailing(review.Scores); ok {
		target := retryTarget[dim]
		g.logger.Info("dimension %s below threshold (%.2f < %.2f), retrying via %s",
			dim, review.Scores.Score(dim), g.quality.Threshold(dim), target)
		return Verdict{
			Target:          target,
			FailedDimension: dim,
			Reason:          fmt.Sprintf("%s scored below threshold", dim),
		}
	}

	// Scores alone do not ship the piece: an explicit rejection from the
	// reviewer holds even when every dimension clears its threshold.
	if !review.Approved {
		target := rejectionTarget(review.TargetAgent)
		g.logger.Info("reviewer rejected despite passing scores, retrying via %s", target)
		return Verdict{Target: target, Reason: "the reviewer rejected the piece"}
	}

	return Verdict{Approved: true}
}

// rejectionTarget picks the stage to rerun for a score-less rejection. The
// reviewer may name one; anything unrunnable falls back to the writer.
func rejectionTarget(named state.Stage) state.Stage {
	if named.Runnable() && named != state.StageSupervisor && named != state.StageReviewer {
		return named
	}
	return state.StageWriter
}

// firstFailing returns the highest-priority dimension below its threshold.
func (g *Gate) firstFailing(scores *state.QualityScores) (string, bool) {
	for _, dim := range state.QualityDimensions {
		if scores.Score(dim) < g.quality.Threshold(dim) {
			return dim, true
		}
	}
	return "", false
}
