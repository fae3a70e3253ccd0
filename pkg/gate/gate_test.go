package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contentflow/pkg/config"
	"contentflow/pkg/state"
)

func testGate() *Gate {
	return New(&config.QualityCfg{Default: 0.6})
}

func passingScores() *state.QualityScores {
	return &state.QualityScores{
		InfoDensity:        0.8,
		TextImageAlignment: 0.8,
		StyleConsistency:   0.8,
		Readability:        0.8,
		PlatformFit:        0.8,
	}
}

func TestEvaluateApprovesWhenAllDimensionsPass(t *testing.T) {
	st := state.New("topic", 3)
	v := testGate().Evaluate(st, &state.ReviewFeedback{Approved: true, Scores: passingScores()})

	assert.True(t, v.Approved)
	assert.False(t, v.Terminated)
}

func TestEvaluateLowInfoDensityTargetsResearch(t *testing.T) {
	st := state.New("topic", 3)
	scores := passingScores()
	scores.InfoDensity = 0.4

	v := testGate().Evaluate(st, &state.ReviewFeedback{Scores: scores})

	assert.False(t, v.Approved)
	assert.Equal(t, state.StageResearch, v.Target)
	assert.Equal(t, state.DimInfoDensity, v.FailedDimension)
}

func TestEvaluateFirstFailingDimensionWins(t *testing.T) {
	st := state.New("topic", 3)
	scores := passingScores()
	// Both fail; info_density has higher priority than platform_fit.
	scores.InfoDensity = 0.3
	scores.PlatformFit = 0.2

	v := testGate().Evaluate(st, &state.ReviewFeedback{Scores: scores})
	assert.Equal(t, state.DimInfoDensity, v.FailedDimension)
	assert.Equal(t, state.StageResearch, v.Target)
}

func TestEvaluateRetryTargetsPerDimension(t *testing.T) {
	cases := map[string]state.Stage{
		state.DimInfoDensity:        state.StageResearch,
		state.DimTextImageAlignment: state.StageLayoutPlanner,
		state.DimStyleConsistency:   state.StageReferenceAnalyzer,
		state.DimReadability:        state.StageImagePlanner,
		state.DimPlatformFit:        state.StageWriter,
	}

	for dim, want := range cases {
		t.Run(dim, func(t *testing.T) {
			st := state.New("topic", 3)
			scores := passingScores()
			switch dim {
			case state.DimInfoDensity:
				scores.InfoDensity = 0.1
			case state.DimTextImageAlignment:
				scores.TextImageAlignment = 0.1
			case state.DimStyleConsistency:
				scores.StyleConsistency = 0.1
			case state.DimReadability:
				scores.Readability = 0.1
			case state.DimPlatformFit:
				scores.PlatformFit = 0.1
			}

			v := testGate().Evaluate(st, &state.ReviewFeedback{Scores: scores})
			assert.Equal(t, want, v.Target)
		})
	}
}

func TestEvaluateRejectionOverridesPassingScores(t *testing.T) {
	st := state.New("topic", 3)
	v := testGate().Evaluate(st, &state.ReviewFeedback{Approved: false, Scores: passingScores()})

	assert.False(t, v.Approved, "gate approved a review the reviewer explicitly rejected")
	assert.Equal(t, state.StageWriter, v.Target)
	assert.NotEmpty(t, v.Reason)
}

func TestEvaluateRejectionHonorsNamedTarget(t *testing.T) {
	st := state.New("topic", 3)
	v := testGate().Evaluate(st, &state.ReviewFeedback{
		Approved:    false,
		TargetAgent: state.StageLayoutPlanner,
		Scores:      passingScores(),
	})

	assert.False(t, v.Approved)
	assert.Equal(t, state.StageLayoutPlanner, v.Target)
}

func TestEvaluateRejectionIgnoresUnrunnableTarget(t *testing.T) {
	st := state.New("topic", 3)
	for _, named := range []state.Stage{state.StageSupervisor, state.StageReviewer, state.Stage("nope"), ""} {
		v := testGate().Evaluate(st, &state.ReviewFeedback{
			Approved:    false,
			TargetAgent: named,
			Scores:      passingScores(),
		})
		assert.Equal(t, state.StageWriter, v.Target)
	}
}

func TestEvaluateExhaustedBudgetTerminates(t *testing.T) {
	st := state.New("topic", 2)
	st.Apply(state.Update{IterationDelta: 2})
	scores := passingScores()
	scores.InfoDensity = 0.1

	v := testGate().Evaluate(st, &state.ReviewFeedback{Scores: scores})
	assert.True(t, v.Terminated)
	assert.False(t, v.Approved)
}

func TestEvaluateMissingScoresApproves(t *testing.T) {
	st := state.New("topic", 3)

	assert.True(t, testGate().Evaluate(st, nil).Approved)
	assert.True(t, testGate().Evaluate(st, &state.ReviewFeedback{}).Approved)
}

func TestEvaluateHonorsPerDimensionThreshold(t *testing.T) {
	g := New(&config.QualityCfg{
		Default:    0.6,
		Dimensions: map[string]float64{state.DimReadability: 0.9},
	})

	st := state.New("topic", 3)
	scores := passingScores() // readability 0.8, below the raised bar

	v := g.Evaluate(st, &state.ReviewFeedback{Scores: scores})
	assert.Equal(t, state.DimReadability, v.FailedDimension)
	assert.Equal(t, state.StageImagePlanner, v.Target)
}
