package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"contentflow/pkg/state"
)

func fullState() *state.State {
	st := state.New("topic", 3)
	st.Apply(state.Update{
		Brief:            &state.CreativeBrief{Topic: "t"},
		Evidence:         &state.EvidencePack{Items: []state.EvidenceItem{{Fact: "f"}}},
		Layout:           &state.LayoutSpec{Images: []state.ImageLayout{{ImageSeq: 1}}},
		ImagePlans:       []state.ImagePlan{{Sequence: 1}},
		Article:          &state.Article{Title: "T", Body: "b"},
		ResearchComplete: state.BoolPtr(true),
		LayoutComplete:   state.BoolPtr(true),
		ContentComplete:  state.BoolPtr(true),
		PlanComplete:     state.BoolPtr(true),
		ImagesComplete:   state.BoolPtr(true),
		ReviewComplete:   state.BoolPtr(true),
	})
	return st
}

func TestNextFollowsValidDecision(t *testing.T) {
	r := New()
	st := fullState()

	next := r.Next(st, &state.Decision{NextStage: state.StageWriter})
	assert.Equal(t, state.StageWriter, next)
}

func TestNextWriterWithoutBriefRoutesToBriefCompiler(t *testing.T) {
	r := New()
	st := state.New("topic", 3)

	next := r.Next(st, &state.Decision{NextStage: state.StageWriter})
	assert.Equal(t, state.StageBriefCompiler, next)
}

func TestNextReviewWithoutContentRoutesToWriter(t *testing.T) {
	r := New()
	st := state.New("topic", 3)
	st.Apply(state.Update{Brief: &state.CreativeBrief{Topic: "t"}})

	next := r.Next(st, &state.Decision{NextStage: state.StageReviewer})
	assert.Equal(t, state.StageWriter, next)
}

func TestNextImageGeneratorWithoutPlansRoutesToPlanner(t *testing.T) {
	r := New()
	st := state.New("topic", 3)
	st.Apply(state.Update{
		Brief:          &state.CreativeBrief{Topic: "t"},
		Layout:         &state.LayoutSpec{Images: []state.ImageLayout{{ImageSeq: 1}}},
		LayoutComplete: state.BoolPtr(true),
	})

	next := r.Next(st, &state.Decision{NextStage: state.StageImageGenerator})
	assert.Equal(t, state.StageImagePlanner, next)
}

func TestNextNeverReturnsSupervisor(t *testing.T) {
	r := New()
	st := state.New("topic", 3)

	next := r.Next(st, &state.Decision{NextStage: state.StageSupervisor})
	assert.Equal(t, state.StageBriefCompiler, next)
}

func TestNextNilDecisionUsesDefaultOrder(t *testing.T) {
	r := New()
	st := state.New("topic", 3)

	assert.Equal(t, state.StageBriefCompiler, r.Next(st, nil))

	st.Apply(state.Update{Brief: &state.CreativeBrief{Topic: "t"}})
	assert.Equal(t, state.StageResearch, r.Next(st, nil))
}

func TestNextPrematureEndIsRedirected(t *testing.T) {
	r := New()
	st := state.New("topic", 3)

	next := r.Next(st, &state.Decision{NextStage: state.StageEnd})
	assert.Equal(t, state.StageBriefCompiler, next)
}

func TestNextEndAllowedWhenComplete(t *testing.T) {
	r := New()

	next := r.Next(fullState(), &state.Decision{NextStage: state.StageEnd})
	assert.Equal(t, state.StageEnd, next)
}

func TestCanTerminateOnExhaustedBudget(t *testing.T) {
	st := state.New("topic", 2)
	st.Apply(state.Update{IterationDelta: 2})

	assert.True(t, CanTerminate(st))
}

func TestDefaultNextSkipsReferenceAnalysisWithoutReferenceImage(t *testing.T) {
	st := state.New("topic", 3)
	st.Apply(state.Update{
		Brief:            &state.CreativeBrief{Topic: "t"},
		ResearchComplete: state.BoolPtr(true),
	})

	assert.Equal(t, state.StageLayoutPlanner, DefaultNext(st))

	st.ReferenceImg = "ref.png"
	assert.Equal(t, state.StageReferenceAnalyzer, DefaultNext(st))
}

func TestDefaultNextEndsWhenEverythingDone(t *testing.T) {
	assert.Equal(t, state.StageEnd, DefaultNext(fullState()))
}
