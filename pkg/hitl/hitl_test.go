package hitl

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentflow/pkg/checkpoint"
	"contentflow/pkg/llm"
	"contentflow/pkg/state"
	"contentflow/pkg/tools"
)

func testCoordinator(t *testing.T) (*Coordinator, *checkpoint.Store) {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func TestSuspendAndResume(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	st.CurrentStage = state.StageBriefCompiler

	pause, err := c.Suspend(ctx, st, &tools.Interrupt{
		Question: "Who is the audience?",
		Key:      "brief.audience",
	})
	require.NoError(t, err)
	require.NotNil(t, pause)
	assert.Equal(t, state.StageBriefCompiler, pause.Stage)

	resumed, err := c.Resume(ctx, st.ThreadID, "commuters aged 25-40")
	require.NoError(t, err)

	// The answer arrives as a synthetic user message.
	require.NotEmpty(t, resumed.Messages)
	last := resumed.Messages[len(resumed.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "commuters aged 25-40")
	assert.Contains(t, last.Content, "Who is the audience?")

	// The key is marked answered.
	assert.True(t, resumed.Clarified("brief.audience"))
	assert.Equal(t, state.StageBriefCompiler, resumed.CurrentStage)
}

func TestNonInteractiveSuspendDropsQuestion(t *testing.T) {
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	c := NewNonInteractive(store)
	ctx := context.Background()

	st := state.New("topic", 3)
	st.CurrentStage = state.StageBriefCompiler

	pause, err := c.Suspend(ctx, st, &tools.Interrupt{
		Question: "Who is the audience?",
		Key:      "brief.audience",
	})
	require.NoError(t, err)
	assert.Nil(t, pause)

	// The key counts as answered so the stage takes its default path
	// instead of asking again.
	assert.True(t, st.Clarified("brief.audience"))

	_, err = c.Pending(ctx, st.ThreadID)
	assert.ErrorIs(t, err, ErrNoSuspendedRun)
}

func TestSuspendAnsweredKeyIsNil(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	st.Apply(state.Update{ClarificationKeys: []string{"brief.audience"}})

	pause, err := c.Suspend(ctx, st, &tools.Interrupt{
		Question: "Who is the audience?",
		Key:      "brief.audience",
	})
	require.NoError(t, err)
	assert.Nil(t, pause)
}

func TestResumeWithoutSuspendedRun(t *testing.T) {
	c, store := testCoordinator(t)
	ctx := context.Background()

	_, err := c.Resume(ctx, "thread-unknown", "answer")
	assert.ErrorIs(t, err, ErrNoSuspendedRun)

	// A thread whose latest checkpoint is a routine step is not resumable.
	st := state.New("topic", 3)
	_, err = store.Save(ctx, st, checkpoint.ReasonStep, "", "")
	require.NoError(t, err)

	_, err = c.Resume(ctx, st.ThreadID, "answer")
	assert.ErrorIs(t, err, ErrNoSuspendedRun)
}

func TestResumeEmptyAnswerRejected(t *testing.T) {
	c, _ := testCoordinator(t)

	_, err := c.Resume(context.Background(), "thread-x", "   ")
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	c, _ := testCoordinator(t)
	ctx := context.Background()

	_, err := c.Pending(ctx, "thread-none")
	assert.ErrorIs(t, err, ErrNoSuspendedRun)

	st := state.New("topic", 3)
	st.CurrentStage = state.StageResearch
	_, err = c.Suspend(ctx, st, &tools.Interrupt{Question: "q", Key: "k"})
	require.NoError(t, err)

	pause, err := c.Pending(ctx, st.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "q", pause.Question)
	assert.Equal(t, state.StageResearch, pause.Stage)
}
