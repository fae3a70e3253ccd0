package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentflow/pkg/llm"
	"contentflow/pkg/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoadLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("autumn coffee launch", 3)
	st.CurrentStage = state.StageResearch
	st.Apply(state.Update{
		Messages: []llm.Message{llm.NewUserMessage("start")},
		Brief:    &state.CreativeBrief{Topic: "coffee", Audience: "commuters"},
	})

	id, err := s.Save(ctx, st, ReasonStep, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cp, err := s.LoadLatest(ctx, st.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, id, cp.ID)
	assert.Equal(t, state.StageResearch, cp.Stage)
	assert.Equal(t, ReasonStep, cp.Reason)
	require.NotNil(t, cp.State.Brief)
	assert.Equal(t, "commuters", cp.State.Brief.Audience)
	require.Len(t, cp.State.Messages, 1)
	assert.Equal(t, "start", cp.State.Messages[0].Content)
}

func TestSaveDeduplicatesUnchangedState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("topic", 3)

	id1, err := s.Save(ctx, st, ReasonStep, "", "")
	require.NoError(t, err)
	id2, err := s.Save(ctx, st, ReasonStep, "", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// A changed state produces a new checkpoint.
	st.Apply(state.Update{Summary: state.StrPtr("progress")})
	id3, err := s.Save(ctx, st, ReasonStep, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestSuspendCheckpointCarriesQuestion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	id, err := s.Save(ctx, st, ReasonSuspend, "Which platform?", "brief.platform")
	require.NoError(t, err)

	cp, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonSuspend, cp.Reason)
	assert.Equal(t, "Which platform?", cp.Question)
	assert.Equal(t, "brief.platform", cp.Key)
}

func TestSuspendNotDedupedEvenWhenUnchanged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	id1, err := s.Save(ctx, st, ReasonStep, "", "")
	require.NoError(t, err)
	id2, err := s.Save(ctx, st, ReasonSuspend, "q", "k")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestLoadLatestSuspendSavedSameMillisecond(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	st.CurrentStage = state.StageBriefCompiler

	// A step checkpoint immediately followed by a suspend lands in the same
	// millisecond; LoadLatest must still return the suspend or resume would
	// replay a stale snapshot.
	for i := 0; i < 200; i++ {
		st.Apply(state.Update{Messages: []llm.Message{llm.NewUserMessage("m")}})
		_, err := s.Save(ctx, st, ReasonStep, "", "")
		require.NoError(t, err)
		suspendID, err := s.Save(ctx, st, ReasonSuspend, "Which topic?", "brief.topic")
		require.NoError(t, err)

		cp, err := s.LoadLatest(ctx, st.ThreadID)
		require.NoError(t, err)
		require.Equal(t, suspendID, cp.ID)
		require.Equal(t, ReasonSuspend, cp.Reason)
	}
}

func TestLoadLatestUnknownThread(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadLatest(context.Background(), "thread-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListThreads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := state.New("first", 3)
	b := state.New("second", 3)
	_, err := s.Save(ctx, a, ReasonStep, "", "")
	require.NoError(t, err)
	_, err = s.Save(ctx, b, ReasonStep, "", "")
	require.NoError(t, err)

	threads, err := s.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	// Newest first.
	assert.Equal(t, b.ThreadID, threads[0])
}

func TestGCKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New("topic", 3)
	var lastID string
	for i := 0; i < 5; i++ {
		st.Apply(state.Update{IterationDelta: 1})
		id, err := s.Save(ctx, st, ReasonStep, "", "")
		require.NoError(t, err)
		lastID = id
	}

	pruned, err := s.GC(ctx, st.ThreadID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	cp, err := s.LoadLatest(ctx, st.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, lastID, cp.ID)
}
