package events

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	e1 := New("thread-1", TypeStageStart, "writer_agent", nil)
	e2 := New("thread-1", TypeToolCall, "research_evidence_agent", map[string]any{
		"tool": "web_search",
	})
	require.NoError(t, w.Write(e1))
	require.NoError(t, w.Write(e2))

	got, err := ReadEvents(w.CurrentLogFile())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, e1.ID, got[0].ID)
	assert.Equal(t, TypeStageStart, got[0].Type)
	assert.Equal(t, "writer_agent", got[0].Stage)
	assert.Equal(t, TypeToolCall, got[1].Type)
	assert.Equal(t, "web_search", got[1].Payload["tool"])
}

func TestWriterListLogFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.Write(New("thread-1", TypeMessage, "", nil)))
	require.NoError(t, w.Close())

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "events-", filepath.Base(files[0])[:7])
}

func TestEventIDsAreSortable(t *testing.T) {
	a := New("thread-1", TypeMessage, "", nil)
	b := New("thread-1", TypeMessage, "", nil)
	assert.Less(t, a.ID, b.ID)
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel1()
	defer cancel2()

	e := New("thread-1", TypeStageEnd, "review_agent", nil)
	bus.Emit(e)

	assert.Equal(t, e.ID, (<-ch1).ID)
	assert.Equal(t, e.ID, (<-ch2).ID)
}

func TestBusDropsOldestWhenSlow(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	var last Event
	for i := 0; i < subscriberBuffer+10; i++ {
		last = New("thread-1", TypeMessage, "", nil)
		bus.Emit(last)
	}

	// Drain: the newest event must still be present.
	var seen []Event
	for len(ch) > 0 {
		seen = append(seen, <-ch)
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, last.ID, seen[len(seen)-1].ID)
	assert.Len(t, seen, subscriberBuffer)
}

func TestMultiSink(t *testing.T) {
	var a, b []Event
	sink := Multi(
		SinkFunc(func(e Event) { a = append(a, e) }),
		SinkFunc(func(e Event) { b = append(b, e) }),
	)

	sink.Emit(New("thread-1", TypeError, "", map[string]any{"error": "boom"}))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
}
