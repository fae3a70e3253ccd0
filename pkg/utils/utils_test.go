package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, tc.CountTokens(""))
	assert.Greater(t, tc.CountTokens("The quick brown fox jumps over the lazy dog."), 5)

	// A longer text must count more tokens than a shorter prefix of it.
	long := strings.Repeat("evidence gathering and layout planning ", 50)
	assert.Greater(t, tc.CountTokens(long), tc.CountTokens(long[:100]))
}

func TestIdentifiers(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewThreadID(), "thread-"))
	assert.True(t, strings.HasPrefix(NewMessageID(), "msg-"))
	assert.NotEqual(t, NewThreadID(), NewThreadID())

	// ULIDs are 26 chars and sort by creation time.
	a := NewCheckpointID()
	b := NewCheckpointID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestCheckpointIDsStrictlyIncreasing(t *testing.T) {
	// Many IDs land in the same millisecond; mint order must survive a
	// lexicographic sort anyway, since the store orders by id.
	prev := NewCheckpointID()
	for i := 0; i < 5000; i++ {
		id := NewCheckpointID()
		require.Less(t, prev, id)
		prev = id
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "thread-abc-001", SanitizeIdentifier("thread:abc/001"))
}
