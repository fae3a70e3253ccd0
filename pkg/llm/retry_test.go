package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	mock := NewMockClient(
		[]CompletionResponse{{Content: "ok"}},
		[]error{
			NewTransientError(errors.New("connection reset")),
			NewTransientError(errors.New("timeout")),
		},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	resp, err := client.Complete(context.Background(), NewCompletionRequest("", []Message{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRetryGivesUpOnPermanentError(t *testing.T) {
	mock := NewMockClient(nil, []error{errors.New("401 unauthorized")})
	client := NewRetryableClient(mock, fastRetryConfig(3))

	_, err := client.Complete(context.Background(), NewCompletionRequest("", []Message{NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount(), "permanent errors are not retried")
}

func TestRetryExhaustsBudget(t *testing.T) {
	mock := NewMockClient(nil, []error{
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
		errors.New("503 service unavailable"),
	})
	client := NewRetryableClient(mock, fastRetryConfig(2))

	_, err := client.Complete(context.Background(), NewCompletionRequest("", []Message{NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	mock := NewMockClient(nil, []error{errors.New("timeout"), errors.New("timeout")})
	client := NewRetryableClient(mock, RetryConfig{
		MaxRetries:    5,
		InitialDelay:  time.Hour,
		MaxDelay:      time.Hour,
		BackoffFactor: 1.0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, NewCompletionRequest("", []Message{NewUserMessage("hi")}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldRetryClassification(t *testing.T) {
	assert.True(t, shouldRetry(errors.New("rate limit exceeded 429")))
	assert.True(t, shouldRetry(errors.New("empty response")))
	assert.True(t, shouldRetry(NewTransientError(errors.New("anything"))))
	assert.False(t, shouldRetry(errors.New("invalid request")))
}
