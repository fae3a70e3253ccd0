package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for transient model failures.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryableError lets errors opt in or out of retry.
type RetryableError interface {
	error
	ShouldRetry() bool
}

// TransientError wraps an error that should be retried.
type TransientError struct {
	Underlying error
}

func (e *TransientError) Error() string     { return fmt.Sprintf("transient error: %v", e.Underlying) }
func (e *TransientError) ShouldRetry() bool { return true }
func (e *TransientError) Unwrap() error     { return e.Underlying }

// NewTransientError creates a retryable error.
func NewTransientError(err error) *TransientError {
	return &TransientError{Underlying: err}
}

// RetryableClient wraps a Client with bounded exponential-backoff retry.
type RetryableClient struct {
	client Client
	config RetryConfig
}

// NewRetryableClient creates a retrying decorator around client.
func NewRetryableClient(client Client, config RetryConfig) *RetryableClient {
	return &RetryableClient{client: client, config: config}
}

// Complete implements Client with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err()
			case <-time.After(r.calculateDelay(attempt)):
			}
		}

		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			break
		}
	}

	return CompletionResponse{}, fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

func (r *RetryableClient) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter {
		jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1)) //nolint:gosec // jitter does not need crypto randomness
		delay += jitter
	}
	return delay
}

// shouldRetry classifies an error as transient or permanent. Vendors wrap
// failures inconsistently, so unknown errors fall back to message matching.
func shouldRetry(err error) bool {
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.ShouldRetry()
	}

	errStr := err.Error()

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	if strings.Contains(errStr, "empty response") {
		return true
	}

	return false
}
