package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"contentflow/pkg/logx"
)

// ExecutorConfig bounds tool execution.
type ExecutorConfig struct {
	// CallTimeout caps each individual tool call.
	CallTimeout time.Duration
	// MaxRetries is the number of re-attempts after a failed call.
	MaxRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// DefaultExecutorConfig returns the standard execution bounds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CallTimeout: 60 * time.Second,
		MaxRetries:  2,
		RetryDelay:  2 * time.Second,
	}
}

// Executor runs batches of model-requested tool calls against a registry.
// Calls in a batch run concurrently; results come back in request order.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
	logger   *logx.Logger
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, cfg ExecutorConfig) *Executor {
	return &Executor{
		registry: registry,
		cfg:      cfg,
		logger:   logx.NewLogger("tool-exec"),
	}
}

// ExecuteBatch runs all calls and returns one result per call, in the same
// order. If any call is ask_user, the returned Interrupt is non-nil and the
// caller must suspend the workflow; the remaining results are still valid.
// A failed call produces a Result with Err set, never a batch error.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call) ([]Result, *Interrupt, error) {
	if len(calls) == 0 {
		return nil, nil, nil
	}

	results := make([]Result, len(calls))
	interrupts := make([]*Interrupt, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i], interrupts[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, nil, fmt.Errorf("tool batch interrupted: %w", err)
	}

	// First interrupt in request order wins.
	for _, intr := range interrupts {
		if intr != nil {
			return results, intr, nil
		}
	}
	return results, nil, nil
}

func (e *Executor) executeOne(ctx context.Context, call Call) (Result, *Interrupt) {
	res := Result{CallID: call.ID, Name: call.Name}

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		res.Err = err.Error()
		return res, nil
	}

	if err := e.registry.Validate(call.Name, call.Params); err != nil {
		// Invalid arguments go back to the model verbatim so it can
		// correct the call; retrying identical bad input is pointless.
		res.Err = err.Error()
		return res, nil
	}

	var out any
	for attempt := 0; ; attempt++ {
		out, err = e.runWithTimeout(ctx, tool, call.Params)
		if err == nil {
			break
		}
		if attempt >= e.cfg.MaxRetries || ctx.Err() != nil {
			e.logger.Warn("tool %s failed after %d attempts: %v", call.Name, attempt+1, err)
			res.Err = err.Error()
			return res, nil
		}
		e.logger.Debug("tool %s attempt %d failed, retrying: %v", call.Name, attempt+1, err)
		select {
		case <-time.After(e.cfg.RetryDelay):
		case <-ctx.Done():
			res.Err = ctx.Err().Error()
			return res, nil
		}
	}

	if intr, ok := out.(*Interrupt); ok {
		res.Content = fmt.Sprintf("waiting for operator: %s", intr.Question)
		return res, intr
	}

	res.Content = stringifyResult(out)
	return res, nil
}

func (e *Executor) runWithTimeout(ctx context.Context, tool Tool, params map[string]any) (any, error) {
	callCtx := ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	return tool.Exec(callCtx, params)
}

// stringifyResult renders a tool's return value for the conversation log.
func stringifyResult(out any) string {
	switch v := out.(type) {
	case nil:
		return "ok"
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
