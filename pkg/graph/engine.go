package graph

import (
	"context"
	"errors"
	"fmt"

	"contentflow/pkg/checkpoint"
	"contentflow/pkg/events"
	"contentflow/pkg/hitl"
	"contentflow/pkg/logx"
	"contentflow/pkg/router"
	"contentflow/pkg/state"
	"contentflow/pkg/supervisor"
)

// ErrStepBudget is returned when a run exceeds its step budget. The state
// reached so far is still returned and checkpointed.
var ErrStepBudget = errors.New("step budget exhausted")

// Config bounds a run.
type Config struct {
	// MaxSteps caps total node executions per run, supervisor included.
	MaxSteps int
	// CheckpointKeep is how many checkpoints survive GC per thread.
	CheckpointKeep int
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{MaxSteps: 60, CheckpointKeep: 20}
}

// Engine drives the pipeline: supervisor decides, router validates, the
// chosen node runs, the update is merged, and the state is checkpointed.
type Engine struct {
	nodes      *Registry
	supervisor *supervisor.Supervisor
	router     *router.Router
	store      *checkpoint.Store
	pauses     *hitl.Coordinator
	sink       events.Sink
	cfg        Config
	logger     *logx.Logger
}

// NewEngine wires an engine. All collaborators are required except sink,
// which defaults to discarding events.
func NewEngine(
	nodes *Registry,
	sup *supervisor.Supervisor,
	rt *router.Router,
	store *checkpoint.Store,
	pauses *hitl.Coordinator,
	sink events.Sink,
	cfg Config,
) (*Engine, error) {
	if err := nodes.Complete(); err != nil {
		return nil, err
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.CheckpointKeep <= 0 {
		cfg.CheckpointKeep = DefaultConfig().CheckpointKeep
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Engine{
		nodes:      nodes,
		supervisor: sup,
		router:     rt,
		store:      store,
		pauses:     pauses,
		sink:       sink,
		cfg:        cfg,
		logger:     logx.NewLogger("engine"),
	}, nil
}

// Run executes the workflow until it completes, suspends on an operator
// question, or fails. A non-nil Pause means the run is waiting for
// Resume; state and error describe how far it got.
func (e *Engine) Run(ctx context.Context, st *state.State) (*state.State, *hitl.Pause, error) {
	if st.CurrentStage == "" {
		st.CurrentStage = state.StageSupervisor
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, nil, fmt.Errorf("run interrupted: %w", err)
		}
		if st.StepCount >= e.cfg.MaxSteps {
			e.emit(st, events.TypeError, map[string]any{"error": ErrStepBudget.Error()})
			e.checkpointStep(ctx, st)
			return st, nil, ErrStepBudget
		}
		st.StepCount++

		switch st.CurrentStage {
		case state.StageEnd:
			return e.finish(ctx, st)
		case state.StageSupervisor:
			if err := e.superviseStep(ctx, st); err != nil {
				return st, nil, err
			}
		default:
			pause, err := e.nodeStep(ctx, st)
			if err != nil {
				return st, nil, err
			}
			if pause != nil {
				return st, pause, nil
			}
		}

		e.checkpointStep(ctx, st)
	}
}

// Resume folds the operator's answer into the suspended run and continues
// it from the stage that paused.
func (e *Engine) Resume(ctx context.Context, threadID, answer string) (*state.State, *hitl.Pause, error) {
	st, err := e.pauses.Resume(ctx, threadID, answer)
	if err != nil {
		return nil, nil, err
	}
	e.emit(st, events.TypeMessage, map[string]any{"resumed": true})
	return e.Run(ctx, st)
}

func (e *Engine) superviseStep(ctx context.Context, st *state.State) error {
	e.emit(st, events.TypeStageStart, nil)

	decision, err := e.supervisor.Decide(ctx, st)
	if err != nil {
		return err
	}
	if decision != nil {
		st.Apply(state.Update{Decision: decision})
	} else {
		st.Apply(state.Update{ClearDecision: true})
	}

	next := e.router.Next(st, decision)
	e.emit(st, events.TypeStageEnd, map[string]any{"next": string(next)})

	st.CurrentStage = next
	return nil
}

func (e *Engine) nodeStep(ctx context.Context, st *state.State) (*hitl.Pause, error) {
	node, err := e.nodes.Get(st.CurrentStage)
	if err != nil {
		return nil, err
	}

	e.emit(st, events.TypeStageStart, nil)
	res, err := node.Run(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("stage %s failed: %w", st.CurrentStage, err)
	}

	st.Apply(res.Update)

	switch res.Outcome {
	case OutcomeSuspend:
		pause, err := e.pauses.Suspend(ctx, st, res.Interrupt)
		if err != nil {
			return nil, err
		}
		if pause == nil {
			// Question already answered in this run; re-run the stage
			// instead of pausing on a duplicate.
			e.logger.Debug("duplicate question from %s, re-running stage", st.CurrentStage)
			return nil, nil
		}
		e.emit(st, events.TypeAskUser, map[string]any{
			"question": pause.Question,
			"key":      pause.Key,
		})
		e.emit(st, events.TypeWorkflowPaused, map[string]any{"checkpoint": pause.CheckpointID})
		return pause, nil

	case OutcomeFail:
		st.Apply(state.Update{LastError: state.StrPtr(res.FailureCode)})
		e.emit(st, events.TypeError, map[string]any{"code": res.FailureCode})
		st.CurrentStage = state.StageSupervisor
		return nil, nil

	default:
		e.emit(st, events.TypeStageEnd, nil)
		// A stage may carry its own routing decision (the quality gate
		// does); the decision stays in state so the target stage sees
		// its guidance. Otherwise control returns to the supervisor.
		if res.Update.Decision != nil {
			st.CurrentStage = e.router.Next(st, res.Update.Decision)
			return nil, nil
		}
		st.CurrentStage = state.StageSupervisor
		return nil, nil
	}
}

func (e *Engine) finish(ctx context.Context, st *state.State) (*state.State, *hitl.Pause, error) {
	if _, err := e.store.Save(ctx, st, checkpoint.ReasonFinal, "", ""); err != nil {
		e.logger.Warn("failed to write final checkpoint: %v", err)
	}
	if _, err := e.store.GC(ctx, st.ThreadID, e.cfg.CheckpointKeep); err != nil {
		e.logger.Warn("checkpoint GC failed: %v", err)
	}
	e.emit(st, events.TypeWorkflowComplete, map[string]any{
		"steps":      st.StepCount,
		"iterations": st.IterationCount,
	})
	e.logger.Info("workflow %s complete in %d steps", st.ThreadID, st.StepCount)
	return st, nil, nil
}

func (e *Engine) checkpointStep(ctx context.Context, st *state.State) {
	if _, err := e.store.Save(ctx, st, checkpoint.ReasonStep, "", ""); err != nil {
		// Checkpointing is best effort mid-run; a failed save must not
		// abort a workflow that is otherwise making progress.
		e.logger.Warn("step checkpoint failed: %v", err)
	}
}

func (e *Engine) emit(st *state.State, typ events.Type, payload map[string]any) {
	e.sink.Emit(events.New(st.ThreadID, typ, string(st.CurrentStage), payload))
}
