// Package hitl coordinates human-in-the-loop pauses: persisting a suspend
// checkpoint when a stage asks the operator a question, and rebuilding the
// run when the answer arrives.
package hitl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contentflow/pkg/checkpoint"
	"contentflow/pkg/llm"
	"contentflow/pkg/logx"
	"contentflow/pkg/state"
	"contentflow/pkg/tools"
)

// ErrNoSuspendedRun is returned when resume finds no suspended workflow.
var ErrNoSuspendedRun = errors.New("no suspended run for thread")

// Pause describes a suspended workflow awaiting an operator answer.
type Pause struct {
	CheckpointID string
	ThreadID     string
	Stage        state.Stage
	Question     string
	Key          string
}

// Coordinator persists and restores human-in-the-loop pauses.
type Coordinator struct {
	store       *checkpoint.Store
	interactive bool
	logger      *logx.Logger
}

// New creates a coordinator over the checkpoint store.
func New(store *checkpoint.Store) *Coordinator {
	return &Coordinator{
		store:       store,
		interactive: true,
		logger:      logx.NewLogger("hitl"),
	}
}

// NewNonInteractive creates a coordinator with no resumable operator
// session. Clarification requests return nil instead of pausing, so stages
// proceed on their default path.
func NewNonInteractive(store *checkpoint.Store) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logx.NewLogger("hitl"),
	}
}

// Suspend checkpoints the state with the pending question. Returns nil when
// the question's key was already answered in this run, or when there is no
// operator session to wait on; the caller should drop the interrupt and
// continue instead of pausing.
func (c *Coordinator) Suspend(ctx context.Context, st *state.State, intr *tools.Interrupt) (*Pause, error) {
	if intr == nil {
		return nil, fmt.Errorf("cannot suspend without an interrupt")
	}
	if st.Clarified(intr.Key) {
		c.logger.Info("question %s already answered, not suspending again", intr.Key)
		return nil, nil
	}
	if !c.interactive {
		// Marking the key answered stops the stage from asking again and
		// sends it down its default path on the rerun.
		c.logger.Info("no operator session, dropping question %s", intr.Key)
		st.Apply(state.Update{ClarificationKeys: []string{intr.Key}})
		return nil, nil
	}

	id, err := c.store.Save(ctx, st, checkpoint.ReasonSuspend, intr.Question, intr.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to checkpoint suspended run: %w", err)
	}

	c.logger.Info("suspended %s at %s: %s", st.ThreadID, st.CurrentStage, intr.Question)
	return &Pause{
		CheckpointID: id,
		ThreadID:     st.ThreadID,
		Stage:        st.CurrentStage,
		Question:     intr.Question,
		Key:          intr.Key,
	}, nil
}

// Pending returns the open pause for a thread, or ErrNoSuspendedRun.
func (c *Coordinator) Pending(ctx context.Context, threadID string) (*Pause, error) {
	cp, err := c.store.LoadLatest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, ErrNoSuspendedRun
	}
	if err != nil {
		return nil, err
	}
	if cp.Reason != checkpoint.ReasonSuspend {
		return nil, ErrNoSuspendedRun
	}
	return &Pause{
		CheckpointID: cp.ID,
		ThreadID:     cp.ThreadID,
		Stage:        cp.Stage,
		Question:     cp.Question,
		Key:          cp.Key,
	}, nil
}

// Resume rebuilds the suspended state with the operator's answer folded in
// as a synthetic user message, and the question key marked answered so it
// is never asked again. The pipeline re-enters at the stage that paused.
func (c *Coordinator) Resume(ctx context.Context, threadID, answer string) (*state.State, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("answer cannot be empty")
	}

	cp, err := c.store.LoadLatest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, ErrNoSuspendedRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load suspended run: %w", err)
	}
	if cp.Reason != checkpoint.ReasonSuspend {
		return nil, ErrNoSuspendedRun
	}

	st := cp.State
	st.Apply(state.Update{
		Messages: []llm.Message{
			llm.NewUserMessage(fmt.Sprintf("Operator answer to %q: %s", cp.Question, answer)),
		},
		ClarificationKeys: []string{cp.Key},
	})

	c.logger.Info("resumed %s at %s with answer for %s", threadID, cp.Stage, cp.Key)
	return st, nil
}
