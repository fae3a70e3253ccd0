// Package graph runs the content pipeline: a registry of stage nodes, a
// supervisor-driven step loop, checkpointing after every step, and
// suspend/resume for human-in-the-loop questions.
package graph

import (
	"context"
	"fmt"

	"contentflow/pkg/state"
	"contentflow/pkg/tools"
)

// Outcome classifies how a stage run ended. Failure is a value, not a
// panic: a failed stage reports a code and the supervisor re-plans.
type Outcome int

const (
	// OutcomeContinue means the stage produced its update normally.
	OutcomeContinue Outcome = iota
	// OutcomeSuspend means the stage needs an operator answer.
	OutcomeSuspend
	// OutcomeFail means the stage could not produce usable output.
	OutcomeFail
)

// Result is a stage run's outcome plus its partial state update. The
// update is applied in every case; a failing stage may still have useful
// partial progress to record.
type Result struct {
	Outcome     Outcome
	Update      state.Update
	Interrupt   *tools.Interrupt
	FailureCode string
}

// Continue builds a normal result.
func Continue(u state.Update) Result {
	return Result{Outcome: OutcomeContinue, Update: u}
}

// Suspend builds a result that pauses the workflow on intr.
func Suspend(intr *tools.Interrupt, u state.Update) Result {
	return Result{Outcome: OutcomeSuspend, Update: u, Interrupt: intr}
}

// Fail builds a failure result with a short machine-readable code.
func Fail(code string, u state.Update) Result {
	return Result{Outcome: OutcomeFail, Update: u, FailureCode: code}
}

// Node is one runnable pipeline stage. Nodes read the state and return an
// update; they never mutate the state they are given.
type Node interface {
	Stage() state.Stage
	Run(ctx context.Context, st *state.State) (Result, error)
}

// Registry maps stages to their nodes.
type Registry struct {
	nodes map[state.Stage]Node
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[state.Stage]Node)}
}

// Add registers a node under its stage.
func (r *Registry) Add(n Node) error {
	stage := n.Stage()
	if !stage.Runnable() || stage == state.StageSupervisor {
		return fmt.Errorf("stage %s cannot carry a node", stage)
	}
	if _, exists := r.nodes[stage]; exists {
		return fmt.Errorf("stage %s already has a node", stage)
	}
	r.nodes[stage] = n
	return nil
}

// Get returns the node for a stage.
func (r *Registry) Get(stage state.Stage) (Node, error) {
	n, ok := r.nodes[stage]
	if !ok {
		return nil, fmt.Errorf("no node registered for stage %s", stage)
	}
	return n, nil
}

// Complete reports whether every runnable pipeline stage has a node.
func (r *Registry) Complete() error {
	for _, stage := range state.PipelineStages {
		if _, ok := r.nodes[stage]; !ok {
			return fmt.Errorf("no node registered for stage %s", stage)
		}
	}
	return nil
}
