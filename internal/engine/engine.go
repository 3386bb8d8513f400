// Package engine defines the narrow abstraction that lets a workflow
// document be run by more than one backend. The in-process backend
// (internal/engine/inmem) walks the DAG with goroutines in the same
// process that parsed the document; the Temporal backend
// (internal/engine/temporal) maps the same DAG onto a durable Temporal
// workflow so a run survives process restarts.
//
// Both backends share internal/flow and internal/binding for graph shape
// and template wiring; only the mechanism that drives task execution to
// completion differs.
package engine

import (
	"context"

	"github.com/nikahq/nika/internal/workflow"
)

// Status is the terminal state of a workflow run, independent of backend.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Outcome is the backend-agnostic result of running a document to
// completion: the aggregated output on success, or the id of the first
// task that failed.
type Outcome struct {
	Status          Status
	Output          any
	FirstFailedTask string
}

// Engine runs a parsed workflow document to completion and reports its
// outcome. Run blocks until the run reaches a terminal state or ctx is
// canceled; cancellation propagates to whatever is currently in flight
// but never preempts work already committed to the store.
type Engine interface {
	Run(ctx context.Context, doc *workflow.Document) (*Outcome, error)
	Close() error
}
