// Package inmem is the production Engine backend: it drives a workflow
// document to completion in the same process that parsed it, using
// internal/runner's goroutine-per-ready-task scheduler over the shared
// store, event log, and task executor. This is the backend the CLI uses
// by default; internal/engine/temporal is the additive durable adapter
// for the same Engine interface.
package inmem

import (
	"context"

	"github.com/nikahq/nika/internal/engine"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/executor"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/runner"
	"github.com/nikahq/nika/internal/store"
	"github.com/nikahq/nika/internal/tools/builtin"
	"github.com/nikahq/nika/internal/workflow"
)

// Engine wraps a runner.Runner and the shared state it operates over.
// Each Engine owns one store and one event log for the lifetime of the
// process; callers that need isolated runs construct one Engine per run.
type Engine struct {
	events *eventlog.Log
	store  *store.Store
	runner *runner.Runner
}

var _ engine.Engine = (*Engine)(nil)

// Options configures the shared collaborators a run dispatches into.
// Fields left zero disable the corresponding verb: a nil Client rejects
// agent/infer tasks, nil InvokeServers/AgentServers reject
// invoke/agent-with-MCP tasks, and so on, the same degraded-capability behavior the teacher's
// runtime applies when a provider isn't configured.
type Options struct {
	Client modelapi.Client

	// InvokeServers backs the executor's invoke verb, a single cache
	// keyed internally by server name.
	InvokeServers *mcpclient.Cache
	// AgentServers backs the agent verb's per-server tool building,
	// keyed by the mcp: block's server name.
	AgentServers map[string]*mcpclient.Cache

	BuiltinTools *builtin.Registry
	Concurrency  int

	// DefaultProvider and DefaultModel are forwarded to the executor's
	// infer verb as workflow-level fallbacks; either may be left empty.
	DefaultProvider string
	DefaultModel    string
}

// New constructs an Engine with its own store and event log.
func New(opts Options) *Engine {
	events := eventlog.New()
	st := store.New()
	exec := executor.New(opts.DefaultProvider, opts.DefaultModel, events, opts.InvokeServers)
	r := runner.New(events, st, exec, opts.Client, opts.AgentServers, opts.BuiltinTools, opts.Concurrency)
	return &Engine{events: events, store: st, runner: r}
}

// Events returns the event log backing this run, so a caller can
// subscribe for progress before or while calling Run.
func (e *Engine) Events() *eventlog.Log { return e.events }

// Store returns the task-result store backing this run.
func (e *Engine) Store() *store.Store { return e.store }

// Run executes doc to completion via the wrapped runner.Runner and
// translates its result into the backend-agnostic engine.Outcome.
func (e *Engine) Run(ctx context.Context, doc *workflow.Document) (*engine.Outcome, error) {
	result, err := e.runner.Run(ctx, doc)
	if err != nil {
		return nil, err
	}

	status := engine.StatusCompleted
	if result.Status == runner.StatusFailed {
		status = engine.StatusFailed
	}
	return &engine.Outcome{
		Status:          status,
		Output:          result.Output,
		FirstFailedTask: result.FirstFailedTask,
	}, nil
}

// Close is a no-op for the in-process backend: there is no external
// connection to release. It exists so Engine satisfies engine.Engine
// alongside the Temporal backend, which does hold a client connection.
func (e *Engine) Close() error { return nil }
