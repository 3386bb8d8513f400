// Package runner implements the Scheduler from spec §4.7: it turns a
// validated workflow document into a running task graph and, eventually, a
// completed event log plus a final artefact. Grounded on the Rust
// original's scheduling description in spec §4.7/§5 (no direct
// scheduler.rs survived into original_source/, so the loop shape below is
// built from the spec's pending/ready/running state machine rather than
// ported line-for-line) and on the teacher pack's bounded-parallelism
// idiom in cklxx-elephant.ai's internal/agent/app/subagent.go
// (errgroup.SetLimit fan-out). That flat fan-out doesn't fit a DAG whose
// ready set grows incrementally as predecessors finish, so the cap here
// is built on golang.org/x/sync/semaphore.Weighted instead: every
// newly-ready task acquires a slot in its own goroutine, never blocking a
// slot already held by the task that promoted it — the recursive
// fan-out-under-errgroup.SetLimit pattern deadlocks once every live slot
// is simultaneously waiting on a child's slot.
package runner

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nikahq/nika/internal/agentloop"
	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/executor"
	"github.com/nikahq/nika/internal/flow"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/nikaerr"
	"github.com/nikahq/nika/internal/outputpolicy"
	"github.com/nikahq/nika/internal/store"
	"github.com/nikahq/nika/internal/template"
	"github.com/nikahq/nika/internal/tools/builtin"
	"github.com/nikahq/nika/internal/workflow"
)

// Status is the terminal state of a whole workflow run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is the outcome of a Run call: either every terminal task
// succeeded (Output carries the aggregated artefact) or the first task
// failure is named.
type Result struct {
	Status          Status
	Output          any
	FirstFailedTask string
}

// Runner owns the process-wide collaborators a workflow run dispatches
// into: the verb executor for infer/exec/fetch/invoke, the model client
// and MCP/builtin tool registries an agent task's session needs, the
// shared result store, and the event log every stage reports through.
type Runner struct {
	events       *eventlog.Log
	store        *store.Store
	executor     *executor.Executor
	client       modelapi.Client
	mcpServers   map[string]*mcpclient.Cache
	builtinTools *builtin.Registry
	sem          *semaphore.Weighted
}

// New returns a Runner. concurrency bounds how many tasks may execute at
// once; a value <= 0 defaults to runtime.NumCPU(), mirroring the "number
// of hardware threads" default spec §4.7 names.
func New(events *eventlog.Log, st *store.Store, exec *executor.Executor, client modelapi.Client, mcpServers map[string]*mcpclient.Cache, builtinTools *builtin.Registry, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Runner{
		events:       events,
		store:        st,
		executor:     exec,
		client:       client,
		mcpServers:   mcpServers,
		builtinTools: builtinTools,
		sem:          semaphore.NewWeighted(int64(concurrency)),
	}
}

// schedulerState is the mutable bookkeeping a Run call shares across every
// task goroutine: how many unsatisfied predecessors remain per task, and
// whether any task has failed yet (which freezes further promotion).
type schedulerState struct {
	mu          sync.Mutex
	remaining   map[string]int
	failed      bool
	firstFailed string
}

// Run validates doc's flow graph, emits WorkflowStarted, drives the
// pending/ready/running scheduling loop to completion, and returns the
// final workflow-level outcome. The returned error is reserved for
// pre-execution validation failures (a cycle, an unknown `{{use.alias}}`
// reference) that mean the workflow never started; a task failing during
// execution is a normal terminal outcome reported via Result, not an
// error.
func (r *Runner) Run(ctx context.Context, doc *workflow.Document) (*Result, error) {
	taskIDs := make([]string, len(doc.Tasks))
	for i, t := range doc.Tasks {
		taskIDs[i] = t.ID
	}

	edges := make([]flow.Edge, 0, len(doc.Flows))
	for _, f := range doc.Flows {
		edges = append(edges, flow.Edge{Sources: f.Source, Targets: f.Target})
	}
	graph := flow.New(taskIDs, edges)

	if err := graph.DetectCycles(); err != nil {
		r.events.Emit(eventlog.KindWorkflowFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	if err := validateTemplateRefs(doc.Tasks); err != nil {
		r.events.Emit(eventlog.KindWorkflowFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	r.events.Emit(eventlog.KindWorkflowStarted, map[string]any{"task_count": len(taskIDs), "run_id": r.events.RunID()})

	if len(taskIDs) == 0 {
		r.events.Emit(eventlog.KindWorkflowCompleted, map[string]any{"output": nil})
		return &Result{Status: StatusCompleted}, nil
	}

	state := &schedulerState{remaining: make(map[string]int, len(taskIDs))}
	for _, id := range taskIDs {
		state.remaining[id] = len(graph.Dependencies(id))
	}

	var wg sync.WaitGroup
	var schedule func(taskID string)
	schedule = func(taskID string) {
		wg.Add(1)
		r.events.Emit(eventlog.KindTaskScheduled, map[string]any{"task_id": taskID})
		go func() {
			defer wg.Done()
			if err := r.sem.Acquire(ctx, 1); err != nil {
				r.recordFailure(taskID, err, time.Duration(0), state)
				return
			}
			defer r.sem.Release(1)

			state.mu.Lock()
			frozen := state.failed
			state.mu.Unlock()
			if frozen {
				return
			}

			r.runTask(ctx, doc, taskID)

			state.mu.Lock()
			taskFailed := !r.store.IsSuccess(taskID)
			if taskFailed && state.firstFailed == "" {
				state.failed = true
				state.firstFailed = taskID
			}
			var toPromote []string
			if !state.failed {
				for _, succ := range graph.Successors(taskID) {
					state.remaining[succ]--
					if state.remaining[succ] == 0 {
						toPromote = append(toPromote, succ)
					}
				}
			}
			state.mu.Unlock()

			for _, succ := range toPromote {
				schedule(succ)
			}
		}()
	}

	for _, id := range graph.Roots() {
		schedule(id)
	}
	wg.Wait()

	if state.failed {
		r.events.Emit(eventlog.KindWorkflowFailed, map[string]any{"first_failed_task": state.firstFailed})
		return &Result{Status: StatusFailed, FirstFailedTask: state.firstFailed}, nil
	}

	output := r.aggregateOutput(graph)
	r.events.Emit(eventlog.KindWorkflowCompleted, map[string]any{"output": output})
	return &Result{Status: StatusCompleted, Output: output}, nil
}

// aggregateOutput implements spec §4.7's final-artefact rule: the output
// of the terminal task if there is exactly one, otherwise a JSON object of
// terminal-task outputs keyed by id.
func (r *Runner) aggregateOutput(graph *flow.Graph) any {
	terminals := graph.Terminals()
	if len(terminals) == 1 {
		out, _ := r.store.GetOutput(terminals[0])
		return out
	}
	out := make(map[string]any, len(terminals))
	for _, id := range terminals {
		val, _ := r.store.GetOutput(id)
		out[id] = val
	}
	return out
}

// runTask resolves a task's bindings, dispatches it to the verb executor
// or the agent loop, shapes the raw output per its output policy, and
// records the result plus its TaskStarted/TaskCompleted/TaskFailed
// events. It never returns an error directly; failures are recorded in
// the store and reported via events so the caller's bookkeeping only
// needs to consult store.IsSuccess.
func (r *Runner) runTask(ctx context.Context, doc *workflow.Document, taskID string) {
	start := time.Now()
	task, ok := doc.TaskByID(taskID)
	if !ok {
		r.recordFailure(taskID, nikaerr.New(nikaerr.InvalidTaskID, "task %q not found in document", taskID), time.Since(start), nil)
		return
	}

	bindings, err := binding.FromWiringSpec(task.Use, r.store)
	if err != nil {
		r.recordFailure(taskID, err, time.Since(start), nil)
		return
	}

	r.events.Emit(eventlog.KindTaskStarted, map[string]any{
		"task_id": taskID,
		"inputs":  bindings.ToValue(),
	})

	raw, err := r.dispatch(ctx, taskID, task, bindings)
	if err != nil {
		r.recordFailure(taskID, err, time.Since(start), nil)
		return
	}

	result := outputpolicy.Apply(raw, outputPolicyOf(task.Output), time.Since(start))
	r.store.Insert(taskID, result)
	if result.IsSuccess() {
		r.events.Emit(eventlog.KindTaskCompleted, map[string]any{"task_id": taskID, "output": result.Output})
		return
	}
	r.events.Emit(eventlog.KindTaskFailed, map[string]any{"task_id": taskID, "error": result.Err})
}

// recordFailure inserts a failed store.Result for a task that never
// reached the executor (missing from the document, a binding-resolution
// error, a semaphore acquisition error from context cancellation) and
// emits TaskFailed. state may be nil when called before the scheduler
// state exists (the zero-task fast path never calls this).
func (r *Runner) recordFailure(taskID string, err error, duration time.Duration, state *schedulerState) {
	r.store.Insert(taskID, store.Failed(err.Error(), duration))
	r.events.Emit(eventlog.KindTaskFailed, map[string]any{"task_id": taskID, "error": err.Error()})
	if state == nil {
		return
	}
	state.mu.Lock()
	if state.firstFailed == "" {
		state.failed = true
		state.firstFailed = taskID
	}
	state.mu.Unlock()
}

func outputPolicyOf(p *workflow.OutputPolicy) *outputpolicy.Policy {
	if p == nil {
		return nil
	}
	format := outputpolicy.FormatText
	if p.Format == workflow.OutputJSON {
		format = outputpolicy.FormatJSON
	}
	return &outputpolicy.Policy{Format: format, Schema: p.Schema}
}

// dispatch routes a task to the single-shot verb executor, except for the
// agent verb, whose multi-turn tool-calling loop lives in
// internal/agentloop and needs its prompt template-resolved here first
// (the executor only resolves the string fields of its own four verbs).
func (r *Runner) dispatch(ctx context.Context, taskID string, task workflow.Task, bindings *binding.Bindings) (string, error) {
	if task.Agent == nil {
		return r.executor.Execute(ctx, taskID, task, bindings, r.store)
	}
	return r.dispatchAgent(ctx, taskID, task.Agent, bindings)
}

func (r *Runner) dispatchAgent(ctx context.Context, taskID string, params *workflow.AgentParams, bindings *binding.Bindings) (string, error) {
	resolvedPrompt, err := template.Resolve(params.Prompt, bindingsAdapter{bindings, r.store})
	if err != nil {
		return "", err
	}
	r.events.Emit(eventlog.KindTemplateResolved, map[string]any{
		"task_id":  taskID,
		"template": params.Prompt,
		"result":   resolvedPrompt,
	})

	resolved := *params
	resolved.Prompt = resolvedPrompt

	session, err := agentloop.New(ctx, taskID, resolved, r.events, r.client, r.mcpServers, r.builtinTools)
	if err != nil {
		return "", err
	}

	result, err := session.Run(ctx)
	if err != nil {
		return "", err
	}
	return result.FinalOutput, nil
}

// bindingsAdapter satisfies template.Bindings against binding.Bindings,
// re-resolving lazy entries against store on every Get call, mirroring
// executor's adapter of the same shape.
type bindingsAdapter struct {
	b     *binding.Bindings
	store binding.DataStore
}

func (a bindingsAdapter) Get(alias string) (any, bool) {
	value, err := a.b.GetResolved(alias, a.store)
	if err != nil {
		return nil, false
	}
	return value, true
}

// validateTemplateRefs runs the static `{{use.alias}}` check spec §4.7
// calls for before scheduling begins: every templated field of every task
// may only reference an alias that task itself declared in `use:`.
func validateTemplateRefs(tasks []workflow.Task) error {
	for _, task := range tasks {
		declared := make(map[string]struct{}, len(task.Use))
		for alias := range task.Use {
			declared[alias] = struct{}{}
		}
		for _, tmpl := range templatedFields(task) {
			if err := template.ValidateRefs(tmpl, declared, task.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// templatedFields collects every string field of task that may carry
// `{{use.alias}}` placeholders, across whichever single verb it declares.
func templatedFields(task workflow.Task) []string {
	var fields []string
	switch {
	case task.Infer != nil:
		fields = append(fields, task.Infer.Prompt)
	case task.Exec != nil:
		fields = append(fields, task.Exec.Command)
	case task.Fetch != nil:
		fields = append(fields, task.Fetch.URL, task.Fetch.Body)
		for _, v := range task.Fetch.Headers {
			fields = append(fields, v)
		}
	case task.Invoke != nil:
		for _, v := range task.Invoke.Params {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
	case task.Agent != nil:
		fields = append(fields, task.Agent.Prompt)
	}
	return fields
}
