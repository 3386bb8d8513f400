package temporal

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/nikahq/nika/internal/binding"
	nikaflow "github.com/nikahq/nika/internal/flow"
	"github.com/nikahq/nika/internal/nikaerr"
	"github.com/nikahq/nika/internal/template"
	nikaworkflow "github.com/nikahq/nika/internal/workflow"
)

// maxConcurrentTasks bounds how many ExecuteTask activities a single
// RunWorkflow execution keeps in flight at once, the durable backend's
// analogue of internal/runner.Runner's semaphore-bounded concurrency.
const maxConcurrentTasks = 8

// WorkflowInput is RunWorkflow's durable input: the full parsed document,
// persisted in Temporal's event history by the client's data converter so
// every replay deserializes the same graph.
type WorkflowInput struct {
	Document *nikaworkflow.Document
}

// WorkflowOutput mirrors engine.Outcome in a Temporal-safe shape: a plain
// struct with no interface fields beyond the JSON-compatible Output
// value, so it survives the default data converter unchanged.
type WorkflowOutput struct {
	Status          string
	Output          any
	FirstFailedTask string
}

// RunWorkflow walks input.Document's flow graph inside a Temporal
// workflow, mapping internal/runner.Runner's goroutine-per-ready-task
// scheduling onto Temporal's deterministic workflow.Go coroutines and
// ExecuteActivity calls: a task's bindings are resolved here, against a
// plain in-workflow map of completed task outputs, and the actual verb
// dispatch happens inside the ExecuteTask activity, which is the only
// non-deterministic part of a run.
//
// Unlike the in-process backend, a lazy `use:` entry behaves the same as
// an eager one here: every predecessor a task depends on has already
// finished by the time its activity is scheduled, so there is no
// in-flight store mutation left to observe lazily.
func RunWorkflow(ctx workflow.Context, input WorkflowInput) (*WorkflowOutput, error) {
	doc := input.Document

	taskIDs := make([]string, len(doc.Tasks))
	for i, t := range doc.Tasks {
		taskIDs[i] = t.ID
	}
	edges := make([]nikaflow.Edge, 0, len(doc.Flows))
	for _, f := range doc.Flows {
		edges = append(edges, nikaflow.Edge{Sources: f.Source, Targets: f.Target})
	}
	graph := nikaflow.New(taskIDs, edges)

	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}
	if err := validateTemplateRefs(doc.Tasks); err != nil {
		return nil, err
	}
	if len(taskIDs) == 0 {
		return &WorkflowOutput{Status: "completed"}, nil
	}

	sched := &scheduler{
		doc:         doc,
		graph:       graph,
		results:     make(map[string]taskOutcome, len(taskIDs)),
		remaining:   make(map[string]int, len(taskIDs)),
		concurrency: maxConcurrentTasks,
	}
	for _, id := range taskIDs {
		sched.remaining[id] = len(graph.Dependencies(id))
	}

	wg := workflow.NewWaitGroup(ctx)
	sched.schedule = func(taskID string) {
		wg.Add(1)
		workflow.Go(ctx, func(gctx workflow.Context) {
			defer wg.Done()
			sched.runTask(gctx, taskID)
		})
	}

	for _, id := range graph.Roots() {
		sched.schedule(id)
	}
	wg.Wait(ctx)

	if sched.failed {
		return &WorkflowOutput{Status: "failed", FirstFailedTask: sched.firstFailed}, nil
	}
	return &WorkflowOutput{Status: "completed", Output: sched.aggregateOutput()}, nil
}

// taskOutcome is one task's completed result as observed by the
// workflow: its output on success, or the failure message that froze
// further promotion.
type taskOutcome struct {
	output any
	failed bool
	err    string
}

// scheduler is RunWorkflow's mutable state. Every field is touched only
// from workflow coroutines dispatched via workflow.Go, which the
// Temporal SDK runs one at a time on the workflow's single dispatcher
// goroutine, so no field needs its own lock the way
// internal/runner.Runner's equivalent schedulerState does for real
// goroutines.
type scheduler struct {
	doc         *nikaworkflow.Document
	graph       *nikaflow.Graph
	results     map[string]taskOutcome
	remaining   map[string]int
	concurrency int
	running     int
	failed      bool
	firstFailed string
	schedule    func(taskID string)
}

// runTask waits for a free concurrency slot, resolves the task's
// bindings against already-completed results, executes it via the
// ExecuteTask activity, and promotes any successor whose last dependency
// this was. Mirrors internal/runner.Runner.schedule's per-task goroutine
// body, with workflow.Await replacing the semaphore and a plain map
// replacing the store.
func (s *scheduler) runTask(ctx workflow.Context, taskID string) {
	if err := workflow.Await(ctx, func() bool { return s.running < s.concurrency }); err != nil {
		s.recordFailure(taskID, err)
		return
	}
	s.running++
	defer func() { s.running-- }()

	if s.failed {
		return
	}

	task, ok := s.doc.TaskByID(taskID)
	if !ok {
		s.recordFailure(taskID, nikaerr.New(nikaerr.InvalidTaskID, "task %q not found in document", taskID).WithTask(taskID))
		return
	}

	inputs, err := s.resolveInputs(task)
	if err != nil {
		s.recordFailure(taskID, err)
		return
	}

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout(task),
	})

	var resp TaskResponse
	if err := workflow.ExecuteActivity(actx, ActivityName, TaskRequest{TaskID: taskID, Task: task, Inputs: inputs}).Get(actx, &resp); err != nil {
		s.recordFailure(taskID, err)
		return
	}
	if resp.Failed {
		s.recordFailure(taskID, nikaerr.New(nikaerr.AgentParamInvalid, "%s", resp.Err).WithTask(taskID))
		return
	}

	s.results[taskID] = taskOutcome{output: resp.Output}
	if s.failed {
		return
	}

	var toPromote []string
	for _, succ := range s.graph.Successors(taskID) {
		s.remaining[succ]--
		if s.remaining[succ] == 0 {
			toPromote = append(toPromote, succ)
		}
	}
	for _, succ := range toPromote {
		s.schedule(succ)
	}
}

func (s *scheduler) recordFailure(taskID string, err error) {
	s.results[taskID] = taskOutcome{failed: true, err: err.Error()}
	if !s.failed {
		s.failed = true
		s.firstFailed = taskID
	}
}

// resolveInputs resolves every alias task declared in use: against the
// scheduler's completed-results map, reusing binding.ResolveEntry's
// path/default/null handling unchanged.
func (s *scheduler) resolveInputs(task nikaworkflow.Task) (map[string]any, error) {
	inputs := make(map[string]any, len(task.Use))
	store := schedulerStore{s}
	for alias, entry := range task.Use {
		value, err := binding.ResolveEntry(entry, alias, store)
		if err != nil {
			return nil, err
		}
		inputs[alias] = value
	}
	return inputs, nil
}

// aggregateOutput implements the same final-artefact rule as
// internal/runner.Runner.aggregateOutput: the sole terminal task's output,
// or a map of terminal outputs keyed by id.
func (s *scheduler) aggregateOutput() any {
	terminals := s.graph.Terminals()
	if len(terminals) == 1 {
		return s.results[terminals[0]].output
	}
	out := make(map[string]any, len(terminals))
	for _, id := range terminals {
		out[id] = s.results[id].output
	}
	return out
}

// schedulerStore adapts the scheduler's in-workflow results map to
// binding.DataStore so ResolveEntry runs unchanged against
// Temporal-completed outputs instead of internal/store.Store.
type schedulerStore struct{ s *scheduler }

func (ss schedulerStore) GetOutput(taskID string) (any, bool) {
	r, ok := ss.s.results[taskID]
	if !ok || r.failed {
		return nil, false
	}
	return r.output, true
}

func activityTimeout(task nikaworkflow.Task) time.Duration {
	switch {
	case task.Exec != nil:
		return 60 * time.Second
	case task.Fetch != nil:
		return 40 * time.Second
	case task.Agent != nil:
		return 10 * time.Minute
	default:
		return 2 * time.Minute
	}
}

// validateTemplateRefs runs the same static `{{use.alias}}` check
// internal/runner.Runner.Run performs before scheduling begins: every
// templated field of every task may only reference an alias that task
// itself declared in use:.
func validateTemplateRefs(tasks []nikaworkflow.Task) error {
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

func templatedFields(task nikaworkflow.Task) []string {
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
