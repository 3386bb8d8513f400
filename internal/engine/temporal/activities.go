package temporal

import (
	"context"
	"time"

	"github.com/nikahq/nika/internal/agentloop"
	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/executor"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/modelapi"
	"github.com/nikahq/nika/internal/outputpolicy"
	"github.com/nikahq/nika/internal/template"
	"github.com/nikahq/nika/internal/tools/builtin"
	nikaworkflow "github.com/nikahq/nika/internal/workflow"
)

// ActivityName is the Temporal activity type Activities.ExecuteTask is
// registered under.
const ActivityName = "ExecuteTask"

// TaskRequest is ExecuteTask's input: one task definition plus the
// already-resolved values of every alias it declared in use:, computed by
// the workflow from its own completed-task map before scheduling this
// activity. Binding resolution itself stays in the (deterministic)
// workflow; only the verb dispatch runs here.
type TaskRequest struct {
	TaskID string
	Task   nikaworkflow.Task
	Inputs map[string]any
}

// TaskResponse is ExecuteTask's output. A failed verb is a normal,
// successful activity invocation that observed an application-level
// error, not grounds for Temporal's own retry machinery to fire; the
// workflow decides what a failure means for scheduling, same as
// internal/runner's store.IsSuccess check.
type TaskResponse struct {
	Output     any
	DurationMS int64
	Failed     bool
	Err        string
}

// Activities holds the non-deterministic collaborators task execution
// needs: the verb executor and the model client/MCP/builtin registries an
// agent task's session needs. One Activities value is registered per
// worker, mirroring the set internal/runner.Runner holds for the
// in-process backend.
type Activities struct {
	executor     *executor.Executor
	client       modelapi.Client
	mcpServers   map[string]*mcpclient.Cache
	builtinTools *builtin.Registry
	events       *eventlog.Log
}

// NewActivities builds an Activities value. events receives the same
// TaskStarted/TemplateResolved/TaskCompleted/TaskFailed events
// internal/runner emits, scoped to this worker process rather than to a
// single run (Temporal workflow history, not this log, is the durable
// record of a run's outcome).
func NewActivities(exec *executor.Executor, client modelapi.Client, mcpServers map[string]*mcpclient.Cache, builtinTools *builtin.Registry, events *eventlog.Log) *Activities {
	return &Activities{executor: exec, client: client, mcpServers: mcpServers, builtinTools: builtinTools, events: events}
}

// ExecuteTask runs one task's verb to completion and applies its output
// policy, the same dispatch internal/runner.Runner.runTask performs for
// the in-process backend, minus the scheduling bookkeeping the calling
// workflow already owns.
func (a *Activities) ExecuteTask(ctx context.Context, req TaskRequest) (TaskResponse, error) {
	start := time.Now()

	bindings := binding.NewBindings()
	for alias, value := range req.Inputs {
		bindings.Set(alias, value)
	}

	a.events.Emit(eventlog.KindTaskStarted, map[string]any{"task_id": req.TaskID, "inputs": req.Inputs})

	raw, err := a.dispatch(ctx, req.TaskID, req.Task, bindings)
	if err != nil {
		a.events.Emit(eventlog.KindTaskFailed, map[string]any{"task_id": req.TaskID, "error": err.Error()})
		return TaskResponse{Failed: true, Err: err.Error(), DurationMS: time.Since(start).Milliseconds()}, nil
	}

	result := outputPolicyApply(raw, req.Task.Output, time.Since(start))
	if result.failed {
		a.events.Emit(eventlog.KindTaskFailed, map[string]any{"task_id": req.TaskID, "error": result.err})
		return TaskResponse{Failed: true, Err: result.err, DurationMS: time.Since(start).Milliseconds()}, nil
	}

	a.events.Emit(eventlog.KindTaskCompleted, map[string]any{"task_id": req.TaskID, "output": result.output})
	return TaskResponse{Output: result.output, DurationMS: time.Since(start).Milliseconds()}, nil
}

func (a *Activities) dispatch(ctx context.Context, taskID string, task nikaworkflow.Task, bindings *binding.Bindings) (string, error) {
	if task.Agent == nil {
		// bindings only ever holds resolved entries here (built via Set
		// from the workflow's already-completed-task map), so a nil store
		// is safe: Execute's lazy re-resolution path is never reached.
		return a.executor.Execute(ctx, taskID, task, bindings, nil)
	}
	return a.dispatchAgent(ctx, taskID, task.Agent, bindings)
}

func (a *Activities) dispatchAgent(ctx context.Context, taskID string, params *nikaworkflow.AgentParams, bindings *binding.Bindings) (string, error) {
	resolvedPrompt, err := template.Resolve(params.Prompt, activityBindingsAdapter{bindings})
	if err != nil {
		return "", err
	}
	a.events.Emit(eventlog.KindTemplateResolved, map[string]any{
		"task_id":  taskID,
		"template": params.Prompt,
		"result":   resolvedPrompt,
	})

	resolved := *params
	resolved.Prompt = resolvedPrompt

	session, err := agentloop.New(ctx, taskID, resolved, a.events, a.client, a.mcpServers, a.builtinTools)
	if err != nil {
		return "", err
	}
	result, err := session.Run(ctx)
	if err != nil {
		return "", err
	}
	return result.FinalOutput, nil
}

type activityBindingsAdapter struct{ b *binding.Bindings }

func (a activityBindingsAdapter) Get(alias string) (any, bool) { return a.b.Get(alias) }

// policyResult is outputpolicy.Apply's store.Result trimmed to the two
// fields ExecuteTask needs, so this file doesn't have to import
// internal/store just to read a Result back apart.
type policyResult struct {
	output any
	failed bool
	err    string
}

func outputPolicyApply(raw string, policy *nikaworkflow.OutputPolicy, d time.Duration) policyResult {
	var p *outputpolicy.Policy
	if policy != nil {
		format := outputpolicy.FormatText
		if policy.Format == nikaworkflow.OutputJSON {
			format = outputpolicy.FormatJSON
		}
		p = &outputpolicy.Policy{Format: format, Schema: policy.Schema}
	}
	result := outputpolicy.Apply(raw, p, d)
	return policyResult{output: result.Output, failed: !result.IsSuccess(), err: result.Err}
}
