// Package executor implements the Task Executor from spec §4.5: it takes
// a single task's verb parameters plus its resolved bindings and runs the
// verb, returning the raw text output for the caller to apply an output
// policy to. Grounded on the Rust original's src/task_executor.rs
// (TaskExecutor: cached providers, shared HTTP client, event logging
// around every verb) with invoke added per SPEC_FULL's extension; the
// agent verb is handled by internal/agentloop, not here, since its
// multi-turn tool-calling loop is a different shape of execution than the
// other four single-shot verbs.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/nikahq/nika/internal/binding"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/nikaerr"
	"github.com/nikahq/nika/internal/provider"
	"github.com/nikahq/nika/internal/resilience"
	"github.com/nikahq/nika/internal/template"
	"github.com/nikahq/nika/internal/workflow"
)

// ExecTimeout bounds how long an exec verb's shell command may run.
const ExecTimeout = 60 * time.Second

// FetchTimeout bounds how long a fetch verb's HTTP round-trip may take.
const FetchTimeout = 30 * time.Second

// Executor runs infer/exec/fetch/invoke task verbs, grounded on
// TaskExecutor's "cached providers, shared HTTP client, event log" shape.
type Executor struct {
	httpClient      *http.Client
	providers       *provider.Cache
	mcpServers      *mcpclient.Cache
	defaultProvider string
	defaultModel    string
	events          *eventlog.Log
	limiters        *resilience.Registry
	breakersMu      sync.Mutex
	breakers        map[string]*resilience.CircuitBreaker
}

// New returns an Executor using defaultProvider/defaultModel as the
// workflow-level fallback, logging to events.
func New(defaultProvider, defaultModel string, events *eventlog.Log, mcpServers *mcpclient.Cache) *Executor {
	return &Executor{
		httpClient: &http.Client{
			Timeout: FetchTimeout,
		},
		providers:       provider.NewCache(),
		mcpServers:      mcpServers,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		events:          events,
		limiters:        resilience.NewRegistry(resilience.DefaultRateLimiterConfig()),
		breakers:        make(map[string]*resilience.CircuitBreaker),
	}
}

// Execute dispatches task to its verb handler. task must declare one of
// infer/exec/fetch/invoke; callers route agent tasks to internal/agentloop
// before reaching here.
// Execute dispatches task to its verb handler. store backs re-resolution
// of any lazy use: entry a template references, as the store stood at the
// moment this verb actually reads it (spec §4.3 rule 5: lazy entries
// resolve on each read, not once at binding construction).
func (e *Executor) Execute(ctx context.Context, taskID string, task workflow.Task, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	switch {
	case task.Infer != nil:
		return e.executeInfer(ctx, taskID, task.Infer, bindings, store)
	case task.Exec != nil:
		return e.executeExec(ctx, taskID, task.Exec, bindings, store)
	case task.Fetch != nil:
		return e.executeFetch(ctx, taskID, task.Fetch, bindings, store)
	case task.Invoke != nil:
		return e.executeInvoke(ctx, taskID, task.Invoke, bindings, store)
	default:
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "task %q has no executor-handled verb", taskID).WithTask(taskID)
	}
}

func (e *Executor) resolve(taskID, tmpl string, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	resolved, err := template.Resolve(tmpl, bindingsAdapter{bindings, store})
	if err != nil {
		return "", err
	}
	e.events.Emit(eventlog.KindTemplateResolved, map[string]any{
		"task_id":  taskID,
		"template": tmpl,
		"result":   resolved,
	})
	return resolved, nil
}

func (e *Executor) executeInfer(ctx context.Context, taskID string, params *workflow.InferParams, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	prompt, err := e.resolve(taskID, params.Prompt, bindings, store)
	if err != nil {
		return "", err
	}

	providerName := params.Provider
	if providerName == "" {
		providerName = e.defaultProvider
	}
	p, err := e.providers.Get(providerName)
	if err != nil {
		return "", err
	}

	model := params.Model
	if model == "" {
		model = e.defaultModel
	}
	if model == "" {
		model = p.DefaultModel()
	}

	e.events.Emit(eventlog.KindProviderCalled, map[string]any{
		"task_id":    taskID,
		"provider":   providerName,
		"model":      model,
		"prompt_len": len(prompt),
	})

	limiter := e.limiters.Get(providerName)
	if err := limiter.Wait(ctx); err != nil {
		return "", err
	}

	var result string
	err = e.breakerFor(providerName).Execute(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = p.Infer(ctx, prompt, model)
		return callErr
	})
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "provider %q: %v", providerName, err).WithTask(taskID).Wrap(err)
	}

	e.events.Emit(eventlog.KindProviderResponded, map[string]any{
		"task_id":    taskID,
		"output_len": len(result),
	})
	return result, nil
}

func (e *Executor) executeExec(ctx context.Context, taskID string, params *workflow.ExecParams, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	command, err := e.resolve(taskID, params.Command, bindings, store)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, ExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", nikaerr.New(nikaerr.AgentParamInvalid, "command timed out after %s", ExecTimeout).WithTask(taskID)
		}
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "command failed: %s", strings.TrimSpace(stderr.String())).WithTask(taskID)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func (e *Executor) executeFetch(ctx context.Context, taskID string, params *workflow.FetchParams, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	url, err := e.resolve(taskID, params.URL, bindings, store)
	if err != nil {
		return "", err
	}

	method := strings.ToUpper(params.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if params.Body != "" {
		resolvedBody, err := e.resolve(taskID, params.Body, bindings, store)
		if err != nil {
			return "", err
		}
		body = strings.NewReader(resolvedBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "invalid fetch request: %v", err).WithTask(taskID)
	}

	for key, value := range params.Headers {
		resolvedValue, err := e.resolve(taskID, value, bindings, store)
		if err != nil {
			return "", err
		}
		req.Header.Set(key, resolvedValue)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "HTTP request failed: %v", err).WithTask(taskID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "failed to read response: %v", err).WithTask(taskID)
	}
	return string(data), nil
}

func (e *Executor) executeInvoke(ctx context.Context, taskID string, params *workflow.InvokeParams, bindings *binding.Bindings, store binding.DataStore) (string, error) {
	if e.mcpServers == nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "task %q invokes MCP tool %q but no mcp: servers are configured", taskID, params.Tool).WithTask(taskID)
	}

	payload := make(map[string]any, len(params.Params))
	for key, value := range params.Params {
		text, ok := value.(string)
		if !ok {
			payload[key] = value
			continue
		}
		resolved, err := e.resolve(taskID, text, bindings, store)
		if err != nil {
			return "", err
		}
		payload[key] = resolved
	}

	argsJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	caller, err := e.mcpServers.Get(ctx, mcpclient.ServerSpec{Name: params.Server})
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "mcp server %q: %v", params.Server, err).WithTask(taskID)
	}

	e.events.Emit(eventlog.KindProviderCalled, map[string]any{
		"task_id": taskID,
		"server":  params.Server,
		"tool":    params.Tool,
	})

	resp, err := e.call(ctx, e.breakerFor(params.Server), caller, mcpclient.CallRequest{Tool: params.Tool, Payload: argsJSON})
	if err != nil {
		return "", nikaerr.New(nikaerr.AgentParamInvalid, "mcp tool %q on %q: %v", params.Tool, params.Server, err).WithTask(taskID)
	}

	e.events.Emit(eventlog.KindProviderResponded, map[string]any{
		"task_id":    taskID,
		"output_len": len(resp.Result),
	})
	return string(resp.Result), nil
}

func (e *Executor) breakerFor(name string) *resilience.CircuitBreaker {
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if b, ok := e.breakers[name]; ok {
		return b
	}
	b := resilience.NewCircuitBreakerDefaults(name)
	e.breakers[name] = b
	return b
}

func (e *Executor) call(ctx context.Context, breaker *resilience.CircuitBreaker, caller mcpclient.Caller, req mcpclient.CallRequest) (mcpclient.CallResponse, error) {
	var resp mcpclient.CallResponse
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = caller.CallTool(ctx, req)
		return callErr
	})
	return resp, err
}

// bindingsAdapter satisfies template.Bindings against binding.Bindings,
// re-resolving lazy entries against store on every Get call (spec §4.3
// rule 5) instead of treating a pending entry as permanently unresolved.
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
