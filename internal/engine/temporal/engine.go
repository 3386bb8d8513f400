// Package temporal is the durable Engine backend: it maps a workflow
// document onto a single Temporal workflow function (RunWorkflow) and a
// single activity (Activities.ExecuteTask), so a run survives worker
// restarts and crashes instead of living only in one process's
// goroutines the way internal/engine/inmem does.
//
// Grounded on the teacher's runtime/agent/engine/temporal adapter: the
// same worker-lifecycle and OTEL-instrumentation shape (lazy client,
// one worker per task queue, auto-start on first execution, tracing and
// metrics interceptors installed by default), scoped down from the
// teacher's generic multi-workflow/multi-activity registration surface
// to Nika's single concrete workflow type, since there is exactly one
// kind of run to durably execute.
package temporal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/nikahq/nika/internal/engine"
	nikaworkflow "github.com/nikahq/nika/internal/workflow"
)

// WorkflowName is the Temporal workflow type RunWorkflow is registered
// under.
const WorkflowName = "NikaRun"

// Options configures the Temporal engine adapter. Either Client or
// ClientOptions must be provided; TaskQueue and Activities are always
// required.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, the adapter
	// builds a lazy client from ClientOptions.
	Client client.Client
	// ClientOptions constructs the Temporal client when Client is nil.
	ClientOptions *client.Options

	// TaskQueue is the queue this engine's worker polls and the queue
	// every run is started on.
	TaskQueue string
	// WorkerOptions is forwarded to worker.New.
	WorkerOptions worker.Options

	// Activities provides the non-deterministic collaborators the
	// ExecuteTask activity dispatches into.
	Activities *Activities

	// DisableWorkerAutoStart delays worker startup until Worker().Start()
	// is called explicitly, instead of on first Run call.
	DisableWorkerAutoStart bool
	// DisableTracing/DisableMetrics opt out of the OTEL interceptors the
	// engine installs on the client and worker by default.
	DisableTracing bool
	DisableMetrics bool
}

// Engine implements engine.Engine using Temporal as the durable execution
// backend for the Nika workflow document format.
type Engine struct {
	client      client.Client
	closeClient bool
	taskQueue   string

	worker    worker.Worker
	startOnce sync.Once
	startMu   sync.Mutex
	started   bool
	autoStart bool
}

var _ engine.Engine = (*Engine)(nil)

// New constructs a Temporal-backed Engine, registers RunWorkflow and the
// ExecuteTask activity on a worker for opts.TaskQueue, and (unless
// DisableWorkerAutoStart is set) starts that worker on the first Run
// call.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: task queue is required")
	}
	if opts.Activities == nil {
		return nil, fmt.Errorf("temporal engine: activities are required")
	}

	inst, err := configureInstrumentation(opts.DisableTracing, opts.DisableMetrics)
	if err != nil {
		return nil, err
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		applyClientInstrumentation(&clientOpts, inst)
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	workerOpts := opts.WorkerOptions
	applyWorkerInstrumentation(&workerOpts, inst)

	w := worker.New(cli, opts.TaskQueue, workerOpts)
	w.RegisterWorkflowWithOptions(RunWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(opts.Activities.ExecuteTask, activity.RegisterOptions{Name: ActivityName})
	registerNexusService(w, opts.TaskQueue)

	return &Engine{
		client:      cli,
		closeClient: closeClient,
		taskQueue:   opts.TaskQueue,
		worker:      w,
		autoStart:   !opts.DisableWorkerAutoStart,
	}, nil
}

// Worker returns a controller for manually starting or stopping the
// engine's worker, for callers that set DisableWorkerAutoStart.
func (e *Engine) Worker() *WorkerController {
	return &WorkerController{engine: e}
}

// Run starts a Temporal workflow execution for doc and blocks until it
// reaches a terminal state, translating the Temporal result into the
// backend-agnostic engine.Outcome.
func (e *Engine) Run(ctx context.Context, doc *nikaworkflow.Document) (*engine.Outcome, error) {
	if e.autoStart {
		e.ensureStarted()
	}

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "nika-" + uuid.NewString(),
		TaskQueue: e.taskQueue,
	}, WorkflowName, WorkflowInput{Document: doc})
	if err != nil {
		return nil, fmt.Errorf("temporal engine: start workflow: %w", err)
	}

	var out WorkflowOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("temporal engine: workflow execution: %w", err)
	}

	status := engine.StatusCompleted
	if out.Status == "failed" {
		status = engine.StatusFailed
	}
	return &engine.Outcome{
		Status:          status,
		Output:          out.Output,
		FirstFailedTask: out.FirstFailedTask,
	}, nil
}

// Close gracefully stops the worker and, if this engine created the
// client, closes it.
func (e *Engine) Close() error {
	e.Worker().Stop()
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

func (e *Engine) ensureStarted() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.startOnce.Do(func() {
		go func() {
			_ = e.worker.Run(worker.InterruptCh())
		}()
	})
}

// WorkerController manages worker lifecycle for an Engine, for callers
// that set Options.DisableWorkerAutoStart and want explicit control over
// when polling begins.
type WorkerController struct {
	engine *Engine
}

// Start launches the engine's worker if it isn't already running.
func (c *WorkerController) Start() {
	c.engine.ensureStarted()
}

// Stop gracefully stops the engine's worker.
func (c *WorkerController) Stop() {
	c.engine.startMu.Lock()
	started := c.engine.started
	c.engine.startMu.Unlock()
	if started {
		c.engine.worker.Stop()
	}
}

type instrumentation struct {
	tracer  interceptor.Interceptor
	metrics client.MetricsHandler
}

func configureInstrumentation(disableTracing, disableMetrics bool) (*instrumentation, error) {
	inst := &instrumentation{}
	if !disableTracing {
		tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
		}
		inst.tracer = tracer
	}
	if !disableMetrics {
		inst.metrics = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
	}
	if inst.tracer == nil && inst.metrics == nil {
		return nil, nil
	}
	return inst, nil
}

func applyClientInstrumentation(opts *client.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
	if inst.metrics != nil && opts.MetricsHandler == nil {
		opts.MetricsHandler = inst.metrics
	}
}

func applyWorkerInstrumentation(opts *worker.Options, inst *instrumentation) {
	if inst == nil {
		return
	}
	if inst.tracer != nil {
		opts.Interceptors = append(opts.Interceptors, inst.tracer)
	}
}
