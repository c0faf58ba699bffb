package engine

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// Options configures the Engine. Client or ClientOptions must be provided,
// and NewContext must be set so ExecuteStep has a way to build the
// executor.Context it dispatches through.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, the Engine builds
	// one lazily from ClientOptions.
	Client client.Client

	// ClientOptions configures the client when Client is nil.
	ClientOptions *client.Options

	// TaskQueue is the single Temporal task queue TaskLifecycleWorkflow and
	// ExecuteStep are registered and polled on. Required.
	TaskQueue string

	// WorkerOptions forwards to worker.New for concurrency/identity tuning.
	WorkerOptions worker.Options

	// NewContext builds the executor.Context each ExecuteStep invocation
	// dispatches through. Required.
	NewContext ContextFactory

	// DisableTracing/DisableMetrics opt out of the OTEL interceptor and
	// metrics handler the Engine installs by default.
	DisableTracing bool
	DisableMetrics bool

	// Logger receives worker lifecycle logs. Defaults to a noop logger.
	Logger telemetry.Logger
}

// Engine runs one Temporal worker polling a single task queue for exactly
// one workflow type (TaskLifecycleWorkflow) and one activity
// (ExecuteStep). There is no workflow/activity registry and no per-queue
// worker map: this domain has exactly one workflow shape, so the
// registration surface collapses to a single New + Start.
type Engine struct {
	client      client.Client
	closeClient bool
	taskQueue   string
	worker      worker.Worker
	logger      telemetry.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs an Engine, builds (or adopts) its Temporal client, creates
// its worker, and registers TaskLifecycleWorkflow/ExecuteStep on it. Call
// Start to begin polling and Close to shut down.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("engine: task queue is required")
	}
	if opts.NewContext == nil {
		return nil, fmt.Errorf("engine: NewContext is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if err := applyInstrumentation(&clientOpts, &opts.WorkerOptions, opts.DisableTracing, opts.DisableMetrics); err != nil {
			return nil, err
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("engine: create client: %w", err)
		}
		closeClient = true
	}

	w := worker.New(cli, opts.TaskQueue, opts.WorkerOptions)
	w.RegisterWorkflowWithOptions(TaskLifecycleWorkflow, workflow.RegisterOptions{Name: TaskLifecycleWorkflowName})
	acts := &activities{newContext: opts.NewContext}
	w.RegisterActivityWithOptions(acts.ExecuteStep, activity.RegisterOptions{Name: ExecuteStepActivityName})

	return &Engine{
		client:      cli,
		closeClient: closeClient,
		taskQueue:   opts.TaskQueue,
		worker:      w,
		logger:      logger,
	}, nil
}

// Start begins polling the task queue in the background. Safe to call more
// than once; only the first call takes effect.
func (e *Engine) Start() error {
	var startErr error
	e.startOnce.Do(func() {
		go func() {
			if err := e.worker.Run(worker.InterruptCh()); err != nil {
				e.logger.Error(context.Background(), "engine: worker exited", "queue", e.taskQueue, "err", err)
			}
		}()
	})
	return startErr
}

// Stop gracefully stops the worker. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.worker.Stop()
	})
}

// Close stops the worker and closes the client if the Engine created it.
func (e *Engine) Close() error {
	e.Stop()
	if e.closeClient && e.client != nil {
		e.client.Close()
	}
	return nil
}

// StartTaskLifecycle starts a new TaskLifecycleWorkflow execution for in,
// using workflowID as the Temporal workflow id (callers typically use the
// task id so re-dispatch is idempotent at the workflow level).
func (e *Engine) StartTaskLifecycle(ctx context.Context, workflowID string, in TaskLifecycleInput) (client.WorkflowRun, error) {
	return e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: e.taskQueue,
	}, TaskLifecycleWorkflowName, in)
}

func applyInstrumentation(clientOpts *client.Options, workerOpts *worker.Options, disableTracing, disableMetrics bool) error {
	if !disableTracing {
		tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
		if err != nil {
			return fmt.Errorf("engine: configure tracing interceptor: %w", err)
		}
		clientOpts.Interceptors = append(clientOpts.Interceptors, tracer)
		workerOpts.Interceptors = append(workerOpts.Interceptors, tracer)
	}
	if !disableMetrics && clientOpts.MetricsHandler == nil {
		clientOpts.MetricsHandler = temporalotel.NewMetricsHandler(temporalotel.MetricsHandlerOptions{})
	}
	return nil
}
