// Package engine runs the Step Executor as a Temporal workflow. Each Task
// becomes one TaskLifecycleWorkflow execution; every scheduling tick
// is that workflow's one activity, ExecuteStep.
//
// There is no WorkflowDefinition registry, no per-queue worker map, and
// no pluggable data converter: this domain has exactly one workflow
// shape, so the registration surface collapses to a single New + Start.
// The executor's guard pipeline and post-dispatch state machine are
// already pure-dispatch (agent/executor), so the workflow body only
// needs to own the one thing a bare in-process loop can't: durability
// across process restarts while a task sits blocked on a backoff timer
// that can be minutes long.
//
// # Determinism
//
// TaskLifecycleWorkflow never calls a collaborator directly. It schedules
// ExecuteStep (an activity, so non-deterministic tool calls and wall-clock
// reads happen off the replay path) and advances task state using only the
// activity's result and workflow.Now/workflow.Sleep. Planners and tool
// executors run in activities; the workflow handler only coordinates.
//
// # OpenTelemetry
//
// When Options.Client is nil, New installs the
// go.temporal.io/sdk/contrib/opentelemetry tracing interceptor on the client
// and worker it builds, and its metrics handler when none is set, both with
// default options (the global OpenTelemetry providers). They are not tied to
// runtime/agent/telemetry's Tracer/Metrics. A caller-supplied Client is used
// as is.
package engine
