// Package runtimectx binds the executor's injected-dependency contract
// (agent/ictx.Context) to the process's real collaborators: the golden-run
// recorder, the loop breaker, the step rate limiter, and the caller-supplied
// seams for the external collaborators (tool invocation, recipe
// introspection, inventory, threats, regeneration). The executor and
// recovery injector stay pure-dispatch; this package is where the wiring
// lives.
package runtimectx

import (
	"context"
	"time"

	"github.com/darianrosebrook/sterling-executor/agent/executor"
	"github.com/darianrosebrook/sterling-executor/agent/goldenrun"
	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/agent/loopbreaker"
	"github.com/darianrosebrook/sterling-executor/agent/task"
	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// Deps carries everything a Context needs. Recorder is required; Breaker
// and Limiter are optional (a nil Breaker disables loop detection, a nil
// Limiter never rate-limits). The function fields are the out-of-scope
// collaborator seams; any left nil degrades to a safe no-op or failure
// result rather than panicking mid-tick.
type Deps struct {
	Config   ictx.Config
	Mode     ictx.Mode
	Recorder *goldenrun.Recorder
	Breaker  *loopbreaker.Breaker
	Limiter  *executor.StepRateLimiter

	ExecuteTool      func(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ictx.ActionResult
	StartTaskStep    func(ctx context.Context, taskID, stepID string, opts ictx.StartStepOpts) bool
	CompleteTaskStep func(ctx context.Context, taskID, stepID string, opts ictx.CompleteStepOpts) bool
	AbortSignal      <-chan struct{}

	IntrospectRecipe       func(ctx context.Context, recipe string) (ictx.RecipeInfo, error)
	FetchInventorySnapshot func(ctx context.Context, taskID string) (ictx.Inventory, error)
	GetCount               func(inv ictx.Inventory, item string) int
	InjectCraftPrereq      func(ctx context.Context, t *task.Task) bool

	GetThreatSnapshot func(ctx context.Context) ictx.ThreatSnapshot
	RegenerateSteps   func(ctx context.Context, taskID string, params ictx.RegenerateParams) ictx.RegenerateResult

	RecomputeProgress  func(ctx context.Context, t *task.Task)
	TaskLifecycleEvent func(ctx context.Context, name string, payload map[string]any)

	// Metrics and Tracer instrument dispatches and blocked decisions.
	// Either may be nil; New substitutes no-op implementations.
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	Clock func() int64
}

// Context is the production ictx.Context implementation. Construct with New.
type Context struct {
	deps Deps
}

var _ ictx.Context = (*Context)(nil)

// New fills defaults into deps (clock, shadow mode, no-op telemetry) and
// wraps them in a Context. It does not check that Recorder is set.
func New(deps Deps) *Context {
	if deps.Clock == nil {
		deps.Clock = task.NowMs
	}
	if deps.Mode == "" {
		deps.Mode = ictx.ModeShadow
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewNoopMetrics()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.NewNoopTracer()
	}
	return &Context{deps: deps}
}

func (c *Context) Config() ictx.Config { return c.deps.Config }
func (c *Context) Mode() ictx.Mode     { return c.deps.Mode }
func (c *Context) Now() int64          { return c.deps.Clock() }

func (c *Context) ExecuteTool(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ictx.ActionResult {
	if c.deps.ExecuteTool == nil {
		return ictx.ActionResult{OK: false, Error: "no tool runner configured"}
	}
	spanCtx, span := c.deps.Tracer.Start(ctx, "executor.tool_dispatch")
	defer span.End()
	span.AddEvent("dispatch", "tool", toolName)

	start := time.Now()
	result := c.deps.ExecuteTool(spanCtx, toolName, args, abort)
	c.deps.Metrics.RecordTimer("executor.tool_duration", time.Since(start), "tool", toolName)

	status := "error"
	if result.OK {
		status = "ok"
	}
	c.deps.Metrics.IncCounter("executor.tool_dispatches", 1, "tool", toolName, "status", status)
	return result
}

func (c *Context) CanExecuteStep() bool {
	if c.deps.Limiter == nil {
		return true
	}
	return c.deps.Limiter.Allow()
}

func (c *Context) StartTaskStep(ctx context.Context, taskID, stepID string, opts ictx.StartStepOpts) bool {
	if c.deps.StartTaskStep == nil {
		return true
	}
	return c.deps.StartTaskStep(ctx, taskID, stepID, opts)
}

func (c *Context) CompleteTaskStep(ctx context.Context, taskID, stepID string, opts ictx.CompleteStepOpts) bool {
	if c.deps.CompleteTaskStep == nil {
		return true
	}
	return c.deps.CompleteTaskStep(ctx, taskID, stepID, opts)
}

func (c *Context) GetAbortSignal() <-chan struct{} { return c.deps.AbortSignal }

func (c *Context) IntrospectRecipe(ctx context.Context, recipe string) (ictx.RecipeInfo, error) {
	if c.deps.IntrospectRecipe == nil {
		return ictx.RecipeInfo{}, nil
	}
	return c.deps.IntrospectRecipe(ctx, recipe)
}

func (c *Context) GetCount(inv ictx.Inventory, item string) int {
	if c.deps.GetCount == nil {
		return 0
	}
	return c.deps.GetCount(inv, item)
}

func (c *Context) FetchInventorySnapshot(ctx context.Context, taskID string) (ictx.Inventory, error) {
	if c.deps.FetchInventorySnapshot == nil {
		return nil, nil
	}
	return c.deps.FetchInventorySnapshot(ctx, taskID)
}

func (c *Context) InjectDynamicPrereqForCraft(ctx context.Context, t *task.Task) bool {
	if c.deps.InjectCraftPrereq == nil {
		return false
	}
	return c.deps.InjectCraftPrereq(ctx, t)
}

func (c *Context) GetThreatSnapshot(ctx context.Context) ictx.ThreatSnapshot {
	if c.deps.GetThreatSnapshot == nil {
		return ictx.ThreatSnapshot{OverallThreatLevel: ictx.ThreatNone}
	}
	return c.deps.GetThreatSnapshot(ctx)
}

func (c *Context) RegenerateSteps(ctx context.Context, taskID string, params ictx.RegenerateParams) ictx.RegenerateResult {
	if c.deps.RegenerateSteps == nil {
		return ictx.RegenerateResult{}
	}
	return c.deps.RegenerateSteps(ctx, taskID, params)
}

func (c *Context) RecomputeProgressAndMaybeComplete(ctx context.Context, t *task.Task) {
	if c.deps.RecomputeProgress != nil {
		c.deps.RecomputeProgress(ctx, t)
	}
}

func (c *Context) TaskLifecycleEvent(ctx context.Context, name string, payload map[string]any) {
	if c.deps.TaskLifecycleEvent != nil {
		c.deps.TaskLifecycleEvent(ctx, name, payload)
	}
}

func (c *Context) RecordDispatchedStep(ctx context.Context, runID string, stepID, leaf, originalLeaf string, args map[string]any, result ictx.ActionResult) {
	c.deps.Recorder.RecordDispatch(ctx, runID, goldenrun.DispatchedStep{
		StepID:       stepID,
		Leaf:         leaf,
		OriginalLeaf: originalLeaf,
		Args:         args,
		Result:       stepResultOf(result),
		DispatchedAt: c.deps.Clock(),
	})
}

func (c *Context) RecordRecoveryDispatch(ctx context.Context, runID, stepID, leaf, mode, forTaskID string, args map[string]any, result ictx.ActionResult) {
	c.deps.Recorder.RecordDispatch(ctx, runID, goldenrun.DispatchedStep{
		StepID:          stepID,
		Leaf:            leaf,
		Args:            args,
		Result:          stepResultOf(result),
		DispatchedAt:    c.deps.Clock(),
		RecoveryMode:    mode,
		RecoveryForTask: forTaskID,
	})
}

func (c *Context) RecordShadowStep(ctx context.Context, runID, stepID, leaf string) {
	c.deps.Recorder.RecordShadowDispatch(ctx, runID, goldenrun.ShadowStep{
		StepID:     stepID,
		Leaf:       leaf,
		ObservedAt: c.deps.Clock(),
	})
}

func (c *Context) RecordBlocked(ctx context.Context, runID, reason, leaf string, payload map[string]any, taskID string) {
	c.deps.Metrics.IncCounter("executor.blocked", 1, "reason", reason, "leaf", leaf)
	c.deps.Recorder.RecordExecutorBlocked(ctx, runID, reason, leaf, payload, taskID)
}

func (c *Context) RecordVerification(ctx context.Context, runID, status, kind, detail string) {
	c.deps.Recorder.RecordVerification(ctx, runID, goldenrun.Verification{
		Status: status,
		Kind:   kind,
		Detail: detail,
	})
}

func (c *Context) RecordRegeneration(ctx context.Context, runID string, success bool, reason string) {
	c.deps.Recorder.RecordRegenerationAttempt(ctx, runID, success, reason)
}

func (c *Context) RecordRewriteUsed(ctx context.Context, runID, leaf, originalLeaf string) {
	c.deps.Recorder.RecordLeafRewriteUsed(ctx, runID, leaf, originalLeaf)
}

func (c *Context) RecordLoopFailure(ctx context.Context, signatureID string, occ ictx.LoopOccurrence) *ictx.LoopEpisode {
	if c.deps.Breaker == nil {
		return nil
	}
	c.deps.Recorder.MarkLoopBreakerEvaluated(ctx, occ.RunID)
	episode := c.deps.Breaker.RecordFailure(signatureID, loopbreaker.Occurrence{
		TaskID: occ.TaskID,
		RunID:  occ.RunID,
	})
	if episode == nil {
		return nil
	}
	return &ictx.LoopEpisode{
		SignatureID:         episode.SignatureID,
		Occurrences:         episode.Occurrences,
		WindowMs:            episode.WindowMs,
		SuppressedUntilMs:   episode.SuppressedUntil.UnixMilli(),
		ContributingTaskIDs: episode.ContributingTaskIDs,
		ContributingRunIDs:  episode.ContributingRunIDs,
	}
}

func (c *Context) IsLoopSuppressed(ctx context.Context, signatureID string) bool {
	if c.deps.Breaker == nil {
		return false
	}
	return c.deps.Breaker.IsSuppressed(signatureID)
}

func (c *Context) RecordLoopDetected(ctx context.Context, runID string, episode ictx.LoopEpisode) {
	mode := string(loopbreaker.ModeShadow)
	if c.deps.Breaker != nil {
		mode = string(c.deps.Breaker.Mode())
	}
	c.deps.Recorder.RecordLoopDetected(ctx, runID, map[string]any{
		"schema":                "loop_detected_episode_v1",
		"mode":                  mode,
		"signature_id":          episode.SignatureID,
		"occurrences":           episode.Occurrences,
		"window_ms":             episode.WindowMs,
		"suppressed_until":      episode.SuppressedUntilMs,
		"contributing_task_ids": episode.ContributingTaskIDs,
		"contributing_run_ids":  episode.ContributingRunIDs,
	})
}

func stepResultOf(result ictx.ActionResult) *goldenrun.StepResult {
	switch {
	case result.OK:
		return &goldenrun.StepResult{Status: "ok"}
	case result.Metadata != nil && result.Metadata["reason"] == "no_mapped_action":
		return &goldenrun.StepResult{Status: "blocked", Error: result.Error}
	default:
		return &goldenrun.StepResult{Status: "error", Error: result.Error}
	}
}
