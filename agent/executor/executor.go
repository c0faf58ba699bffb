// Package executor implements the Step Executor: the ordered guard
// pipeline, dispatch, and post-dispatch retry state machine. It
// is pure-dispatch with all side effects confined to the injected Context;
// no failure ever propagates as an error across the boundary; every
// failure resolves into a (metadata mutation, recorded decision) pair.
package executor

import (
	"context"

	"github.com/darianrosebrook/sterling-executor/agent/leaf"
	"github.com/darianrosebrook/sterling-executor/agent/task"
	"github.com/darianrosebrook/sterling-executor/agent/toolerr"
)

// Outcome summarizes what a single Execute call did, for callers (tests,
// the Coordinator) that want to observe the tick without inspecting task
// metadata directly.
type Outcome struct {
	Blocked     bool
	BlockReason string
	Dispatched  bool
	Recovered   bool
	Failed      bool
}

// Execute runs one scheduling tick for (t, step) against ectx. runID
// identifies the golden-run artifact this tick's decisions are recorded
// into. Guards are evaluated in order; the first match returns.
func Execute(ctx context.Context, t *task.Task, step task.Step, ectx Context, runID string) Outcome {
	now := ectx.Now()
	cfg := ectx.Config()

	stepLeaf, _ := step.Meta["leaf"].(string)
	if stepLeaf == "" {
		stepLeaf = "unknown"
	}

	// 1. Planning-incomplete gate.
	if t.GetBool(task.KeyPlanningIncomplete) {
		block(t, ReasonPlanningIncomplete, now+5*60*1000, now)
		ectx.RecordBlocked(ctx, runID, ReasonPlanningIncomplete, stepLeaf, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonPlanningIncomplete}
	}

	// 2. Leaf resolution.
	exec, ok := leaf.StepToLeafExecution(step)
	if !ok {
		ectx.RecordBlocked(ctx, runID, "unknown_leaf", stepLeaf, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: "unknown_leaf"}
	}

	// 3. Derived-args rejection (live only).
	if ectx.Mode() == ModeLive && exec.ArgsSource == leaf.ArgsDerived {
		block(t, ReasonDerivedArgsNotLive, now+5*60*1000, now)
		ectx.RecordBlocked(ctx, runID, ReasonDerivedArgsNotLive, exec.LeafName, map[string]any{"argsSource": string(exec.ArgsSource)}, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonDerivedArgsNotLive}
	}

	// 4. Sentinel-args rejection (live only).
	if ectx.Mode() == ModeLive && isSentinelArgs(exec) {
		block(t, ReasonSentinelArgsNotLive, now+5*60*1000, now)
		ectx.RecordBlocked(ctx, runID, ReasonSentinelArgsNotLive, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonSentinelArgsNotLive}
	}

	// 5. Legacy rewrite policy.
	if exec.OriginalLeaf != "" {
		if ectx.Mode() == ModeLive && !cfg.LegacyLeafRewriteEnabled {
			block(t, ReasonLegacyRewriteDisabled, now+5*60*1000, now)
			ectx.RecordBlocked(ctx, runID, ReasonLegacyRewriteDisabled, exec.LeafName, map[string]any{
				"leaf": exec.LeafName, "original_leaf": exec.OriginalLeaf,
			}, t.ID)
			return Outcome{Blocked: true, BlockReason: ReasonLegacyRewriteDisabled}
		}
		if ectx.Mode() == ModeShadow {
			ectx.RecordRewriteUsed(ctx, runID, exec.LeafName, exec.OriginalLeaf)
		}
	}

	// 6. Build-exec budget.
	if cfg.BuildingLeaves[exec.LeafName] && !cfg.BuildExecBudgetDisabled {
		if outcome, blocked := applyBuildExecBudget(ctx, t, ectx, runID, exec, cfg, now); blocked {
			return outcome
		}
	}

	// 7. Normalize + validate args.
	normalized := leaf.NormalizeLeafArgs(exec.LeafName, exec.Args)
	exec.Args = normalized
	if reason := leaf.ValidateLeafArgs(exec.LeafName, exec.Args, true); reason != "" {
		block(t, reason, now+5*60*1000, now)
		ectx.RecordBlocked(ctx, runID, reason, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: reason}
	}

	// 8. Craft prerequisite injection.
	if exec.LeafName == "craft_recipe" {
		if injected := tryInjectCraftPrereq(ctx, t, ectx, exec); injected {
			return Outcome{}
		}
	}

	// 9. Allowlist.
	toolName := "minecraft." + exec.LeafName
	if !isAllowlisted(cfg, exec.LeafName) {
		step.Meta["executable"] = false
		step.Meta["blocked"] = true
		reason := ReasonUnknownLeaf(exec.LeafName)
		block(t, reason, 0, now)
		ectx.TaskLifecycleEvent(ctx, "unknown_leaf_rejected", map[string]any{"leaf": exec.LeafName})
		ectx.RecordBlocked(ctx, runID, reason, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: reason}
	}

	// 10. Task-type bridge gate.
	if cfg.TaskTypeBridgeLeaves[exec.LeafName] {
		bridgeOK := ectx.Mode() == ModeShadow && cfg.EnableTaskTypeBridge
		if !bridgeOK {
			reason := ReasonTaskTypeBridgeOnlyShadow(exec.LeafName)
			block(t, reason, 0, now)
			ectx.RecordBlocked(ctx, runID, reason, exec.LeafName, nil, t.ID)
			return Outcome{Blocked: true, BlockReason: reason}
		}
	}

	// 11. Shadow short-circuit.
	if ectx.Mode() == ModeShadow {
		ectx.RecordShadowStep(ctx, runID, step.ID, exec.LeafName)
		ectx.RecordVerification(ctx, runID, "skipped", "trace_only", "")
		ectx.StartTaskStep(ctx, t.ID, step.ID, StartStepOpts{DryRun: true})
		return Outcome{}
	}

	// 12. Live args shape check.
	if exec.Args == nil {
		block(t, ReasonInvalidArgs("args must be a plain object"), now+5*60*1000, now)
		ectx.RecordBlocked(ctx, runID, ReasonInvalidArgs("args must be a plain object"), exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonInvalidArgs("args must be a plain object")}
	}

	// 13. Rate limiter.
	if !ectx.CanExecuteStep() {
		block(t, ReasonRateLimited, now+TransientBlockBackoffMs, now)
		ectx.RecordBlocked(ctx, runID, ReasonRateLimited, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonRateLimited}
	}

	// 14. Step start.
	if !ectx.StartTaskStep(ctx, t.ID, step.ID, StartStepOpts{}) {
		block(t, ReasonRigGBlocked, now+TransientBlockBackoffMs, now)
		ectx.RecordBlocked(ctx, runID, ReasonRigGBlocked, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonRigGBlocked}
	}

	// 15. Dispatch.
	result := ectx.ExecuteTool(ctx, toolName, exec.Args, ectx.GetAbortSignal())
	ectx.RecordDispatchedStep(ctx, runID, step.ID, exec.LeafName, exec.OriginalLeaf, exec.Args, result)

	outcome := postDispatch(ctx, t, step, exec, ectx, runID, result, now)
	outcome.Dispatched = true
	return outcome
}

func isSentinelArgs(exec leaf.LeafExecution) bool {
	switch exec.LeafName {
	case "craft_recipe":
		return exec.Args["recipe"] == leaf.SentinelRecipe
	case "smelt":
		return exec.Args["input"] == leaf.SentinelInput
	}
	return false
}

// logCollaboratorError wraps a ctx collaborator failure in a toolerr.Error
// (so the leaf that triggered it travels with the message) and logs it.
// Craft-prerequisite introspection failures never block the task (the
// guard simply declines to inject a prerequisite this tick), but a silently
// swallowed error here is still worth surfacing to an operator.
func logCollaboratorError(ctx context.Context, ectx Context, leafName, op string, err error) {
	logger := ectx.Config().Logger
	if logger == nil || err == nil {
		return
	}
	wrapped := toolerr.NewWithCause(leafName, op, err)
	logger.Warn(ctx, "executor: collaborator call failed", "leaf", leafName, "op", op, "err", wrapped.Error())
}

func isAllowlisted(cfg Config, leafName string) bool {
	// An empty allowlist configuration degrades to "every known leaf is
	// allowed". Entries may name the leaf bare or in tool form.
	if len(cfg.LeafAllowlist) == 0 {
		return leaf.KnownLeaves[leafName]
	}
	return cfg.LeafAllowlist[leafName] || cfg.LeafAllowlist["minecraft."+leafName]
}

func block(t *task.Task, reason string, nextEligibleAt, now int64) {
	patch := task.BlockTaskPatch(reason, task.BlockOpts{
		ExistingMetadata: t.Metadata,
		Now:              now,
		NextEligibleAt:   nextEligibleAt,
	})
	task.Merge(t, patch)
}

func tryInjectCraftPrereq(ctx context.Context, t *task.Task, ectx Context, exec leaf.LeafExecution) bool {
	recipeName, _ := exec.Args["recipe"].(string)
	if recipeName == "" || recipeName == leaf.SentinelRecipe {
		return false
	}
	info, err := ectx.IntrospectRecipe(ctx, recipeName)
	if err != nil {
		logCollaboratorError(ctx, ectx, exec.LeafName, "introspect_recipe", err)
		return false
	}
	inv, err := ectx.FetchInventorySnapshot(ctx, t.ID)
	if err != nil {
		logCollaboratorError(ctx, ectx, exec.LeafName, "fetch_inventory_snapshot", err)
		return false
	}
	short := false
	for _, in := range info.Inputs {
		if ectx.GetCount(inv, in.Item) < in.Count {
			short = true
			break
		}
	}
	if !short {
		return false
	}
	return ectx.InjectDynamicPrereqForCraft(ctx, t)
}

func applyBuildExecBudget(ctx context.Context, t *task.Task, ectx Context, runID string, exec leaf.LeafExecution, cfg Config, now int64) (Outcome, bool) {
	bucket := loadBudgetBucket(t, exec.LeafName)
	if bucket.FirstAt == 0 {
		bucket.FirstAt = now
	}

	if cfg.BuildExecMaxElapsedMs > 0 && now-bucket.FirstAt > cfg.BuildExecMaxElapsedMs {
		reason := ReasonBudgetExhaustedTime(exec.LeafName)
		block(t, reason, 0, now)
		ectx.RecordBlocked(ctx, runID, reason, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: reason}, true
	}
	if cfg.BuildExecMaxAttempts > 0 && bucket.Attempts >= int64(cfg.BuildExecMaxAttempts) {
		reason := ReasonBudgetExhaustedAttempts(exec.LeafName)
		block(t, reason, 0, now)
		ectx.RecordBlocked(ctx, runID, reason, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: reason}, true
	}
	if bucket.LastAt != 0 && cfg.BuildExecMinIntervalMs > 0 && now-bucket.LastAt < cfg.BuildExecMinIntervalMs {
		remaining := cfg.BuildExecMinIntervalMs - (now - bucket.LastAt)
		block(t, ReasonRateLimited, now+remaining, now)
		ectx.RecordBlocked(ctx, runID, ReasonRateLimited, exec.LeafName, map[string]any{"rate_limited": true}, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonRateLimited}, true
	}

	bucket.Attempts++
	bucket.LastAt = now
	storeBudgetBucket(t, exec.LeafName, bucket)
	return Outcome{}, false
}
