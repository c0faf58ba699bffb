package executor

import (
	"context"
	"strings"

	"github.com/darianrosebrook/sterling-executor/agent/failuresig"
	"github.com/darianrosebrook/sterling-executor/agent/leaf"
	"github.com/darianrosebrook/sterling-executor/agent/recovery"
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

// postDispatch applies the post-dispatch state machine after a tool
// dispatch returns, mutating t's metadata and returning the tick's Outcome.
func postDispatch(goCtx context.Context, t *task.Task, step task.Step, exec leaf.LeafExecution, ectx Context, runID string, result ActionResult, now int64) Outcome {
	if reason, _ := result.Metadata["reason"].(string); reason == "no_mapped_action" {
		block(t, ReasonNoMappedAction, now+5*60*1000, now)
		ectx.RecordBlocked(goCtx, runID, ReasonNoMappedAction, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonNoMappedAction}
	}

	if result.OK {
		return onSuccessfulDispatch(goCtx, t, step, exec, ectx, runID, now)
	}

	if strings.Contains(result.Error, "already navigating") {
		ectx.RecordBlocked(goCtx, runID, ReasonNavigatingInProgress, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonNavigatingInProgress}
	}

	if result.Error == "NAV_PREEMPTED" {
		block(t, ReasonSafetyPreempted, now+TransientBlockBackoffMs, now)
		ectx.RecordBlocked(goCtx, runID, ReasonSafetyPreempted, exec.LeafName, nil, t.ID)
		return Outcome{Blocked: true, BlockReason: ReasonSafetyPreempted, Failed: true}
	}

	failureCode := failureCodeOf(result)
	if isDeterministicFailure(failureCode) {
		reason := ReasonDeterministicFailure(failureCode)
		if logger := ectx.Config().Logger; logger != nil {
			logger.Error(goCtx, "task terminated on deterministic failure", "taskId", t.ID, "leaf", exec.LeafName, "failureCode", failureCode)
		}
		task.Merge(t, task.Patch{
			task.KeyBlockedReason: reason,
			task.KeyBlockedAt:     now,
			task.KeyFailureCode:   failureCode,
			task.KeyFailureError:  result.Error,
			task.KeyStatus:        task.StatusFailed,
		})
		ectx.RecordBlocked(goCtx, runID, reason, exec.LeafName, nil, t.ID)
		observeLoopFailure(goCtx, t, ectx, runID, failuresig.Tuple{
			Category:      failuresig.CategoryTaskTerminal,
			Leaf:          exec.LeafName,
			FailureCode:   failureCode,
			BlockedReason: reason,
		})
		ectx.RecomputeProgressAndMaybeComplete(goCtx, t)
		return Outcome{Blocked: true, BlockReason: reason, Failed: true}
	}

	if result.ToolDiagnostics != nil && result.ToolDiagnostics.RetryHint == "reposition_or_rescan" {
		recovery.Inject(goCtx, t, ectx, runID, exec.LeafName, exec.Args)
		return Outcome{Recovered: true}
	}

	if exec.LeafName == "craft_recipe" {
		if tryInjectCraftPrereq(goCtx, t, ectx, exec) {
			return Outcome{}
		}
	}

	return retryOrRegenerate(goCtx, t, exec, ectx, runID, result, now)
}

func onSuccessfulDispatch(goCtx context.Context, t *task.Task, step task.Step, exec leaf.LeafExecution, ectx Context, runID string, now int64) Outcome {
	verified := ectx.CompleteTaskStep(goCtx, t.ID, step.ID, CompleteStepOpts{})
	if verified {
		task.Merge(t, task.Patch{task.KeyVerifyFailCount: int64(0)})
		ectx.RecordVerification(goCtx, runID, "verified", "completion", "")
		return Outcome{}
	}

	if t.GetString(task.KeySource) == task.SourceSterlingSmoke {
		task.Merge(t, task.Patch{
			task.KeySmokePolicyApplied: true,
			task.KeySmokePolicyReason:  "skip_verification",
			task.KeySmokeVerifySkipped: true,
		})
		ectx.CompleteTaskStep(goCtx, t.ID, step.ID, CompleteStepOpts{SkipVerification: true})
		ectx.RecordVerification(goCtx, runID, "skipped", "smoke_policy", "skip_verification")
		return Outcome{}
	}

	verifyFailCount := t.GetInt64(task.KeyVerifyFailCount) + 1
	if verifyFailCount >= 5 {
		ectx.CompleteTaskStep(goCtx, t.ID, step.ID, CompleteStepOpts{SkipVerification: true})
		task.Merge(t, task.Patch{
			task.KeyVerifyFailCount: int64(0),
			task.KeyLastSkippedStep: step.ID,
		})
		ectx.RecordVerification(goCtx, runID, "failed", "force_complete", "verifyFailCount>=5")
		return Outcome{}
	}

	backoff := verifyFailCount * 5000
	if backoff > 30_000 {
		backoff = 30_000
	}
	task.Merge(t, task.Patch{
		task.KeyVerifyFailCount: verifyFailCount,
		task.KeyNextEligibleAt:  now + backoff,
	})
	ectx.RecordVerification(goCtx, runID, "failed", "completion", "")
	return Outcome{}
}

func retryOrRegenerate(goCtx context.Context, t *task.Task, exec leaf.LeafExecution, ectx Context, runID string, result ActionResult, now int64) Outcome {
	retryCount := t.GetInt64(task.KeyRetryCount) + 1
	maxRetries := t.GetInt64(task.KeyMaxRetries)
	if maxRetries == 0 {
		maxRetries = ectx.Config().MaxRetries
	}
	if t.GetBool(task.KeyNoRetry) || t.GetBool(task.KeyNoRetryLegacy) {
		maxRetries = 1
	}
	backoffMs := backoffForRetry(retryCount)

	tuple := failuresig.Tuple{
		Category:    failuresig.CategoryToolFailure,
		Leaf:        exec.LeafName,
		FailureCode: failureCodeOf(result),
	}
	if result.ToolDiagnostics != nil {
		tuple.DiagReasonCode = result.ToolDiagnostics.ReasonCode
	}
	sigID := observeLoopFailure(goCtx, t, ectx, runID, tuple)

	if ectx.IsLoopSuppressed(goCtx, sigID) {
		// Active-mode suppression: the same semantic failure already fired
		// a loop episode across distinct tasks. Park the task for
		// DeterministicBlockBackoffMs instead of burning another retry on it.
		// The park length is fixed and independent of the breaker's
		// suppression TTL; a task that comes due while the signature is still
		// suppressed is dispatched again, and parked again if it fails.
		task.Merge(t, task.Patch{
			task.KeyRetryCount:     retryCount,
			task.KeyNextEligibleAt: now + DeterministicBlockBackoffMs,
		})
		ectx.RecordBlocked(goCtx, runID, "loop_suppressed", exec.LeafName, map[string]any{"signature_id": sigID}, t.ID)
		return Outcome{Blocked: true, BlockReason: "loop_suppressed"}
	}

	if retryCount < maxRetries {
		task.Merge(t, task.Patch{
			task.KeyRetryCount:     retryCount,
			task.KeyNextEligibleAt: now + backoffMs,
		})
		return Outcome{}
	}

	task.Merge(t, task.Patch{task.KeyRetryCount: retryCount})

	if t.GetString(task.KeySource) == task.SourceSterlingSmoke {
		task.Merge(t, task.Patch{
			task.KeySmokePolicyApplied: true,
			task.KeySmokePolicyReason:  "fail_no_regen",
			task.KeySmokeNoRetry:       true,
			task.KeyStatus:             task.StatusFailed,
		})
		ectx.RecordBlocked(goCtx, runID, "smoke_policy:fail_no_regen", exec.LeafName, nil, t.ID)
		ectx.RecomputeProgressAndMaybeComplete(goCtx, t)
		return Outcome{Blocked: true, Failed: true}
	}

	if t.GetBool(task.KeyDisableRegen) {
		return exhaustRetries(goCtx, t, exec, ectx, runID, now)
	}

	repairCount := t.GetInt64(task.KeyRepairCount)
	if repairCount < 2 {
		regenResult := ectx.RegenerateSteps(goCtx, t.ID, RegenerateParams{
			FailedLeaf:   exec.LeafName,
			ReasonClass:  failureCodeOf(result),
			AttemptCount: int(retryCount),
		})
		if regenResult.Success && regenResult.StepsDigest != t.GetString(task.KeyLastStepsDigest) {
			patch := task.RegenSuccessPatch(task.RegenParams{
				RepairCount: repairCount + 1,
				StepsDigest: regenResult.StepsDigest,
				Now:         now,
			})
			task.Merge(t, patch)
			ectx.RecordRegeneration(goCtx, runID, true, "")
			return Outcome{Recovered: true}
		}
		ectx.RecordRegeneration(goCtx, runID, false, "no_progress")
	}

	return exhaustRetries(goCtx, t, exec, ectx, runID, now)
}

func exhaustRetries(goCtx context.Context, t *task.Task, exec leaf.LeafExecution, ectx Context, runID string, now int64) Outcome {
	task.Merge(t, task.Patch{
		task.KeyBlockedReason: ReasonMaxRetriesExceeded,
		task.KeyBlockedAt:     now,
		task.KeyStatus:        task.StatusFailed,
	})
	ectx.RecordBlocked(goCtx, runID, ReasonMaxRetriesExceeded, exec.LeafName, nil, t.ID)
	ectx.RecomputeProgressAndMaybeComplete(goCtx, t)
	return Outcome{Blocked: true, BlockReason: ReasonMaxRetriesExceeded, Failed: true}
}

// observeLoopFailure feeds one failure occurrence to the Loop Breaker and
// persists the episode when this occurrence tips the signature's window
// over the threshold. Returns the signature id so callers can consult
// suppression state.
func observeLoopFailure(goCtx context.Context, t *task.Task, ectx Context, runID string, tuple failuresig.Tuple) string {
	sigID := failuresig.Compute(tuple)
	episode := ectx.RecordLoopFailure(goCtx, sigID, LoopOccurrence{TaskID: t.ID, RunID: runID})
	if episode != nil {
		ectx.RecordLoopDetected(goCtx, runID, *episode)
	}
	return sigID
}

func failureCodeOf(result ActionResult) string {
	if result.FailureCode != "" {
		return result.FailureCode
	}
	if errVal, ok := result.Data["error"].(map[string]any); ok {
		if code, ok := errVal["code"].(string); ok {
			return code
		}
	}
	return ""
}

// backoffForRetry computes min(1000 * 2^retryCount, 30_000) without
// overflowing for large retry counts.
func backoffForRetry(retryCount int64) int64 {
	if retryCount <= 0 {
		return 1000
	}
	if retryCount > 5 {
		return 30_000
	}
	backoff := int64(1000) << uint(retryCount)
	if backoff > 30_000 {
		return 30_000
	}
	return backoff
}
