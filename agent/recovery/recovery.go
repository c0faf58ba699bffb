// Package recovery implements the doom-loop breaker the Step Executor
// invokes when a tool failure carries retry_hint == "reposition_or_rescan".
package recovery

import (
	"context"
	"strconv"
	"strings"

	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

// MaxActions is the recovery-action budget per task.
const MaxActions = 3

// RecoveryMaxActions bounds reposition retries; a
// task terminates after RecoveryMaxActions+1 reposition retries overall.
const RecoveryMaxActions = 3

// Mode is the recovery action chosen for a given tick.
type Mode string

const (
	ModeRetreat    Mode = "retreat"
	ModeExplore    Mode = "explore"
	ModeReposition Mode = "reposition"
)

// acquisitionLeaves names leaves treated as resource-acquisition attempts
// for recovery-mode selection.
var acquisitionLeaves = map[string]bool{
	"acquire_material": true,
}

// Inject runs one recovery tick for t, whose dispatch of failedLeaf (with
// failedArgs) just failed with retry_hint == "reposition_or_rescan". It
// always resolves to a metadata mutation (and, on a live dispatch, a
// recorded decision); it never returns an error across the boundary.
func Inject(goCtx context.Context, t *task.Task, ectx ictx.Context, runID, failedLeaf string, failedArgs map[string]any) {
	now := ectx.Now()
	recoveryActionCount := t.GetInt64(task.KeyRecoveryActionCount)
	repositionRetryCount := t.GetInt64(task.KeyRepositionRetryCount)

	// 1. Budget exhausted.
	if recoveryActionCount >= MaxActions {
		task.Merge(t, task.Patch{
			task.KeyLastRecoveryOutcome: "budget_exhausted",
			task.KeyNextEligibleAt:      now + 60_000,
		})
		return
	}

	// 2. Reposition-retry terminal check.
	if repositionRetryCount+1 >= int64(RecoveryMaxActions)+1 {
		task.Merge(t, task.Patch{
			task.KeyBlockedReason: "MAX_RETRIES_EXCEEDED",
			task.KeyBlockedAt:     now,
			task.KeyStatus:        task.StatusFailed,
		})
		return
	}

	// 3. Threat snapshot.
	threat := ectx.GetThreatSnapshot(goCtx)

	// 4. Choose recovery mode. The broadening threshold reads against the
	// count this attempt will leave behind, not the count observed before
	// it: the first attempt (repositionRetryCount 0 -> 1) still narrows to
	// the failed item; every attempt from the second onward broadens.
	mode, toolName, args := chooseRecoveryMode(threat, failedLeaf, failedArgs, repositionRetryCount+1)

	// 5. Dispatch. The recovery dispatch propagates the same abort signal
	// the executor received.
	leafName := strings.TrimPrefix(toolName, "minecraft.")
	stepID := "recovery-" + t.ID + "-" + modeAndCount(mode, recoveryActionCount)
	result := ectx.ExecuteTool(goCtx, toolName, args, ectx.GetAbortSignal())
	ectx.RecordRecoveryDispatch(goCtx, runID, stepID, leafName, string(mode), t.ID, args, result)

	// 6. Update counters per outcome.
	outcome := "failure"
	backoff := int64(30_000)
	if result.OK {
		outcome = "success"
		backoff = 5_000
	}
	task.Merge(t, task.Patch{
		task.KeyLastRecoveryOutcome:  outcome,
		task.KeyLastRecoveryLeaf:     leafName,
		task.KeyLastRecoveryMode:     string(mode),
		task.KeyRecoveryActionCount:  recoveryActionCount + 1,
		task.KeyRepositionRetryCount: repositionRetryCount + 1,
		task.KeyNextEligibleAt:       now + backoff,
	})
}

// chooseRecoveryMode picks the recovery action. nextRepositionRetryCount is
// the repositionRetryCount value this attempt will leave in metadata: the
// first attempt still narrows to the failed item; every attempt from the
// second onward broadens.
func chooseRecoveryMode(threat ictx.ThreatSnapshot, failedLeaf string, failedArgs map[string]any, nextRepositionRetryCount int64) (Mode, string, map[string]any) {
	switch threat.OverallThreatLevel {
	case ictx.ThreatMedium, ictx.ThreatHigh, ictx.ThreatCritical:
		return ModeRetreat, "minecraft.retreat_from_threat", map[string]any{"retreatDistance": 15}
	}

	if acquisitionLeaves[failedLeaf] {
		args := map[string]any{"reason": "recovery_reposition"}
		if nextRepositionRetryCount < 2 {
			if item, ok := failedArgs["item"]; ok {
				args["resource_tags"] = []any{item}
			}
		} else {
			args["reason"] = "recovery_broadened"
		}
		return ModeExplore, "minecraft.explore_for_resources", args
	}

	return ModeReposition, "minecraft.step_forward_safely", map[string]any{"distance": 2.0}
}

func modeAndCount(mode Mode, count int64) string {
	return string(mode) + "-" + strconv.FormatInt(count, 10)
}
