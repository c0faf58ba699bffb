package runtimectx_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianrosebrook/sterling-executor/agent/executor"
	"github.com/darianrosebrook/sterling-executor/agent/goldenrun"
	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/agent/loopbreaker"
	"github.com/darianrosebrook/sterling-executor/agent/runtimectx"
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

func newLiveContext(t *testing.T, tool func(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ictx.ActionResult) (*runtimectx.Context, *goldenrun.Recorder) {
	t.Helper()
	rec := goldenrun.New(t.TempDir())
	ectx := runtimectx.New(runtimectx.Deps{
		Config:      executor.DefaultConfig(),
		Mode:        ictx.ModeLive,
		Recorder:    rec,
		Breaker:     loopbreaker.New(),
		ExecuteTool: tool,
		Clock:       func() int64 { return 1_000_000 },
	})
	return ectx, rec
}

func TestExecuteThroughLiveContext_RecordsDispatchArtifact(t *testing.T) {
	var calls int
	ectx, rec := newLiveContext(t, func(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ictx.ActionResult {
		calls++
		assert.Equal(t, "minecraft.craft_recipe", toolName)
		return ictx.ActionResult{OK: true}
	})

	tk := &task.Task{ID: "task-live-1"}
	step := task.Step{ID: "step-1", Meta: map[string]any{
		"leaf": "craft_recipe",
		"args": map[string]any{"recipe": "oak_planks", "qty": 4.0},
	}}

	outcome := executor.Execute(context.Background(), tk, step, ectx, "run-live-1")

	require.False(t, outcome.Blocked)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, 1, calls)

	rep := rec.GetReport("run-live-1")
	require.NotNil(t, rep)
	require.Len(t, rep.Execution.DispatchedSteps, 1)
	assert.Equal(t, "ok", rep.Execution.DispatchedSteps[0].Result.Status)
	require.NotEmpty(t, rep.Execution.Decisions)
	assert.Equal(t, "dispatch", rep.Execution.Decisions[len(rep.Execution.Decisions)-1].Reason)
	assert.True(t, rep.Runtime.Executor.LoopStarted)
}

func TestExecuteThroughLiveContext_BlockedWritesExecutorBlocked(t *testing.T) {
	ectx, rec := newLiveContext(t, nil)

	tk := &task.Task{ID: "task-live-2", Metadata: map[string]any{task.KeyPlanningIncomplete: true}}
	step := task.Step{ID: "step-1", Meta: map[string]any{"leaf": "craft_recipe"}}

	outcome := executor.Execute(context.Background(), tk, step, ectx, "run-live-2")

	require.True(t, outcome.Blocked)
	rep := rec.GetReport("run-live-2")
	require.NotNil(t, rep)
	assert.Equal(t, "PLANNING_INCOMPLETE", rep.Execution.ExecutorBlockedReason)
	assert.False(t, rep.Runtime.Executor.LoopStarted)
}

func TestLiveContext_LoopEpisodeReachesArtifact(t *testing.T) {
	rec := goldenrun.New(t.TempDir())
	breaker := loopbreaker.New(loopbreaker.WithThreshold(2))
	ectx := runtimectx.New(runtimectx.Deps{
		Config:   executor.DefaultConfig(),
		Mode:     ictx.ModeLive,
		Recorder: rec,
		Breaker:  breaker,
		ExecuteTool: func(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ictx.ActionResult {
			return ictx.ActionResult{OK: false, Error: "boom", FailureCode: "TIMEOUT"}
		},
		Clock: time.Now().UnixMilli,
	})

	step := task.Step{ID: "step-1", Meta: map[string]any{
		"leaf": "step_forward_safely",
		"args": map[string]any{"distance": 1.0},
	}}

	for _, taskID := range []string{"t1", "t2"} {
		tk := &task.Task{ID: taskID}
		executor.Execute(context.Background(), tk, step, ectx, "run-loop")
	}

	rep := rec.GetReport("run-loop")
	require.NotNil(t, rep)
	require.Len(t, rep.Execution.LoopDetected, 1)
	assert.Equal(t, "loop_detected_episode_v1", rep.Execution.LoopDetected[0]["schema"])
	assert.Equal(t, 2, rep.Execution.LoopDetected[0]["occurrences"])
	assert.NotZero(t, rep.Execution.LoopBreakerEvaluatedAt)
}

func TestLiveContext_ShadowModeRecordsShadowStep(t *testing.T) {
	rec := goldenrun.New(t.TempDir())
	ectx := runtimectx.New(runtimectx.Deps{
		Config:   executor.DefaultConfig(),
		Mode:     ictx.ModeShadow,
		Recorder: rec,
		Clock:    func() int64 { return 42 },
	})

	tk := &task.Task{ID: "task-shadow"}
	step := task.Step{ID: "step-1", Meta: map[string]any{
		"leaf": "craft_recipe",
		"args": map[string]any{"recipe": "oak_planks", "qty": 1.0},
	}}

	outcome := executor.Execute(context.Background(), tk, step, ectx, "run-shadow")

	require.False(t, outcome.Blocked)
	rep := rec.GetReport("run-shadow")
	require.NotNil(t, rep)
	require.Len(t, rep.Execution.ShadowSteps, 1)
	assert.Equal(t, "skipped", rep.Execution.Verification.Status)
	assert.Equal(t, "trace_only", rep.Execution.Verification.Kind)
	assert.True(t, rep.Runtime.Executor.LoopStarted)
}
