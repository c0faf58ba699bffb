package engine

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/darianrosebrook/sterling-executor/agent/task"
)

// TaskLifecycleWorkflowName is the Temporal workflow type name registered
// for TaskLifecycleWorkflow.
const TaskLifecycleWorkflowName = "TaskLifecycleWorkflow"

// ExecuteStepActivityName is the Temporal activity type name registered for
// ExecuteStep.
const ExecuteStepActivityName = "ExecuteStep"

// MaxTicksPerWorkflow bounds how many scheduling ticks a single
// TaskLifecycleWorkflow execution runs before returning control (and its
// accumulated task state) to the caller. It exists for the same reason the
// in-process Loop Breaker exists: a task that never converges must not grow
// an unbounded workflow history.
const MaxTicksPerWorkflow = 500

// TaskLifecycleInput starts a TaskLifecycleWorkflow for one Task.
type TaskLifecycleInput struct {
	Task  *task.Task
	RunID string
}

// TaskLifecycleResult is returned when a TaskLifecycleWorkflow completes: a
// task reaching a terminal state (complete/failed) or the workflow hitting
// MaxTicksPerWorkflow.
type TaskLifecycleResult struct {
	Task        *task.Task
	Ticks       int
	TicksCapped bool
}

// StepTick is the input to the ExecuteStep activity: the task and the one
// step being ticked, plus the golden-run id decisions are recorded under.
type StepTick struct {
	Task  *task.Task
	Step  task.Step
	RunID string
}

// StepTickResult is the ExecuteStep activity's output: the task as mutated
// by the tick (block/retry/regen metadata, progress, step completion) and
// a serializable summary of what happened.
type StepTickResult struct {
	Task        *task.Task
	Blocked     bool
	BlockReason string
	Dispatched  bool
	Recovered   bool
	Failed      bool
}

// TaskLifecycleWorkflow durably runs a Task to completion. Each loop
// iteration schedules ExecuteStep for the first not-yet-done step, then
// either advances immediately (dispatched/recovered) or sleeps until the
// task's nextEligibleAt before retrying (blocked). The workflow never
// inspects tool results or wall-clock time directly, only the activity
// result and workflow.Now/workflow.Sleep, so replay stays deterministic.
func TaskLifecycleWorkflow(ctx workflow.Context, in TaskLifecycleInput) (TaskLifecycleResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	t := in.Task
	ticks := 0
	for ticks < MaxTicksPerWorkflow {
		if isTerminal(t) {
			return TaskLifecycleResult{Task: t, Ticks: ticks}, nil
		}
		step, ok := firstPendingStep(t)
		if !ok {
			return TaskLifecycleResult{Task: t, Ticks: ticks}, nil
		}

		var result StepTickResult
		if err := workflow.ExecuteActivity(ctx, ExecuteStepActivityName, StepTick{
			Task:  t,
			Step:  step,
			RunID: in.RunID,
		}).Get(ctx, &result); err != nil {
			return TaskLifecycleResult{Task: t, Ticks: ticks}, fmt.Errorf("engine: execute step: %w", err)
		}
		t = result.Task
		ticks++

		if result.Blocked {
			if err := sleepUntilEligible(ctx, t); err != nil {
				return TaskLifecycleResult{Task: t, Ticks: ticks}, err
			}
		}
	}

	return TaskLifecycleResult{Task: t, Ticks: ticks, TicksCapped: true}, nil
}

func isTerminal(t *task.Task) bool {
	status, _ := t.Metadata[task.KeyStatus].(string)
	return status == task.StatusComplete || status == task.StatusFailed
}

func firstPendingStep(t *task.Task) (task.Step, bool) {
	for _, s := range t.Steps {
		if !s.Done {
			return s, true
		}
	}
	return task.Step{}, false
}

// sleepUntilEligible sleeps until t's metadata-recorded nextEligibleAt
// (epoch milliseconds), or a short fixed backoff if none is set. Using
// workflow.Sleep (not time.Sleep) keeps the wait replay-safe and lets
// Temporal park the workflow without holding a worker slot.
func sleepUntilEligible(ctx workflow.Context, t *task.Task) error {
	nowMs := workflow.Now(ctx).UnixMilli()
	nextMs, _ := t.Metadata[task.KeyNextEligibleAt].(int64)
	if nextMs == 0 {
		if f, ok := t.Metadata[task.KeyNextEligibleAt].(float64); ok {
			nextMs = int64(f)
		}
	}
	wait := time.Duration(nextMs-nowMs) * time.Millisecond
	if wait <= 0 {
		wait = time.Second
	}
	return workflow.Sleep(ctx, wait)
}
