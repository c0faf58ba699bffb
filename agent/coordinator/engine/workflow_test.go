package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/darianrosebrook/sterling-executor/agent/coordinator/engine"
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

func newTestTask() *task.Task {
	return &task.Task{
		ID:       "t1",
		Metadata: map[string]any{},
		Steps: []task.Step{
			{ID: "s1", Order: 0, Label: "mine_log", Meta: map[string]any{"leaf": "dig_block"}},
		},
	}
}

func TestTaskLifecycleWorkflow_CompletesOnFirstDispatch(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(engine.ExecuteStepActivityName, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in engine.StepTick) (engine.StepTickResult, error) {
			done := in.Task
			for i := range done.Steps {
				done.Steps[i].Done = true
			}
			done.Metadata[task.KeyStatus] = task.StatusComplete
			return engine.StepTickResult{Task: done, Dispatched: true}, nil
		},
	)

	env.ExecuteWorkflow(engine.TaskLifecycleWorkflow, engine.TaskLifecycleInput{
		Task:  newTestTask(),
		RunID: "golden-run-1",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result engine.TaskLifecycleResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 1, result.Ticks)
	require.Equal(t, task.StatusComplete, result.Task.Metadata[task.KeyStatus])
}

func TestTaskLifecycleWorkflow_SleepsThenRetriesOnBlock(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	attempt := 0
	env.OnActivity(engine.ExecuteStepActivityName, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in engine.StepTick) (engine.StepTickResult, error) {
			attempt++
			tk := in.Task
			if attempt == 1 {
				now := env.Now().UnixMilli()
				tk.Metadata[task.KeyNextEligibleAt] = now + 1000
				return engine.StepTickResult{Task: tk, Blocked: true, BlockReason: "rate-limited"}, nil
			}
			for i := range tk.Steps {
				tk.Steps[i].Done = true
			}
			tk.Metadata[task.KeyStatus] = task.StatusComplete
			return engine.StepTickResult{Task: tk, Dispatched: true}, nil
		},
	)

	env.ExecuteWorkflow(engine.TaskLifecycleWorkflow, engine.TaskLifecycleInput{
		Task:  newTestTask(),
		RunID: "golden-run-2",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result engine.TaskLifecycleResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 2, result.Ticks)
	require.Equal(t, task.StatusComplete, result.Task.Metadata[task.KeyStatus])
}
