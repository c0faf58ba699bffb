package engine

import (
	"context"

	"github.com/darianrosebrook/sterling-executor/agent/executor"
)

// ContextFactory builds the executor.Context an ExecuteStep activity
// dispatches through. It is called once per activity invocation (not once
// per workflow) so a factory backed by per-call collaborators (a fresh
// Mongo session, a rate limiter shared across the worker process) can scope
// its resources to the activity's lifetime.
type ContextFactory func(ctx context.Context) (executor.Context, error)

// activities holds the collaborator factory ExecuteStep closes over. It is
// unexported: New registers its ExecuteStep method under
// ExecuteStepActivityName; callers do not construct this type directly.
type activities struct {
	newContext ContextFactory
}

// ExecuteStep is the TaskLifecycleWorkflow's one activity: it runs a single
// scheduling tick (agent/executor.Execute) against a freshly built
// executor.Context and returns the mutated task plus a serializable
// summary of the tick's Outcome.
func (a *activities) ExecuteStep(ctx context.Context, in StepTick) (StepTickResult, error) {
	ectx, err := a.newContext(ctx)
	if err != nil {
		return StepTickResult{}, err
	}
	outcome := executor.Execute(ctx, in.Task, in.Step, ectx, in.RunID)
	return StepTickResult{
		Task:        in.Task,
		Blocked:     outcome.Blocked,
		BlockReason: outcome.BlockReason,
		Dispatched:  outcome.Dispatched,
		Recovered:   outcome.Recovered,
		Failed:      outcome.Failed,
	}, nil
}
