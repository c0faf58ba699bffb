package executor

import "github.com/darianrosebrook/sterling-executor/agent/task"

const keyBuildExecBudget = "buildExecBudget"

// budgetBucket tracks per-leaf attempts/firstAt/lastAt for the build-exec
// rate/attempt/elapsed guard.
type budgetBucket struct {
	Attempts int64
	FirstAt  int64
	LastAt   int64
}

func loadBudgetBucket(t *task.Task, leaf string) budgetBucket {
	raw, ok := t.Metadata[keyBuildExecBudget]
	if !ok {
		return budgetBucket{}
	}
	m, ok := raw.(map[string]budgetBucket)
	if !ok {
		return budgetBucket{}
	}
	return m[leaf]
}

func storeBudgetBucket(t *task.Task, leaf string, b budgetBucket) {
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	raw, ok := t.Metadata[keyBuildExecBudget]
	m, ok2 := raw.(map[string]budgetBucket)
	if !ok || !ok2 {
		m = map[string]budgetBucket{}
	}
	m[leaf] = b
	t.Metadata[keyBuildExecBudget] = m
}
