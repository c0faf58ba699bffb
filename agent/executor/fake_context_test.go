package executor_test

import (
	"context"

	"github.com/darianrosebrook/sterling-executor/agent/executor"
	"github.com/darianrosebrook/sterling-executor/agent/ictx"
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

// fakeContext is an in-memory ictx.Context double used by executor tests
type fakeContext struct {
	cfg  executor.Config
	mode executor.Mode
	now  int64

	execResults []executor.ActionResult
	execCalls   []fakeExecCall

	canExecute     bool
	startStepOK    bool
	completeStepOK bool

	threat executor.ThreatSnapshot

	regenResult executor.RegenerateResult

	blockedRecords []fakeBlockedRecord
	dispatched     []fakeDispatch
	recoveries     []fakeRecoveryDispatch
	verifications  []fakeVerification
	regenerations  []fakeRegeneration
	rewrites       []fakeRewrite
	lifecycle      []string
	completions    []executor.CompleteStepOpts

	loopEpisode   *executor.LoopEpisode
	loopFailures  []string
	suppressedIDs map[string]bool
	loopDetected  []executor.LoopEpisode
}

type fakeExecCall struct {
	toolName string
	args     map[string]any
}

type fakeBlockedRecord struct {
	runID, reason, leaf string
	payload             map[string]any
	taskID              string
}

type fakeDispatch struct {
	runID, stepID, leaf, originalLeaf string
	args                              map[string]any
	result                            executor.ActionResult
}

type fakeRecoveryDispatch struct {
	runID, stepID, leaf, mode, forTaskID string
	args                                 map[string]any
	result                               executor.ActionResult
}

type fakeVerification struct {
	runID, status, kind, detail string
}

type fakeRegeneration struct {
	runID   string
	success bool
	reason  string
}

type fakeRewrite struct {
	runID, leaf, originalLeaf string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		cfg:            executor.DefaultConfig(),
		mode:           executor.ModeLive,
		now:            1_000_000,
		canExecute:     true,
		startStepOK:    true,
		completeStepOK: true,
		threat:         executor.ThreatSnapshot{OverallThreatLevel: executor.ThreatNone},
	}
}

func (f *fakeContext) Config() executor.Config { return f.cfg }
func (f *fakeContext) Mode() executor.Mode     { return f.mode }

func (f *fakeContext) ExecuteTool(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) executor.ActionResult {
	f.execCalls = append(f.execCalls, fakeExecCall{toolName: toolName, args: args})
	if len(f.execResults) == 0 {
		return executor.ActionResult{OK: true}
	}
	r := f.execResults[0]
	f.execResults = f.execResults[1:]
	return r
}

func (f *fakeContext) CanExecuteStep() bool { return f.canExecute }

func (f *fakeContext) StartTaskStep(ctx context.Context, taskID, stepID string, opts executor.StartStepOpts) bool {
	return f.startStepOK
}

func (f *fakeContext) CompleteTaskStep(ctx context.Context, taskID, stepID string, opts executor.CompleteStepOpts) bool {
	f.completions = append(f.completions, opts)
	if opts.SkipVerification {
		return true
	}
	return f.completeStepOK
}

func (f *fakeContext) GetAbortSignal() <-chan struct{} { return nil }

func (f *fakeContext) IntrospectRecipe(ctx context.Context, recipe string) (executor.RecipeInfo, error) {
	return executor.RecipeInfo{}, nil
}

func (f *fakeContext) GetCount(inv executor.Inventory, item string) int { return 999 }

func (f *fakeContext) FetchInventorySnapshot(ctx context.Context, taskID string) (executor.Inventory, error) {
	return nil, nil
}

func (f *fakeContext) InjectDynamicPrereqForCraft(ctx context.Context, t *task.Task) bool {
	return false
}

func (f *fakeContext) GetThreatSnapshot(ctx context.Context) executor.ThreatSnapshot { return f.threat }

func (f *fakeContext) RegenerateSteps(ctx context.Context, taskID string, params ictx.RegenerateParams) executor.RegenerateResult {
	return f.regenResult
}

func (f *fakeContext) RecomputeProgressAndMaybeComplete(ctx context.Context, t *task.Task) {}

func (f *fakeContext) TaskLifecycleEvent(ctx context.Context, name string, payload map[string]any) {
	f.lifecycle = append(f.lifecycle, name)
}

func (f *fakeContext) RecordDispatchedStep(ctx context.Context, runID string, stepID, leaf, originalLeaf string, args map[string]any, result executor.ActionResult) {
	f.dispatched = append(f.dispatched, fakeDispatch{runID, stepID, leaf, originalLeaf, args, result})
}

func (f *fakeContext) RecordShadowStep(ctx context.Context, runID, stepID, leaf string) {}

func (f *fakeContext) RecordBlocked(ctx context.Context, runID, reason, leaf string, payload map[string]any, taskID string) {
	f.blockedRecords = append(f.blockedRecords, fakeBlockedRecord{runID, reason, leaf, payload, taskID})
}

func (f *fakeContext) RecordVerification(ctx context.Context, runID, status, kind, detail string) {
	f.verifications = append(f.verifications, fakeVerification{runID, status, kind, detail})
}

func (f *fakeContext) RecordRegeneration(ctx context.Context, runID string, success bool, reason string) {
	f.regenerations = append(f.regenerations, fakeRegeneration{runID, success, reason})
}

func (f *fakeContext) RecordRewriteUsed(ctx context.Context, runID, leaf, originalLeaf string) {
	f.rewrites = append(f.rewrites, fakeRewrite{runID, leaf, originalLeaf})
}

func (f *fakeContext) RecordRecoveryDispatch(ctx context.Context, runID, stepID, leaf, mode, forTaskID string, args map[string]any, result executor.ActionResult) {
	f.recoveries = append(f.recoveries, fakeRecoveryDispatch{runID, stepID, leaf, mode, forTaskID, args, result})
}

func (f *fakeContext) RecordLoopFailure(ctx context.Context, signatureID string, occ ictx.LoopOccurrence) *executor.LoopEpisode {
	f.loopFailures = append(f.loopFailures, signatureID)
	return f.loopEpisode
}

func (f *fakeContext) IsLoopSuppressed(ctx context.Context, signatureID string) bool {
	return f.suppressedIDs[signatureID]
}

func (f *fakeContext) RecordLoopDetected(ctx context.Context, runID string, episode executor.LoopEpisode) {
	f.loopDetected = append(f.loopDetected, episode)
}

func (f *fakeContext) Now() int64 { return f.now }
