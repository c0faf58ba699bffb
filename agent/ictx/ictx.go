// Package ictx defines the dependency-injection contract the Step Executor
// and Recovery Injector both dispatch through. It exists as its own
// package, separate from executor and recovery, so neither component needs
// to import the other to share the contract.
package ictx

import (
	"context"

	"github.com/darianrosebrook/sterling-executor/agent/task"
	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

// Mode selects whether the executor actually calls tools (live) or only
// records intent (shadow).
type Mode string

const (
	ModeLive   Mode = "live"
	ModeShadow Mode = "shadow"
)

// ToolDiagnostics carries the _diag_version==1 structured diagnostics a
// tool result may attach.
type ToolDiagnostics struct {
	DiagVersion int
	RetryHint   string
	ReasonCode  string
}

// ActionResult is the result of a ctx.executeTool call.
type ActionResult struct {
	OK              bool
	Error           string
	Data            map[string]any
	FailureCode     string
	ToolDiagnostics *ToolDiagnostics
	Metadata        map[string]any
}

// RecipeInfo describes a craft_recipe's required inputs.
type RecipeInfo struct {
	Inputs []RecipeInput
}

// RecipeInput is one required input of a recipe.
type RecipeInput struct {
	Item  string
	Count int
}

// Inventory is an opaque snapshot handle passed back to ctx.GetCount.
type Inventory any

// ThreatLevel classifies the environment's current danger level.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// ThreatSnapshot is the environment's threat assessment at dispatch time.
type ThreatSnapshot struct {
	OverallThreatLevel ThreatLevel
}

// RegenerateParams configures a ctx.RegenerateSteps call.
type RegenerateParams struct {
	FailedLeaf   string
	ReasonClass  string
	AttemptCount int
}

// RegenerateResult is the outcome of a ctx.RegenerateSteps call.
type RegenerateResult struct {
	Success     bool
	StepsDigest string
}

// StartStepOpts configures ctx.StartTaskStep.
type StartStepOpts struct {
	DryRun bool
}

// CompleteStepOpts configures ctx.CompleteTaskStep. SkipVerification forces
// completion without the usual verification pass (the verify-fail escape
// hatch and the smoke policy both use it).
type CompleteStepOpts struct {
	SkipVerification bool
}

// LoopOccurrence identifies one contributing failure event fed to the Loop
// Breaker.
type LoopOccurrence struct {
	TaskID string
	RunID  string
}

// LoopEpisode is the loop_detected_episode_v1 record produced when a
// signature's sliding window reaches the occurrence threshold.
type LoopEpisode struct {
	SignatureID         string
	Occurrences         int
	WindowMs            int64
	SuppressedUntilMs   int64
	ContributingTaskIDs []string
	ContributingRunIDs  []string
}

// Config carries the subset of executor configuration the recovery
// injector and executor both need to read.
type Config struct {
	BuildExecBudgetDisabled bool
	BuildExecMaxAttempts    int
	BuildExecMinIntervalMs  int64
	BuildExecMaxElapsedMs   int64

	BuildingLeaves          map[string]bool
	TaskTypeBridgeLeaves    map[string]bool
	EnableTaskTypeBridge    bool
	LegacyLeafRewriteEnabled bool
	LoopBreakerEnabled      bool

	// LeafAllowlist, when non-empty, is the configured set of dispatchable
	// leaf names. Empty means every known leaf is allowed.
	LeafAllowlist map[string]bool

	MaxRetries int64

	// Logger receives structured diagnostics for blocked/terminal/recovery
	// transitions. Nil is valid; callers must check before use.
	Logger telemetry.Logger
}

// Context injects every dependency the Step Executor and Recovery Injector
// need so both remain pure-dispatch with side effects confined to ctx.
type Context interface {
	Config() Config
	Mode() Mode

	ExecuteTool(ctx context.Context, toolName string, args map[string]any, abort <-chan struct{}) ActionResult
	CanExecuteStep() bool
	StartTaskStep(ctx context.Context, taskID, stepID string, opts StartStepOpts) bool
	CompleteTaskStep(ctx context.Context, taskID, stepID string, opts CompleteStepOpts) bool
	GetAbortSignal() <-chan struct{}

	IntrospectRecipe(ctx context.Context, recipe string) (RecipeInfo, error)
	GetCount(inv Inventory, item string) int
	FetchInventorySnapshot(ctx context.Context, taskID string) (Inventory, error)
	InjectDynamicPrereqForCraft(ctx context.Context, t *task.Task) bool

	GetThreatSnapshot(ctx context.Context) ThreatSnapshot

	RegenerateSteps(ctx context.Context, taskID string, params RegenerateParams) RegenerateResult

	RecomputeProgressAndMaybeComplete(ctx context.Context, t *task.Task)
	TaskLifecycleEvent(ctx context.Context, name string, payload map[string]any)

	RecordDispatchedStep(ctx context.Context, runID string, stepID, leaf, originalLeaf string, args map[string]any, result ActionResult)
	// RecordRecoveryDispatch records a recovery-action dispatch: a
	// dispatched-step entry whose step id is prefixed "recovery-", tagged
	// with the recovery mode and the task it recovers for.
	RecordRecoveryDispatch(ctx context.Context, runID, stepID, leaf, mode, forTaskID string, args map[string]any, result ActionResult)
	RecordShadowStep(ctx context.Context, runID, stepID, leaf string)
	RecordBlocked(ctx context.Context, runID, reason, leaf string, payload map[string]any, taskID string)
	RecordVerification(ctx context.Context, runID, status, kind, detail string)
	RecordRegeneration(ctx context.Context, runID string, success bool, reason string)
	RecordRewriteUsed(ctx context.Context, runID, leaf, originalLeaf string)

	// RecordLoopFailure records one occurrence of signatureID in the Loop
	// Breaker's sliding window, returning a non-nil *LoopEpisode exactly
	// when the occurrence threshold is reached on this call. The executor
	// calls it on every failure-producing path; the breaker's own mode
	// decides whether suppression is enforced.
	RecordLoopFailure(ctx context.Context, signatureID string, occ LoopOccurrence) *LoopEpisode
	// IsLoopSuppressed reports whether signatureID is currently under
	// active Loop Breaker suppression. Always false in shadow mode.
	IsLoopSuppressed(ctx context.Context, signatureID string) bool
	// RecordLoopDetected persists a fired loop-detected episode to the
	// golden-run artifact.
	RecordLoopDetected(ctx context.Context, runID string, episode LoopEpisode)

	Now() int64
}
