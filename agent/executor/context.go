package executor

import "github.com/darianrosebrook/sterling-executor/agent/ictx"

// The executor's injected dependency contract lives in agent/ictx so the
// Recovery Injector can share it without importing this package.
type (
	Mode             = ictx.Mode
	ToolDiagnostics  = ictx.ToolDiagnostics
	ActionResult     = ictx.ActionResult
	RecipeInfo       = ictx.RecipeInfo
	RecipeInput      = ictx.RecipeInput
	Inventory        = ictx.Inventory
	ThreatLevel      = ictx.ThreatLevel
	ThreatSnapshot   = ictx.ThreatSnapshot
	RegenerateParams = ictx.RegenerateParams
	RegenerateResult = ictx.RegenerateResult
	StartStepOpts    = ictx.StartStepOpts
	CompleteStepOpts = ictx.CompleteStepOpts
	LoopOccurrence   = ictx.LoopOccurrence
	LoopEpisode      = ictx.LoopEpisode
	Context          = ictx.Context
)

const (
	ModeLive   = ictx.ModeLive
	ModeShadow = ictx.ModeShadow

	ThreatNone     = ictx.ThreatNone
	ThreatLow      = ictx.ThreatLow
	ThreatMedium   = ictx.ThreatMedium
	ThreatHigh     = ictx.ThreatHigh
	ThreatCritical = ictx.ThreatCritical
)
