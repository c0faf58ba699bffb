// Package leaf resolves a Step into a LeafExecution and validates its
// arguments against per-leaf contracts.
package leaf

import (
	"github.com/darianrosebrook/sterling-executor/agent/task"
)

// ArgsSource records how a LeafExecution's arguments were produced.
type ArgsSource string

const (
	ArgsExplicit ArgsSource = "explicit"
	ArgsDerived  ArgsSource = "derived"
	ArgsDefault  ArgsSource = "default"
)

// Sentinel values used when no concrete argument is known yet.
const (
	SentinelRecipe = "unknown"
	SentinelInput  = "unknown"
)

// IntentLeaves is the closed set of planner-level pseudo-leaves that are
// never executable and must be re-planned.
var IntentLeaves = map[string]struct{}{
	"task_type_craft":  {},
	"task_type_gather": {},
	"task_type_build":  {},
	"task_type_combat": {},
}

// LegacyAliases maps deprecated leaf names to their current equivalent.
var LegacyAliases = map[string]string{
	"dig_block": "acquire_material",
}

// LeafExecution is the normalized, dispatch-ready form of a Step.
type LeafExecution struct {
	LeafName     string
	Args         map[string]any
	ArgsSource   ArgsSource
	OriginalLeaf string // set when the leaf was rewritten via LegacyAliases
}

func isIntentLeaf(name string) bool {
	_, ok := IntentLeaves[name]
	return ok
}

// StepToLeafExecution normalizes step into a LeafExecution, or returns
// ok=false when the step is not executable (missing leaf, or an intent
// leaf that must be re-planned instead of dispatched).
func StepToLeafExecution(step task.Step) (LeafExecution, bool) {
	leafName, _ := step.Meta["leaf"].(string)
	if leafName == "" || isIntentLeaf(leafName) {
		return LeafExecution{}, false
	}

	exec := LeafExecution{LeafName: leafName}
	if rewritten, ok := LegacyAliases[leafName]; ok {
		exec.OriginalLeaf = leafName
		exec.LeafName = rewritten
		leafName = rewritten
	}

	if rawArgs, ok := step.Meta["args"].(map[string]any); ok {
		exec.ArgsSource = ArgsExplicit
		exec.Args = rawArgs
		return exec, true
	}

	if produces, ok := step.Meta["produces"]; ok {
		exec.ArgsSource = ArgsDerived
		exec.Args = deriveArgsFromProduces(leafName, produces)
		return exec, true
	}

	exec.ArgsSource = ArgsDefault
	exec.Args = defaultArgs(leafName)
	return exec, true
}

// deriveArgsFromProduces synthesizes args from a step's produces list.
func deriveArgsFromProduces(leafName string, produces any) map[string]any {
	var items []map[string]any
	switch list := produces.(type) {
	case []map[string]any:
		items = list
	case []any:
		// JSON-decoded step meta arrives as []any.
		for _, raw := range list {
			if m, ok := raw.(map[string]any); ok {
				items = append(items, m)
			}
		}
	}
	if len(items) == 0 {
		return map[string]any{}
	}
	first := items[0]
	switch leafName {
	case "craft_recipe":
		return map[string]any{"recipe": first["name"], "qty": first["count"]}
	case "smelt":
		return map[string]any{"input": first["name"], "qty": first["count"]}
	default:
		return map[string]any{"item": first["name"], "qty": first["count"]}
	}
}

// defaultArgs returns leaf-specific sentinel defaults when a step carries
// neither explicit args nor a produces list.
func defaultArgs(leafName string) map[string]any {
	switch leafName {
	case "craft_recipe":
		return map[string]any{"recipe": SentinelRecipe, "qty": 1}
	case "smelt":
		return map[string]any{"input": SentinelInput, "qty": 1}
	default:
		return map[string]any{}
	}
}

// NormalizeTaskStepsToOptionA walks every step and marks the task's
// metadata planningIncomplete when any step carries an unknown or intent
// leaf, appending a reason for each offending step.
func NormalizeTaskStepsToOptionA(t *task.Task) {
	var reasons []map[string]any
	for _, step := range t.Steps {
		leafName, _ := step.Meta["leaf"].(string)
		switch {
		case leafName == "":
			reasons = append(reasons, map[string]any{"leaf": leafName, "reason": "unknown_leaf"})
		case isIntentLeaf(leafName):
			reasons = append(reasons, map[string]any{"leaf": leafName, "reason": "intent_leaf_not_executable"})
		case !KnownLeaves[resolvedName(leafName)]:
			reasons = append(reasons, map[string]any{"leaf": leafName, "reason": "unknown_leaf"})
		}
	}
	if len(reasons) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.Metadata[task.KeyPlanningIncomplete] = true
	t.Metadata[task.KeyPlanningIncompleteRsns] = reasons
}

func resolvedName(leafName string) string {
	if rewritten, ok := LegacyAliases[leafName]; ok {
		return rewritten
	}
	return leafName
}

// KnownLeaves is the closed set of dispatchable leaf kinds.
var KnownLeaves = map[string]bool{
	"craft_recipe":         true,
	"acquire_material":     true,
	"smelt":                true,
	"place_block":          true,
	"place_workstation":    true,
	"explore_for_resources": true,
	"step_forward_safely":  true,
	"retreat_from_threat":  true,
}
