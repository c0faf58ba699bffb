package executor

// deterministicFailureCodes is the closed set of tool failure codes that
// can never clear on retry. Adding a code here is a deliberate act; any code not
// listed is treated as non-deterministic.
var deterministicFailureCodes = map[string]bool{
	"UNKNOWN_RECIPE":        true,
	"INVALID_TARGET_BLOCK":  true,
	"UNSUPPORTED_ITEM":      true,
	"PERMISSION_DENIED":     true,
	"WORLD_READ_ONLY":       true,
}

// isDeterministicFailure reports whether code names a condition that will
// not clear without an upstream change (planner, config, allowlist).
func isDeterministicFailure(code string) bool {
	if code == "" {
		return false
	}
	return deterministicFailureCodes[code]
}
