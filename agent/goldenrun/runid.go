package goldenrun

import (
	"strings"

	"github.com/google/uuid"
)

const maxRunIDLen = 96

// NewRunID mints a fresh run id for a golden run that the caller doesn't
// already have one for (e.g. a task ingested without an upstream-supplied
// goldenRun.runId). The result is already SanitizeRunID-clean.
func NewRunID() string {
	return "golden-" + uuid.NewString()
}

// SanitizeRunID strips path separators and ".." segments and restricts the
// result to [A-Za-z0-9_-], truncated to 96 characters. An empty or
// all-invalid input falls back to "run".
func SanitizeRunID(runID string) string {
	runID = strings.ReplaceAll(runID, "..", "")
	var b strings.Builder
	for _, r := range runID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxRunIDLen {
			break
		}
	}
	out := b.String()
	if out == "" {
		return "run"
	}
	return out
}
