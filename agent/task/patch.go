package task

// Patch is a shallow field overlay for Task.Metadata. Every key present in
// a Patch, including one holding the Cleared sentinel, overwrites the prior
// value when merged. The patch functions below exist so a caller can apply
// state transitions atomically without knowing the full metadata key set.
type Patch map[string]any

// clearedSentinel is a unique, unexported type so no caller-supplied value
// can accidentally collide with it.
type clearedSentinel struct{}

// Cleared marks a metadata key as explicitly unset. Merge deletes any key
// whose patch value is Cleared rather than writing the sentinel itself.
var Cleared = clearedSentinel{}

// Merge applies patch onto the task's metadata, field by field. A key whose
// patch value is Cleared is deleted; every other key is overwritten.
func Merge(t *Task, patch Patch) {
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	for k, v := range patch {
		if _, cleared := v.(clearedSentinel); cleared {
			delete(t.Metadata, k)
			continue
		}
		t.Metadata[k] = v
	}
}

// BlockOpts configures BlockTaskPatch.
type BlockOpts struct {
	// ExistingMetadata is the task's metadata prior to the patch, used to
	// decide whether blockedAt should be preserved.
	ExistingMetadata map[string]any
	// Now overrides the clock for deterministic tests; zero means NowMs().
	Now int64
	// NextEligibleAt, when non-zero, is written alongside the block.
	NextEligibleAt int64
}

// BlockTaskPatch returns the patch that blocks a task with reason. blockedAt
// is preserved when the existing metadata already carries the same reason
// (TTL anchor semantics); otherwise it resets to now.
func BlockTaskPatch(reason string, opts BlockOpts) Patch {
	now := opts.Now
	if now == 0 {
		now = NowMs()
	}
	blockedAt := now
	if opts.ExistingMetadata != nil {
		if existingReason, _ := opts.ExistingMetadata[KeyBlockedReason].(string); existingReason == reason {
			if existingAt, ok := opts.ExistingMetadata[KeyBlockedAt]; ok {
				switch n := existingAt.(type) {
				case int64:
					blockedAt = n
				case int:
					blockedAt = int64(n)
				case float64:
					blockedAt = int64(n)
				}
			}
		}
	}
	patch := Patch{
		KeyBlockedReason: reason,
		KeyBlockedAt:     blockedAt,
	}
	if opts.NextEligibleAt != 0 {
		patch[KeyNextEligibleAt] = opts.NextEligibleAt
	}
	return patch
}

// ClearBlockedState returns a patch whose blockedReason, blockedAt, and
// nextEligibleAt keys carry the Cleared sentinel, so merging removes them
// rather than leaving stale values in place.
func ClearBlockedState() Patch {
	return Patch{
		KeyBlockedReason:  Cleared,
		KeyBlockedAt:      Cleared,
		KeyNextEligibleAt: Cleared,
	}
}

// RegenParams configures RegenSuccessPatch.
type RegenParams struct {
	RepairCount   int64
	StepsDigest   string
	Now           int64
}

// RegenSuccessPatch is the union of ClearBlockedState plus the retry/repair
// bookkeeping reset applied when plan regeneration produces a new, distinct
// step digest.
func RegenSuccessPatch(p RegenParams) Patch {
	now := p.Now
	if now == 0 {
		now = NowMs()
	}
	patch := ClearBlockedState()
	patch[KeyRetryCount] = int64(0)
	patch[KeyRepairCount] = p.RepairCount
	patch[KeyLastRepairAt] = now
	patch[KeyLastStepsDigest] = p.StepsDigest
	patch[KeyFailureCode] = Cleared
	patch[KeyFailureError] = Cleared
	patch[KeyRegenLastAttemptAt] = Cleared
	patch[KeyRegenDisabledUntil] = Cleared
	patch[KeyRegenAttempts] = int64(0)
	return patch
}
