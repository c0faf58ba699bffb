package failuresig

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	tuple := Tuple{Category: CategoryToolFailure, Leaf: "craft_recipe", FailureCode: "ERR"}
	require.Equal(t, Compute(tuple), Compute(tuple))
	require.Len(t, Compute(tuple), 16)
}

func TestComputeChangesWithEachField(t *testing.T) {
	base := Tuple{Category: CategoryToolFailure, Leaf: "craft_recipe", TargetParam: "p", FailureCode: "c", BlockedReason: "b", DiagReasonCode: "d"}
	baseID := Compute(base)

	variants := []Tuple{
		{Category: CategoryExecutorError, Leaf: base.Leaf, TargetParam: base.TargetParam, FailureCode: base.FailureCode, BlockedReason: base.BlockedReason, DiagReasonCode: base.DiagReasonCode},
		{Category: base.Category, Leaf: "smelt", TargetParam: base.TargetParam, FailureCode: base.FailureCode, BlockedReason: base.BlockedReason, DiagReasonCode: base.DiagReasonCode},
		{Category: base.Category, Leaf: base.Leaf, TargetParam: "q", FailureCode: base.FailureCode, BlockedReason: base.BlockedReason, DiagReasonCode: base.DiagReasonCode},
		{Category: base.Category, Leaf: base.Leaf, TargetParam: base.TargetParam, FailureCode: "x", BlockedReason: base.BlockedReason, DiagReasonCode: base.DiagReasonCode},
		{Category: base.Category, Leaf: base.Leaf, TargetParam: base.TargetParam, FailureCode: base.FailureCode, BlockedReason: "y", DiagReasonCode: base.DiagReasonCode},
		{Category: base.Category, Leaf: base.Leaf, TargetParam: base.TargetParam, FailureCode: base.FailureCode, BlockedReason: base.BlockedReason, DiagReasonCode: "z"},
	}
	for _, v := range variants {
		require.NotEqual(t, baseID, Compute(v))
	}
}

func TestComputeExcludesTimestampAndTaskID(t *testing.T) {
	// Tuple carries no timestamp/task fields at all; this test documents the
	// invariant that callers must not smuggle them into any of the six
	// fields (e.g. encoding a task id into TargetParam would break dedup).
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("same tuple always yields the same id", prop.ForAll(
		func(leaf, code string) bool {
			a := Tuple{Category: CategoryToolFailure, Leaf: leaf, FailureCode: code}
			b := Tuple{Category: CategoryToolFailure, Leaf: leaf, FailureCode: code}
			return Compute(a) == Compute(b)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
