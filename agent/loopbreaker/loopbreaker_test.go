package loopbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordFailureDedupesSameTask(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(withClock(func() time.Time { return clock }))

	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r1"}))
	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r2"}), "same task id must not re-count")
}

func TestRecordFailureFiresOnThirdUniqueTask(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(withClock(func() time.Time { return clock }))

	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r1"}))
	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t2", RunID: "r2"}))
	episode := b.RecordFailure("sig", Occurrence{TaskID: "t3", RunID: "r3"})
	require.NotNil(t, episode)
	require.Equal(t, 3, episode.Occurrences)
	require.Equal(t, []string{"t1", "t2", "t3"}, episode.ContributingTaskIDs)
	require.Equal(t, clock.Add(10*time.Minute), episode.SuppressedUntil)

	// Window reset: t1 repeating does not immediately re-fire (S7).
	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r4"}))
}

func TestRecordFailurePrunesOldEvents(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(withClock(func() time.Time { return clock }))

	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r1"}))
	clock = clock.Add(6 * time.Minute)
	require.Nil(t, b.RecordFailure("sig", Occurrence{TaskID: "t2", RunID: "r2"}))
	episode := b.RecordFailure("sig", Occurrence{TaskID: "t3", RunID: "r3"})
	require.Nil(t, episode, "t1's event should have fallen outside the window")
}

func TestIsSuppressedShadowModeAlwaysFalse(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(WithMode(ModeShadow), withClock(func() time.Time { return clock }))
	b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r1"})
	b.RecordFailure("sig", Occurrence{TaskID: "t2", RunID: "r2"})
	b.RecordFailure("sig", Occurrence{TaskID: "t3", RunID: "r3"})
	require.False(t, b.IsSuppressed("sig"))
}

func TestIsSuppressedActiveModeRespectsTTL(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(WithMode(ModeActive), withClock(func() time.Time { return clock }))
	b.RecordFailure("sig", Occurrence{TaskID: "t1", RunID: "r1"})
	b.RecordFailure("sig", Occurrence{TaskID: "t2", RunID: "r2"})
	b.RecordFailure("sig", Occurrence{TaskID: "t3", RunID: "r3"})
	require.True(t, b.IsSuppressed("sig"))

	clock = clock.Add(11 * time.Minute)
	require.False(t, b.IsSuppressed("sig"), "suppression must expire after its TTL")
}

func TestLRUEvictsLeastRecentlyTouchedSignature(t *testing.T) {
	clock := time.Unix(0, 0)
	b := New(WithMaxSignatures(1), withClock(func() time.Time { return clock }))
	b.RecordFailure("sig-a", Occurrence{TaskID: "t1"})
	b.RecordFailure("sig-b", Occurrence{TaskID: "t1"})
	require.Len(t, b.windows, 1)
	_, ok := b.windows["sig-a"]
	require.False(t, ok, "sig-a should have been evicted to make room for sig-b")
}
