package loopbreaker_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/darianrosebrook/sterling-executor/agent/loopbreaker"
)

func newRedisStoreTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisStore_LoopDetectionAcrossTasks(t *testing.T) {
	client := newRedisStoreTestClient(t)
	store := loopbreaker.NewRedisStore(client, "test:loopbreaker:", loopbreaker.WithRedisMode(loopbreaker.ModeActive))
	ctx := context.Background()

	ep, err := store.RecordFailure(ctx, "sig-1", loopbreaker.Occurrence{TaskID: "t1", RunID: "r1"})
	require.NoError(t, err)
	require.Nil(t, ep)

	ep, err = store.RecordFailure(ctx, "sig-1", loopbreaker.Occurrence{TaskID: "t2", RunID: "r2"})
	require.NoError(t, err)
	require.Nil(t, ep)

	ep, err = store.RecordFailure(ctx, "sig-1", loopbreaker.Occurrence{TaskID: "t3", RunID: "r3"})
	require.NoError(t, err)
	require.NotNil(t, ep)
	require.Equal(t, 3, ep.Occurrences)
	require.ElementsMatch(t, []string{"t1", "t2", "t3"}, ep.ContributingTaskIDs)

	suppressed, err := store.IsSuppressed(ctx, "sig-1")
	require.NoError(t, err)
	require.True(t, suppressed)
}

func TestRedisStore_DedupesSameTaskWithinWindow(t *testing.T) {
	client := newRedisStoreTestClient(t)
	store := loopbreaker.NewRedisStore(client, "test:loopbreaker:")
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "sig-2", loopbreaker.Occurrence{TaskID: "t1", RunID: "r1"})
	require.NoError(t, err)
	ep, err := store.RecordFailure(ctx, "sig-2", loopbreaker.Occurrence{TaskID: "t1", RunID: "r1-again"})
	require.NoError(t, err)
	require.Nil(t, ep, "duplicate task id within window must not re-record")
}

func TestRedisStore_ShadowModeNeverSuppresses(t *testing.T) {
	client := newRedisStoreTestClient(t)
	store := loopbreaker.NewRedisStore(client, "test:loopbreaker:", loopbreaker.WithRedisThreshold(1))
	ctx := context.Background()

	_, err := store.RecordFailure(ctx, "sig-3", loopbreaker.Occurrence{TaskID: "t1", RunID: "r1"})
	require.NoError(t, err)

	suppressed, err := store.IsSuppressed(ctx, "sig-3")
	require.NoError(t, err)
	require.False(t, suppressed, "shadow mode never suppresses")
}
