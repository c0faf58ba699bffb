package loopbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a cross-process-visible sliding-window store for Loop
// Breaker occurrences, for deployments running more than one executor
// process. The in-memory Breaker is sufficient for a single process;
// RedisStore is the variant for deployments that need occurrence counts
// shared across processes.
//
// Unlike Breaker, RedisStore holds no in-process window state: every
// RecordFailure call round-trips to Redis, so occurrence counts and
// suppression are visible to every process sharing the same Redis
// deployment.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string

	mode           Mode
	window         time.Duration
	threshold      int
	suppressionTTL time.Duration
	now            func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisMode overrides the default shadow mode.
func WithRedisMode(m Mode) RedisStoreOption { return func(s *RedisStore) { s.mode = m } }

// WithRedisWindow overrides the default 5-minute sliding window.
func WithRedisWindow(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.window = d }
}

// WithRedisThreshold overrides the default threshold of 3 unique tasks.
func WithRedisThreshold(n int) RedisStoreOption {
	return func(s *RedisStore) { s.threshold = n }
}

// WithRedisSuppressionTTL overrides the default 10-minute suppression TTL.
func WithRedisSuppressionTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.suppressionTTL = d }
}

// withRedisClock overrides the time source for deterministic tests.
func withRedisClock(fn func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = fn }
}

// NewRedisStore constructs a RedisStore backed by client. keyPrefix
// namespaces the keys this store writes (e.g. "sterling:loopbreaker:") so
// multiple logical deployments can share one Redis instance.
func NewRedisStore(client *redis.Client, keyPrefix string, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:         client,
		keyPrefix:      keyPrefix,
		mode:           ModeShadow,
		window:         defaultWindow,
		threshold:      defaultThreshold,
		suppressionTTL: defaultSuppressionTTL,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) windowKey(signatureID string) string {
	return fmt.Sprintf("%swindow:%s", s.keyPrefix, signatureID)
}

func (s *RedisStore) seenKey(signatureID string) string {
	return fmt.Sprintf("%sseen:%s", s.keyPrefix, signatureID)
}

func (s *RedisStore) suppressKey(signatureID string) string {
	return fmt.Sprintf("%ssuppress:%s", s.keyPrefix, signatureID)
}

// RecordFailure mirrors Breaker.RecordFailure, persisting the sliding
// window in a Redis sorted set (score = unix-nano timestamp, member =
// "taskID|runID") and task dedupe in a companion set, both pipelined with the
// window's TTL so stale signatures self-expire instead of requiring an LRU
// sweep.
func (s *RedisStore) RecordFailure(ctx context.Context, signatureID string, occ Occurrence) (*Episode, error) {
	now := s.now()
	seenKey := s.seenKey(signatureID)

	isNew, err := s.client.SIsMember(ctx, seenKey, occ.TaskID).Result()
	if err != nil {
		return nil, fmt.Errorf("loopbreaker: check seen set: %w", err)
	}
	if isNew {
		return nil, nil
	}

	winKey := s.windowKey(signatureID)
	cutoff := now.Add(-s.window)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, winKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, winKey, redis.Z{Score: float64(now.UnixNano()), Member: occ.TaskID + "|" + occ.RunID})
	pipe.SAdd(ctx, seenKey, occ.TaskID)
	pipe.Expire(ctx, winKey, s.window)
	pipe.Expire(ctx, seenKey, s.window)
	members := pipe.ZRange(ctx, winKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loopbreaker: record failure pipeline: %w", err)
	}

	taskIDs, runIDs := splitMembers(members.Val())
	if len(taskIDs) < s.threshold {
		return nil, nil
	}

	suppressedUntil := now.Add(s.suppressionTTL)
	if err := s.client.Set(ctx, s.suppressKey(signatureID), "1", s.suppressionTTL).Err(); err != nil {
		return nil, fmt.Errorf("loopbreaker: set suppression: %w", err)
	}

	// Window resets after firing, same as the in-memory Breaker.
	pipe = s.client.TxPipeline()
	pipe.Del(ctx, winKey, seenKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("loopbreaker: reset window after episode: %w", err)
	}

	return &Episode{
		SignatureID:         signatureID,
		Occurrences:         len(taskIDs),
		WindowMs:            s.window.Milliseconds(),
		SuppressedUntil:     suppressedUntil,
		ContributingTaskIDs: taskIDs,
		ContributingRunIDs:  runIDs,
		Mode:                s.mode,
	}, nil
}

// IsSuppressed reports whether signatureID is currently under active
// suppression. Always false in shadow mode, matching Breaker.
func (s *RedisStore) IsSuppressed(ctx context.Context, signatureID string) (bool, error) {
	if s.mode == ModeShadow {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.suppressKey(signatureID)).Result()
	if err != nil {
		return false, fmt.Errorf("loopbreaker: check suppression: %w", err)
	}
	return n > 0, nil
}

func splitMembers(members []string) (taskIDs, runIDs []string) {
	seenTask := map[string]struct{}{}
	for _, m := range members {
		taskID, runID := splitOnce(m)
		if _, ok := seenTask[taskID]; ok {
			continue
		}
		seenTask[taskID] = struct{}{}
		taskIDs = append(taskIDs, taskID)
		runIDs = append(runIDs, runID)
	}
	return taskIDs, runIDs
}

func splitOnce(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
