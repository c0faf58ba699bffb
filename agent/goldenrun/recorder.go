// Package goldenrun implements the append-only, throttled, bounded per-run
// audit ledger (the "golden run" artifact) that the Step Executor writes
// every mutating decision to. Writes are atomic (temp file + rename) and
// serialized per run id so concurrent callers never lose an update.
package goldenrun

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/darianrosebrook/sterling-executor/runtime/agent/telemetry"
)

const (
	taskIndexCap        = 500
	staleAfter          = 15 * time.Minute
	throttleWindow      = 5 * time.Second
)

// Archive is the optional secondary durable store a Recorder flushes
// reports to in addition to the on-disk JSON file (see MongoArchive).
type Archive interface {
	Upsert(ctx context.Context, report *Report) error
}

// Streamer is the optional live fan-out sink a Recorder publishes decisions
// and loop-detected episodes to (see PulseStreamer).
type Streamer interface {
	PublishDecision(ctx context.Context, runID string, d ExecutionDecision)
	PublishLoopDetected(ctx context.Context, runID string, payload map[string]any)
}

type runState struct {
	mu         sync.Mutex
	report     *Report
	lastWrite  time.Time
	throttle   map[throttleKey]throttleEntry
	shadowSeen map[string]struct{}
}

type throttleKey struct {
	reason string
	leaf   string
}

type throttleEntry struct {
	fingerprint string
	at          time.Time
}

// Recorder is the Golden-Run Recorder. Construct with New.
type Recorder struct {
	baseDir string
	clock   func() time.Time
	logger  telemetry.Logger
	archive Archive
	stream  Streamer

	mu    sync.Mutex
	runs  map[string]*runState
	index *taskIndex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source for deterministic tests.
func WithClock(fn func() time.Time) Option { return func(r *Recorder) { r.clock = fn } }

// WithLogger attaches a structured logger for internal (fail-soft) errors.
func WithLogger(l telemetry.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithArchive attaches an optional secondary durable archive.
func WithArchive(a Archive) Option { return func(r *Recorder) { r.archive = a } }

// WithStreamer attaches an optional live decision/episode stream.
func WithStreamer(s Streamer) Option { return func(r *Recorder) { r.stream = s } }

// New constructs a Recorder that writes artifacts under baseDir.
func New(baseDir string, opts ...Option) *Recorder {
	r := &Recorder{
		baseDir: baseDir,
		clock:   time.Now,
		logger:  telemetry.NewNoopLogger(),
		runs:    map[string]*runState{},
		index:   newTaskIndex(taskIndexCap),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// pathFor returns the on-disk path for a sanitized run id.
func (r *Recorder) pathFor(runID string) string {
	return filepath.Join(r.baseDir, fmt.Sprintf("golden-%s.json", runID))
}

// state returns the per-run state, creating the report on first access. The
// returned state's mutex must be held by the caller for the duration of any
// mutation; locking per-run (rather than globally) is what lets multiple
// runs write in parallel while a single run serializes its writers FIFO.
func (r *Recorder) state(runID string) *runState {
	runID = SanitizeRunID(runID)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.runs[runID]
	if ok {
		return s
	}
	now := r.clock().UnixMilli()
	s = &runState{
		report: &Report{
			SchemaVersion:  SchemaVersion,
			SchemaRevision: SchemaRevision,
			Features:       Features,
			RunID:          runID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		lastWrite:  r.clock(),
		throttle:   map[throttleKey]throttleEntry{},
		shadowSeen: map[string]struct{}{},
	}
	r.runs[runID] = s
	return s
}

// evictStale drops in-memory state for runs inactive longer than 15
// minutes. Runs opportunistically on each
// mutation; does not touch the on-disk artifact.
func (r *Recorder) evictStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	for id, s := range r.runs {
		// A run whose lock is held has a writer mid-mutation (possibly the
		// caller itself); it is not stale, skip it.
		if !s.mu.TryLock() {
			continue
		}
		stale := now.Sub(s.lastWrite) > staleAfter
		s.mu.Unlock()
		if stale {
			delete(r.runs, id)
		}
	}
}

// persist atomically flushes s.report to disk and, best-effort, to the
// secondary archive. Internal errors are logged, never returned to the
// executor: every public Record* method is fail-soft by design. It first
// evicts stale run state, so every mutation triggers eviction.
func (r *Recorder) persist(ctx context.Context, s *runState) {
	r.evictStale()
	s.report.UpdatedAt = r.clock().UnixMilli()
	data, err := json.MarshalIndent(s.report, "", "  ")
	if err != nil {
		r.logger.Error(ctx, "goldenrun: marshal failed", "run_id", s.report.RunID, "err", err.Error())
		return
	}
	if err := WriteFileAtomic(r.pathFor(s.report.RunID), data); err != nil {
		r.logger.Error(ctx, "goldenrun: atomic write failed", "run_id", s.report.RunID, "err", err.Error())
		return
	}
	if r.archive != nil {
		if err := r.archive.Upsert(ctx, s.report); err != nil {
			r.logger.Warn(ctx, "goldenrun: archive upsert failed", "run_id", s.report.RunID, "err", err.Error())
		}
	}
}

// appendDecision appends to execution.decisions, capping it at
// DecisionsCap with the most recent entries retained.
func appendDecision(rep *Report, d ExecutionDecision) {
	rep.Execution.Decisions = append(rep.Execution.Decisions, d)
	if n := len(rep.Execution.Decisions); n > DecisionsCap {
		rep.Execution.Decisions = rep.Execution.Decisions[n-DecisionsCap:]
	}
}

// indexTask records the taskId -> latest runId mapping with LRU eviction at
// 500 entries.
func (r *Recorder) indexTask(taskID, runID string) {
	if taskID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index.put(taskID, runID)
}
