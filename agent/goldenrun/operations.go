package goldenrun

import "context"

// RecordInjection records the injection section verbatim.
func (r *Recorder) RecordInjection(ctx context.Context, runID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Injection = payload
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	r.evictStale()
}

// RecordRuntime records the runtime section. LoopStarted and Certifiable
// are recomputed from evidence on every read, never trusted from the write
func (r *Recorder) RecordRuntime(ctx context.Context, runID string, rt Runtime) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rt
	s.report.Runtime = &cp
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	r.evictStale()
}

// RecordTask records the task section and indexes taskId -> runId.
func (r *Recorder) RecordTask(ctx context.Context, runID, taskID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	s.report.Task = payload
	s.report.TaskID = taskID
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	s.mu.Unlock()
	r.indexTask(taskID, runID)
	r.evictStale()
}

// RecordIdleEpisode records the idle_episode section.
func (r *Recorder) RecordIdleEpisode(ctx context.Context, runID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.IdleEpisode = payload
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordExpansion records the expansion section.
func (r *Recorder) RecordExpansion(ctx context.Context, runID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Expansion = payload
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	r.evictStale()
}

// RecordServerBanner records the server banner string.
func (r *Recorder) RecordServerBanner(ctx context.Context, runID, banner string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.ServerBanner = banner
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordPlanningBanner records the planning banner, config digest, and
// whether the bridge is enabled.
func (r *Recorder) RecordPlanningBanner(ctx context.Context, runID, banner, configDigest string, bridgeEnabled bool) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.PlanningBanner = banner
	s.report.ConfigDigest = configDigest
	if s.report.Runtime == nil {
		s.report.Runtime = &Runtime{}
	}
	s.report.Runtime.BridgeEnabled = bridgeEnabled
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordSterlingExpandRequested records the attempt checkpoint paired with
// RecordSterlingExpandResult.
func (r *Recorder) RecordSterlingExpandRequested(ctx context.Context, runID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.SterlingExpandRequested = payload
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordSterlingExpandResult records the result checkpoint paired with
// RecordSterlingExpandRequested.
func (r *Recorder) RecordSterlingExpandResult(ctx context.Context, runID string, payload map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.SterlingExpandResult = payload
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordExpansionRetry appends to expansion_retries, bounded at
// ExpansionRetriesCap entries.
func (r *Recorder) RecordExpansionRetry(ctx context.Context, runID string, entry ExpansionRetry) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.ExpansionRetries = append(s.report.ExpansionRetries, entry)
	if n := len(s.report.ExpansionRetries); n > ExpansionRetriesCap {
		s.report.ExpansionRetries = s.report.ExpansionRetries[n-ExpansionRetriesCap:]
	}
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordDispatch appends to dispatched_steps and a paired "dispatch"
// decision, clearing any prior executor_blocked_* fields.
func (r *Recorder) RecordDispatch(ctx context.Context, runID string, step DispatchedStep) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Execution.DispatchedSteps = append(s.report.Execution.DispatchedSteps, step)
	s.report.Execution.ExecutorBlockedReason = ""
	s.report.Execution.ExecutorBlockedPayload = nil
	d := ExecutionDecision{StepID: step.StepID, Leaf: step.Leaf, Reason: "dispatch", TS: r.clock().UnixMilli()}
	appendDecision(s.report, d)
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	if r.stream != nil {
		r.stream.PublishDecision(ctx, runID, d)
	}
}

// RecordShadowDispatch appends to shadow_steps and a paired "shadow"
// decision. Idempotent per step id within the run.
func (r *Recorder) RecordShadowDispatch(ctx context.Context, runID string, step ShadowStep) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.shadowSeen[step.StepID]; already {
		return
	}
	s.shadowSeen[step.StepID] = struct{}{}
	s.report.Execution.ShadowSteps = append(s.report.Execution.ShadowSteps, step)
	d := ExecutionDecision{StepID: step.StepID, Leaf: step.Leaf, Reason: "shadow", TS: r.clock().UnixMilli()}
	appendDecision(s.report, d)
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	if r.stream != nil {
		r.stream.PublishDecision(ctx, runID, d)
	}
}

// RecordVerification records the latest verification outcome.
func (r *Recorder) RecordVerification(ctx context.Context, runID string, v Verification) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.report.Execution.Verification = &cp
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordExecutorBlocked records a blocked decision and sets
// executor_blocked_reason/payload. Throttled: repeat calls for the same
// (runId, reason, leaf) key with a payload whose fingerprint is unchanged
// within 5 s are no-ops.
func (r *Recorder) RecordExecutorBlocked(ctx context.Context, runID, reason, leaf string, payload map[string]any, taskID string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := throttleKey{reason: reason, leaf: leaf}
	fp := Fingerprint(payload)
	now := r.clock()
	if prev, ok := s.throttle[key]; ok && prev.fingerprint == fp && now.Sub(prev.at) < throttleWindow {
		return
	}
	s.throttle[key] = throttleEntry{fingerprint: fp, at: now}

	s.report.Execution.ExecutorBlockedReason = reason
	s.report.Execution.ExecutorBlockedPayload = payload
	d := ExecutionDecision{Leaf: leaf, Reason: reason, TS: now.UnixMilli()}
	appendDecision(s.report, d)
	s.lastWrite = now
	r.persist(ctx, s)
	if taskID != "" {
		r.indexTask(taskID, runID)
	}
}

// RecordRegenerationAttempt records a "regen_success" decision on success
// or the failure reason otherwise.
func (r *Recorder) RecordRegenerationAttempt(ctx context.Context, runID string, success bool, reason string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	label := reason
	if success {
		label = "regen_success"
	}
	appendDecision(s.report, ExecutionDecision{Reason: label, TS: r.clock().UnixMilli()})
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordLeafRewriteUsed records a "rewrite_used" decision.
func (r *Recorder) RecordLeafRewriteUsed(ctx context.Context, runID, leaf, originalLeaf string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	appendDecision(s.report, ExecutionDecision{Leaf: leaf, Reason: "rewrite_used", TS: r.clock().UnixMilli()})
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordLoopDetected records a loop_detected_episode_v1 payload and
// publishes it to the optional stream.
func (r *Recorder) RecordLoopDetected(ctx context.Context, runID string, episode map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	s.report.Execution.LoopDetected = append(s.report.Execution.LoopDetected, episode)
	sigID, _ := episode["signature_id"].(string)
	appendDecision(s.report, ExecutionDecision{Reason: "loop_detected", Leaf: sigID, TS: r.clock().UnixMilli()})
	s.lastWrite = r.clock()
	r.persist(ctx, s)
	s.mu.Unlock()
	if r.stream != nil {
		r.stream.PublishLoopDetected(ctx, runID, episode)
	}
}

// MarkLoopBreakerEvaluated stamps the run with the time the loop breaker
// was last consulted, so an artifact shows the breaker ran even when no
// episode fired.
func (r *Recorder) MarkLoopBreakerEvaluated(ctx context.Context, runID string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Execution.LoopBreakerEvaluatedAt = r.clock().UnixMilli()
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// RecordReflexProof records the reflex proof bundle.
func (r *Recorder) RecordReflexProof(ctx context.Context, runID string, bundle map[string]any) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Execution.ReflexProof = bundle
	s.lastWrite = r.clock()
	r.persist(ctx, s)
}

// FlushRun waits for any pending write on runID then writes the current
// state. The per-run mutex already serializes writers FIFO, so acquiring
// and releasing it is sufficient to guarantee this call observes (and
// persists) every update issued before it returned.
func (r *Recorder) FlushRun(ctx context.Context, runID string) {
	s := r.state(runID)
	s.mu.Lock()
	defer s.mu.Unlock()
	r.persist(ctx, s)
}

// GetReport returns the in-memory report for runID with derived fields
// recomputed, or nil if the run has no in-memory state.
func (r *Recorder) GetReport(runID string) *Report {
	runID = SanitizeRunID(runID)
	r.mu.Lock()
	s, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.report
	return cp.Normalize()
}

// GetLatestReportByTaskID resolves taskID through the LRU index and
// returns that run's report.
func (r *Recorder) GetLatestReportByTaskID(taskID string) *Report {
	r.mu.Lock()
	runID, ok := r.index.get(taskID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.GetReport(runID)
}

// GetReportFromDisk reads and parses the on-disk artifact for runID,
// recomputing derived fields. Returns nil, err if the file cannot be read
// or parsed.
func (r *Recorder) GetReportFromDisk(runID string) (*Report, error) {
	return readReportFromDisk(r.pathFor(SanitizeRunID(runID)))
}
