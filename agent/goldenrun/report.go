package goldenrun

// SchemaVersion is the fixed schema identity written to every artifact.
const SchemaVersion = "golden_run_report_v1"

// SchemaRevision is bumped whenever the on-disk shape changes in a
// backward-incompatible way.
const SchemaRevision = 1

// Features lists the behavioral feature flags this recorder implements,
// written verbatim into every artifact so readers can detect capability
// without parsing the whole payload.
var Features = []string{
	"original_leaf",
	"blocked_throttle_v1",
	"strict_mapping_v1",
	"execution_decisions_v1",
}

// ExecutionDecision is one entry in execution.decisions.
type ExecutionDecision struct {
	StepID string `json:"step_id,omitempty"`
	Leaf   string `json:"leaf,omitempty"`
	Reason string `json:"reason"`
	TS     int64  `json:"ts"`
}

// DispatchedStep is one entry in execution.dispatched_steps. RecoveryMode
// and RecoveryForTask are set only on recovery-action dispatches (step ids
// prefixed "recovery-").
type DispatchedStep struct {
	StepID          string         `json:"step_id"`
	Leaf            string         `json:"leaf"`
	OriginalLeaf    string         `json:"original_leaf,omitempty"`
	Args            map[string]any `json:"args,omitempty"`
	Result          *StepResult    `json:"result,omitempty"`
	DispatchedAt    int64          `json:"dispatched_at"`
	RecoveryMode    string         `json:"recovery_mode,omitempty"`
	RecoveryForTask string         `json:"recovery_for_task,omitempty"`
}

// ShadowStep is one entry in execution.shadow_steps.
type ShadowStep struct {
	StepID     string `json:"step_id"`
	Leaf       string `json:"leaf"`
	ObservedAt int64  `json:"observed_at"`
}

// StepResult is the outcome recorded for a dispatched step.
type StepResult struct {
	Status string `json:"status"` // ok | error | blocked
	Error  string `json:"error,omitempty"`
}

// Verification is the last recorded verification outcome.
type Verification struct {
	Status string `json:"status"` // verified | failed | skipped
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ExpansionRetry is one entry in expansion_retries (capped at 20).
type ExpansionRetry struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason,omitempty"`
	TS      int64  `json:"ts"`
}

// Execution is the execution section of a Report.
type Execution struct {
	Decisions             []ExecutionDecision `json:"decisions,omitempty"`
	DispatchedSteps       []DispatchedStep    `json:"dispatched_steps,omitempty"`
	ShadowSteps           []ShadowStep        `json:"shadow_steps,omitempty"`
	Verification          *Verification       `json:"verification,omitempty"`
	ExecutorBlockedReason string              `json:"executor_blocked_reason,omitempty"`
	ExecutorBlockedPayload map[string]any     `json:"executor_blocked_payload,omitempty"`
	LoopDetected           []map[string]any   `json:"loop_detected,omitempty"`
	LoopBreakerEvaluatedAt int64              `json:"loop_breaker_evaluated_at,omitempty"`
	ReflexProof           map[string]any      `json:"reflex_proof,omitempty"`
}

// ExecutorRuntime is runtime.executor in a Report.
type ExecutorRuntime struct {
	Enabled            bool   `json:"enabled"`
	Mode               string `json:"mode"`
	LoopStarted        bool   `json:"loop_started"`
	IntervalRegistered bool   `json:"interval_registered"`
	LastTickAt         int64  `json:"last_tick_at,omitempty"`
	TickCount          int64  `json:"tick_count,omitempty"`
}

// Runtime is the runtime section of a Report.
type Runtime struct {
	Executor      *ExecutorRuntime `json:"executor,omitempty"`
	BridgeEnabled bool             `json:"bridge_enabled,omitempty"`
	Certifiable   bool             `json:"certifiable"`
}

// Report is the full golden-run artifact shape.
type Report struct {
	SchemaVersion  string   `json:"schema_version"`
	SchemaRevision int      `json:"schema_revision"`
	Features       []string `json:"features"`
	RunID          string   `json:"run_id"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`

	ServerBanner   string         `json:"server_banner,omitempty"`
	PlanningBanner string         `json:"planning_banner,omitempty"`
	ConfigDigest   string         `json:"config_digest,omitempty"`

	Runtime *Runtime `json:"runtime,omitempty"`

	Injection                map[string]any `json:"injection,omitempty"`
	SterlingExpandRequested  map[string]any `json:"sterling_expand_requested,omitempty"`
	SterlingExpandResult     map[string]any `json:"sterling_expand_result,omitempty"`

	IdleEpisode map[string]any `json:"idle_episode,omitempty"`
	Task        map[string]any `json:"task,omitempty"`
	Expansion   map[string]any `json:"expansion,omitempty"`

	ExpansionRetries []ExpansionRetry `json:"expansion_retries,omitempty"`

	Execution Execution `json:"execution"`

	TaskID string `json:"task_id,omitempty"`
}

// DecisionsCap bounds execution.decisions.
const DecisionsCap = 200

// ExpansionRetriesCap bounds expansion_retries.
const ExpansionRetriesCap = 20

// LoopStarted recomputes runtime.executor.loop_started from evidence: true
// iff at least one shadow or dispatched step has been recorded, regardless
// of what was previously written.
func (r *Report) LoopStarted() bool {
	return len(r.Execution.ShadowSteps)+len(r.Execution.DispatchedSteps) > 0
}

// Certifiable recomputes certifiability from the runtime's bridge flag
//: an artifact produced with the bridge enabled
// can never claim certifiability.
func (r *Report) Certifiable() bool {
	if r.Runtime == nil {
		return true
	}
	return !r.Runtime.BridgeEnabled
}

// Normalize recomputes the derived fields before the report is exposed to
// a reader (GetReport/GetReportFromDisk): loop_started and certifiable are
// always recomputed from evidence, never trusted from the stored bytes.
func (r *Report) Normalize() *Report {
	if r.Runtime == nil {
		r.Runtime = &Runtime{}
	}
	if r.Runtime.Executor == nil {
		r.Runtime.Executor = &ExecutorRuntime{}
	}
	r.Runtime.Executor.LoopStarted = r.LoopStarted()
	r.Runtime.Certifiable = r.Certifiable()
	return r
}
