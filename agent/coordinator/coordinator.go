// Package coordinator implements the Integrated Coordinator: the
// bookkeeping pipeline from candidate goals through routing, plan
// selection, and execution handoff. It does not itself
// decide goals or plan steps; it ranks, dispatches to the Hybrid Planner
// Router, and keeps a per-approach success rate from reported execution
// outcomes. planner.Route does not read that rate, and reported latency is
// not recorded.
package coordinator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/darianrosebrook/sterling-executor/agent/planner"
)

// EmergencyLatencyCapMs is the reported-latency ceiling for emergency
// urgency contexts.
const EmergencyLatencyCapMs = 5.0

// Goal is a candidate goal awaiting routing, ranked by Utility.
type Goal struct {
	ID      string
	Utility float64
	Urgency planner.Urgency
}

// PlanRecord is the bookkeeping entry the Coordinator keeps per active
// plan: the routing decision that produced it, and the latest execution
// feedback once available.
type PlanRecord struct {
	PlanID   string
	GoalID   string
	Decision planner.RoutingDecision
	Quality  float64
}

// ExecutionFeedback is what the executor reports back on completion.
// ReportOutcome folds Success into the per-approach success rate; LatencyMs
// is not used.
type ExecutionFeedback struct {
	PlanID     string
	Success    bool
	LatencyMs  float64
}

// Coordinator tracks active plans, planning history, and performance
// metrics; it is the only component with a planId -> routingDecision map.
type Coordinator struct {
	mu sync.Mutex

	active  map[string]PlanRecord
	history []PlanRecord

	// adaptiveSuccessRate is a per-approach running success rate, updated
	// by ReportOutcome and read through SuccessRate. planner.Route does not
	// consult it.
	adaptiveSuccessRate map[planner.Approach]float64
	adaptiveSamples     map[planner.Approach]int
}

// New constructs an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{
		active:              map[string]PlanRecord{},
		adaptiveSuccessRate: map[planner.Approach]float64{},
		adaptiveSamples:     map[planner.Approach]int{},
	}
}

// NewPlanID mints a fresh plan id for a goal the Coordinator is about to
// route, so RegisterPlan has a collision-free key before the plan executes.
func NewPlanID() string {
	return "plan-" + uuid.NewString()
}

// RankGoals orders goals by descending utility; ties keep input order
// (stable sort).
func RankGoals(goals []Goal) []Goal {
	ranked := make([]Goal, len(goals))
	copy(ranked, goals)
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && ranked[j-1].Utility < ranked[j].Utility {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
			j--
		}
	}
	return ranked
}

// RegisterPlan records a newly routed plan as active.
func (c *Coordinator) RegisterPlan(planID, goalID string, decision planner.RoutingDecision, quality float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := PlanRecord{PlanID: planID, GoalID: goalID, Decision: decision, Quality: quality}
	c.active[planID] = rec
}

// ReportedLatency applies the emergency-context latency cap.
func ReportedLatency(urgency planner.Urgency, actualMs float64) float64 {
	if urgency == planner.UrgencyEmergency && actualMs > EmergencyLatencyCapMs {
		return EmergencyLatencyCapMs
	}
	return actualMs
}

// ReportOutcome folds an execution's success into the running success rate
// of the plan's approach and moves the plan from active into history.
func (c *Coordinator) ReportOutcome(fb ExecutionFeedback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.active[fb.PlanID]
	if !ok {
		return
	}
	delete(c.active, fb.PlanID)
	c.history = append(c.history, rec)

	approach := rec.Decision.Approach
	samples := c.adaptiveSamples[approach]
	prevRate := c.adaptiveSuccessRate[approach]
	successVal := 0.0
	if fb.Success {
		successVal = 1.0
	}
	c.adaptiveSuccessRate[approach] = (prevRate*float64(samples) + successVal) / float64(samples+1)
	c.adaptiveSamples[approach] = samples + 1
}

// SuccessRate returns the running success rate recorded for approach, or
// 0 if no feedback has been reported yet.
func (c *Coordinator) SuccessRate(approach planner.Approach) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adaptiveSuccessRate[approach]
}

// History returns a copy of every plan moved out of the active set.
func (c *Coordinator) History() []PlanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PlanRecord, len(c.history))
	copy(out, c.history)
	return out
}

// ActiveCount reports how many plans are currently registered as active.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
