package coordinator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianrosebrook/sterling-executor/agent/coordinator"
	"github.com/darianrosebrook/sterling-executor/agent/planner"
)

func TestRankGoals_DescendingUtility(t *testing.T) {
	goals := []coordinator.Goal{
		{ID: "a", Utility: 0.2},
		{ID: "b", Utility: 0.9},
		{ID: "c", Utility: 0.5},
	}
	ranked := coordinator.RankGoals(goals)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
	assert.Equal(t, "a", ranked[2].ID)
}

func TestReportedLatency_EmergencyCap(t *testing.T) {
	assert.Equal(t, 5.0, coordinator.ReportedLatency(planner.UrgencyEmergency, 120))
	assert.Equal(t, 3.0, coordinator.ReportedLatency(planner.UrgencyEmergency, 3))
	assert.Equal(t, 120.0, coordinator.ReportedLatency(planner.UrgencyHigh, 120))
}

func TestCoordinator_RegisterAndReportOutcome(t *testing.T) {
	c := coordinator.New()
	decision := planner.RoutingDecision{Approach: planner.ApproachGOAP, Confidence: 0.6}
	c.RegisterPlan("plan-1", "goal-1", decision, 0.8)
	assert.Equal(t, 1, c.ActiveCount())

	c.ReportOutcome(coordinator.ExecutionFeedback{PlanID: "plan-1", Success: true, LatencyMs: 200})
	assert.Equal(t, 0, c.ActiveCount())
	require.Len(t, c.History(), 1)
	assert.Equal(t, 1.0, c.SuccessRate(planner.ApproachGOAP))

	c.RegisterPlan("plan-2", "goal-2", decision, 0.7)
	c.ReportOutcome(coordinator.ExecutionFeedback{PlanID: "plan-2", Success: false, LatencyMs: 150})
	assert.Equal(t, 0.5, c.SuccessRate(planner.ApproachGOAP))
}

func TestCoordinator_ReportOutcomeUnknownPlanIsNoop(t *testing.T) {
	c := coordinator.New()
	c.ReportOutcome(coordinator.ExecutionFeedback{PlanID: "missing", Success: true})
	assert.Empty(t, c.History())
}
