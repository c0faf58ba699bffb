package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/darianrosebrook/sterling-executor/agent/planner"
)

func TestRoute_MCPFirstMatch(t *testing.T) {
	in := planner.RouteInput{
		Preferences:     planner.Preferences{PreferMCP: true},
		Confidences:     planner.Confidences{MCP: 0.85},
		Urgency:         planner.UrgencyMedium,
		MCPAdapterReady: true,
	}
	d := planner.Route(in)
	assert.Equal(t, planner.ApproachMCPCapabilities, d.Approach)
	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, 300.0, d.EstimatedLatency)
}

func TestRoute_MCPRequiresAdapter(t *testing.T) {
	in := planner.RouteInput{
		Preferences: planner.Preferences{PreferMCP: true, PreferGOAP: true},
		Confidences: planner.Confidences{MCP: 0.9, GOAP: 0.65},
		Urgency:     planner.UrgencyLow,
	}
	d := planner.Route(in)
	assert.Equal(t, planner.ApproachGOAP, d.Approach)
}

func TestRoute_SkillBased(t *testing.T) {
	in := planner.RouteInput{
		Preferences: planner.Preferences{PreferSkills: true},
		Confidences: planner.Confidences{Skill: 0.9},
		Urgency:     planner.UrgencyHigh,
	}
	d := planner.Route(in)
	assert.Equal(t, planner.ApproachSkillBased, d.Approach)
	assert.Equal(t, 70.0, d.EstimatedLatency)
}

func TestRoute_HybridFallback(t *testing.T) {
	in := planner.RouteInput{
		Preferences: planner.Preferences{AllowHybrid: true},
		Confidences: planner.Confidences{Skill: 0.55, HTN: 0.4, MCP: 0.3},
		Urgency:     planner.UrgencyMedium,
	}
	d := planner.Route(in)
	assert.Equal(t, planner.ApproachHybrid, d.Approach)
	assert.InDelta(t, 0.9*0.55, d.Confidence, 0.0001)
}

func TestRoute_DefaultGoap(t *testing.T) {
	in := planner.RouteInput{
		Confidences: planner.Confidences{GOAP: 0.2},
		Urgency:     planner.UrgencyEmergency,
	}
	d := planner.Route(in)
	assert.Equal(t, planner.ApproachGOAP, d.Approach)
	assert.Equal(t, 100.0, d.EstimatedLatency)
}

func TestMergeHybrid_MeanConfidence(t *testing.T) {
	p := planner.MergeHybrid(&planner.HRMPlan{Goals: []string{"g1"}}, nil, nil, nil, planner.Confidences{Skill: 0.6, HTN: 0.8})
	assert.InDelta(t, 0.7, p.Confidence, 0.0001)
	assert.Equal(t, planner.ApproachHybrid, p.PlanningApproach)
}

func TestEstimateConfidences_Deterministic(t *testing.T) {
	a := planner.EstimateConfidences("craft an iron pickaxe", 3, planner.UrgencyMedium)
	b := planner.EstimateConfidences("craft an iron pickaxe", 3, planner.UrgencyMedium)
	assert.Equal(t, a, b)
}

func TestEstimateConfidences_SkillKeywordRaisesSkill(t *testing.T) {
	withKeyword := planner.EstimateConfidences("craft a pickaxe", 2, planner.UrgencyMedium)
	without := planner.EstimateConfidences("do a thing", 2, planner.UrgencyMedium)
	assert.Greater(t, withKeyword.Skill, without.Skill)
}

func TestEstimateConfidences_StructureRaisesHTN(t *testing.T) {
	structured := planner.EstimateConfidences("gather wood then craft planks then build shelter", 1, planner.UrgencyLow)
	flat := planner.EstimateConfidences("gather wood", 1, planner.UrgencyLow)
	assert.Greater(t, structured.HTN, flat.HTN)
}

func TestEstimateConfidences_UrgencyRaisesGOAP(t *testing.T) {
	urgent := planner.EstimateConfidences("flee", 0, planner.UrgencyEmergency)
	calm := planner.EstimateConfidences("flee but over many words so the goal is not short anymore", 0, planner.UrgencyLow)
	assert.Greater(t, urgent.GOAP, calm.GOAP)
}

func TestEstimateConfidences_Bounded(t *testing.T) {
	c := planner.EstimateConfidences("craft mine smelt build gather place query recall sequence multi", 10, planner.UrgencyEmergency)
	for _, v := range []float64{c.Skill, c.HTN, c.MCP, c.GOAP} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
