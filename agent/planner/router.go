// Package planner implements the Hybrid Planner Router: it chooses a
// planning approach for a goal and produces the step list the Step
// Executor consumes.
package planner

import "strings"

// Urgency classifies how quickly a goal must be routed and executed.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// Approach is the planning strategy a routing decision selects.
type Approach string

const (
	ApproachSkillBased     Approach = "skill-based"
	ApproachMCPCapabilities Approach = "mcp-capabilities"
	ApproachHTN            Approach = "htn"
	ApproachGOAP           Approach = "goap"
	ApproachHybrid         Approach = "hybrid"
)

// Preferences are the caller's stated routing biases.
type Preferences struct {
	PreferSkills bool
	PreferMCP    bool
	PreferHTN    bool
	PreferGOAP   bool
	AllowHybrid  bool
	PreferSimple bool
}

// Confidences are the deterministic per-approach confidence scores the
// caller computed from goal keywords, skill/resource availability, goal
// complexity, and urgency.
type Confidences struct {
	Skill float64
	MCP   float64
	HTN   float64
	GOAP  float64
}

// RouteInput is everything the router needs to produce a RoutingDecision.
type RouteInput struct {
	Preferences     Preferences
	Confidences     Confidences
	Urgency         Urgency
	MCPAdapterReady bool
	ImpasseDetected bool
}

// RoutingDecision is the router's choice of planning approach for one goal.
type RoutingDecision struct {
	Approach         Approach
	Reasoning        string
	Confidence       float64
	EstimatedLatency float64
}

var baseLatencyMs = map[Approach]float64{
	ApproachSkillBased:      100,
	ApproachMCPCapabilities: 300,
	ApproachHTN:             500,
	ApproachGOAP:            200,
	ApproachHybrid:          800,
}

var urgencyMultiplier = map[Urgency]float64{
	UrgencyLow:       1.5,
	UrgencyMedium:    1.0,
	UrgencyHigh:      0.7,
	UrgencyEmergency: 0.5,
}

// Route applies the first-match routing rules and returns the resulting decision.
func Route(in RouteInput) RoutingDecision {
	p, c := in.Preferences, in.Confidences

	switch {
	case p.PreferMCP && (c.MCP >= 0.8 || in.ImpasseDetected) && in.MCPAdapterReady:
		return finalize(ApproachMCPCapabilities, "mcp confidence high or impasse detected, adapter available", c.MCP, in.Urgency)
	case p.PreferSkills && c.Skill >= 0.8:
		return finalize(ApproachSkillBased, "skill confidence high", c.Skill, in.Urgency)
	case p.PreferHTN && c.HTN >= 0.7:
		return finalize(ApproachHTN, "htn confidence above threshold", c.HTN, in.Urgency)
	case p.PreferGOAP && c.GOAP >= 0.6:
		return finalize(ApproachGOAP, "goap confidence above threshold", c.GOAP, in.Urgency)
	case p.AllowHybrid && maxOf(c.Skill, c.HTN, c.MCP) >= 0.5:
		best := maxOf(c.Skill, c.HTN, c.MCP)
		return finalize(ApproachHybrid, "hybrid merge of skill/htn/mcp", 0.9*best, in.Urgency)
	default:
		return finalize(ApproachGOAP, "fallback to goap", c.GOAP, in.Urgency)
	}
}

func finalize(approach Approach, reasoning string, confidence float64, urgency Urgency) RoutingDecision {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	mult, ok := urgencyMultiplier[urgency]
	if !ok {
		mult = 1.0
	}
	return RoutingDecision{
		Approach:         approach,
		Reasoning:        reasoning,
		Confidence:       confidence,
		EstimatedLatency: baseLatencyMs[approach] * mult,
	}
}

// skillKeywords are goal terms that map directly onto a practiced skill.
var skillKeywords = []string{"craft", "mine", "smelt", "build", "gather", "place"}

// structuredKeywords suggest a goal with decomposable hierarchical
// structure, favoring HTN planning.
var structuredKeywords = []string{"then", "after", "sequence", "multi", "pipeline", "stages"}

// capabilityKeywords suggest the goal needs an external capability the
// MCP adapter exposes.
var capabilityKeywords = []string{"query", "lookup", "remember", "recall", "external"}

// EstimateConfidences derives the per-approach confidence scores from the
// goal text, the number of applicable skills, and the urgency. The result
// is a pure function of its inputs.
func EstimateConfidences(goal string, applicableSkills int, urgency Urgency) Confidences {
	lower := strings.ToLower(goal)
	words := len(strings.Fields(lower))

	skill := 0.2 + 0.15*float64(min(applicableSkills, 4))
	for _, kw := range skillKeywords {
		if strings.Contains(lower, kw) {
			skill += 0.15
			break
		}
	}

	htn := 0.3
	for _, kw := range structuredKeywords {
		if strings.Contains(lower, kw) {
			htn += 0.3
			break
		}
	}
	if words > 12 {
		htn += 0.15
	}

	mcp := 0.1
	for _, kw := range capabilityKeywords {
		if strings.Contains(lower, kw) {
			mcp += 0.6
			break
		}
	}

	// GOAP is the reactive fallback: short goals and urgent contexts suit
	// it best.
	goap := 0.5
	if words <= 6 {
		goap += 0.2
	}
	if urgency == UrgencyHigh || urgency == UrgencyEmergency {
		goap += 0.2
	}

	return Confidences{
		Skill: clamp01(skill),
		HTN:   clamp01(htn),
		MCP:   clamp01(mcp),
		GOAP:  clamp01(goap),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
