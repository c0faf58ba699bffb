package planner

import "github.com/darianrosebrook/sterling-executor/agent/task"

// SkillPlan is the skill-based sub-plan shape.
type SkillPlan struct {
	SkillName string
	Steps     []task.Step
}

// MCPPlan is the mcp-capabilities sub-plan shape.
type MCPPlan struct {
	CapabilityName string
	Steps          []task.Step
}

// HRMPlan is the hierarchical (HTN-style) sub-plan's high-level skeleton.
type HRMPlan struct {
	Goals []string
	Steps []task.Step
}

// GOAPPlan is the reactive goal-oriented-action-planning sub-plan shape.
type GOAPPlan struct {
	Actions []string
	Steps   []task.Step
}

// Plan is the planner's output: the ordered step list the executor
// consumes, plus the approach-specific sub-plan that produced it.
type Plan struct {
	Nodes             []string
	ExecutionOrder     []string
	Confidence         float64
	EstimatedLatency   float64
	PlanningApproach   Approach
	Steps              []task.Step

	Skill *SkillPlan
	MCP   *MCPPlan
	HRM   *HRMPlan
	GOAP  *GOAPPlan
}

// MergeHybrid combines an HRM skeleton with HTN step detail into a single
// hybrid Plan. Its confidence is the mean of the non-zero entries of
// confidences; the sub-plan arguments do not affect it.
func MergeHybrid(hrm *HRMPlan, htnSteps []task.Step, mcp *MCPPlan, skill *SkillPlan, confidences Confidences) Plan {
	steps := htnSteps
	if len(steps) == 0 && hrm != nil {
		steps = hrm.Steps
	}

	var sum float64
	var n int
	for _, c := range []float64{confidences.Skill, confidences.HTN, confidences.MCP, confidences.GOAP} {
		if c > 0 {
			sum += c
			n++
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}

	return Plan{
		Steps:            steps,
		Confidence:       mean,
		PlanningApproach: ApproachHybrid,
		HRM:              hrm,
		MCP:              mcp,
		Skill:            skill,
	}
}
