package domain

// Decision is the validator's per-action outcome
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionModified Decision = "modified"
)

// Verdict is the validator's judgement of a single action. For
// modified decisions both the replacement action and the original are
// recorded so the change is auditable.
type Verdict struct {
	Index    int      `json:"index"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
	Modified *Action  `json:"modified,omitempty"`
	Original *Action  `json:"original,omitempty"`
}

// PlanVerdict aggregates per-action verdicts for one plan
type PlanVerdict struct {
	PlanID   string    `json:"plan_id"`
	Verdicts []Verdict `json:"verdicts"`

	// PlanReason is set when the plan is rejected as a whole (e.g.
	// action count over the limit) before per-action evaluation
	PlanReason string `json:"plan_reason,omitempty"`
}

// Accepted reports whether execution may proceed: no plan-level
// rejection and no rejected action. A single rejection fails the whole
// plan; there is no partial execution of an unvalidated plan.
func (v *PlanVerdict) Accepted() bool {
	if v.PlanReason != "" {
		return false
	}
	for _, a := range v.Verdicts {
		if a.Decision == DecisionRejected {
			return false
		}
	}
	return true
}

// Rejections returns the reasons for every rejected action, prefixed
// with the plan-level reason when present
func (v *PlanVerdict) Rejections() []string {
	var out []string
	if v.PlanReason != "" {
		out = append(out, v.PlanReason)
	}
	for _, a := range v.Verdicts {
		if a.Decision == DecisionRejected {
			out = append(out, a.Reason)
		}
	}
	return out
}

// Approved returns the actions cleared for execution, with modified
// actions substituted in place. Call only after Accepted returns true.
func (v *PlanVerdict) Approved(plan *Plan) []*Action {
	out := make([]*Action, 0, len(plan.Actions))
	for i, a := range plan.Actions {
		if i < len(v.Verdicts) && v.Verdicts[i].Decision == DecisionModified {
			out = append(out, v.Verdicts[i].Modified)
			continue
		}
		out = append(out, a)
	}
	return out
}
