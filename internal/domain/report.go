package domain

import "time"

// RunStatus is the aggregate outcome of one request-to-response cycle
type RunStatus string

const (
	RunCompleted     RunStatus = "completed"
	RunPartial       RunStatus = "partially_completed"
	RunFailed        RunStatus = "failed"
	RunAborted       RunStatus = "aborted"
	RunProviderError RunStatus = "provider_error"
	RunInvalid       RunStatus = "invalid_request"
)

// ActionStatus is the outcome of a single executed action
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailure ActionStatus = "failure"
	ActionSkipped ActionStatus = "skipped"
)

// ActionResult records the execution of one action
type ActionResult struct {
	ActionID string       `json:"action_id"`
	Kind     ActionKind   `json:"kind"`
	Status   ActionStatus `json:"status"`
	Output   string       `json:"output,omitempty"`
	Stderr   string       `json:"stderr,omitempty"`
	Error    string       `json:"error,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport is the terminal artifact of a run: per-action results plus
// the aggregate status. It is created empty at cycle start, appended to
// as actions complete, and sealed once the plan finishes or a fatal
// action halts execution.
type RunReport struct {
	ID         string          `json:"id"`
	Prompt     string          `json:"prompt"`
	Status     RunStatus       `json:"status"`
	Plan       *Plan           `json:"plan,omitempty"`
	Results    []*ActionResult `json:"results,omitempty"`
	Rejections []string        `json:"rejections,omitempty"`
	Error      string          `json:"error,omitempty"`
	Retries    int             `json:"retries,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Append adds a result to the report
func (r *RunReport) Append(res *ActionResult) {
	r.Results = append(r.Results, res)
}

// Seal stamps the finish time and derives the aggregate status from
// the per-action results when one was not already forced by an earlier
// stage (provider failure, validation rejection)
func (r *RunReport) Seal() {
	now := time.Now()
	r.FinishedAt = &now

	if r.Status != "" {
		return
	}

	var succeeded, failed, skipped int
	for _, res := range r.Results {
		switch res.Status {
		case ActionSuccess:
			succeeded++
		case ActionFailure:
			failed++
		case ActionSkipped:
			skipped++
		}
	}
	switch {
	case failed == 0 && skipped == 0:
		r.Status = RunCompleted
	case succeeded == 0 && failed > 0:
		r.Status = RunFailed
	default:
		r.Status = RunPartial
	}
}

// Duration returns the wall-clock time of the run so far
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}
