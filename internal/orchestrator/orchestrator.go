// Package orchestrator drives one request-to-response cycle:
// prompt in, provider plan, policy verdict, workspace execution, run
// report out. It is the only component that knows all the stages.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/executor"
	"github.com/hochfrequenz/taskforge/internal/notify"
	"github.com/hochfrequenz/taskforge/internal/policy"
	"github.com/hochfrequenz/taskforge/internal/provider"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

// Store is the slice of the run store the orchestrator needs
type Store interface {
	SaveRun(report *domain.RunReport) error
}

// Request is one task submission
type Request struct {
	Prompt     string `json:"prompt"`
	MaxActions int    `json:"max_actions,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// Options bounds the cycle
type Options struct {
	MaxPromptLength int
	MaxRetries      int
}

// Orchestrator wires the pipeline stages together
type Orchestrator struct {
	provider provider.Provider
	policy   *policy.Policy
	ws       *workspace.Workspace
	exec     *executor.Executor
	store    Store
	notifier notify.Notifier
	opts     Options

	// OnRunUpdate is invoked with the sealed report of every run;
	// the web layer uses it to feed event subscribers
	OnRunUpdate func(report *domain.RunReport)
}

// New creates an orchestrator. store and notifier may be nil.
func New(p provider.Provider, pol *policy.Policy, ws *workspace.Workspace, exec *executor.Executor, store Store, notifier notify.Notifier, opts Options) *Orchestrator {
	if opts.MaxPromptLength == 0 {
		opts.MaxPromptLength = 4000
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Orchestrator{
		provider: p,
		policy:   pol,
		ws:       ws,
		exec:     exec,
		store:    store,
		notifier: notifier,
		opts:     opts,
	}
}

// Run executes one plan-validate-execute cycle and returns the sealed
// report. The caller always gets a structured report; stage failures
// are encoded in its status, never raised as transport errors.
func (o *Orchestrator) Run(ctx context.Context, req Request) *domain.RunReport {
	report := &domain.RunReport{
		ID:        uuid.NewString(),
		Prompt:    req.Prompt,
		DryRun:    req.DryRun,
		CreatedAt: time.Now(),
	}

	prompt := strings.TrimSpace(req.Prompt)
	switch {
	case prompt == "":
		report.Status = domain.RunInvalid
		report.Error = "prompt must not be empty"
		return o.finish(report)
	case len(prompt) > o.opts.MaxPromptLength:
		report.Status = domain.RunInvalid
		report.Error = fmt.Sprintf("prompt length %d exceeds limit of %d", len(prompt), o.opts.MaxPromptLength)
		return o.finish(report)
	}

	plan, verdict, retries, err := o.planAndValidate(ctx, prompt, req.MaxActions)
	report.Retries = retries
	if err != nil {
		report.Status = domain.RunProviderError
		report.Error = err.Error()
		return o.finish(report)
	}

	report.Plan = plan
	if !verdict.Accepted() {
		// No execution at all: the workspace stays untouched
		report.Status = domain.RunAborted
		report.Rejections = verdict.Rejections()
		return o.finish(report)
	}

	if req.DryRun {
		report.Status = domain.RunCompleted
		return o.finish(report)
	}

	results := o.exec.Execute(ctx, verdict.Approved(plan))
	report.Results = results
	return o.finish(report)
}

// planAndValidate runs the bounded retry loop: each rejected plan's
// reasons are fed back to the provider on the next attempt. The loop
// is a counter, not recursion, so it always terminates.
func (o *Orchestrator) planAndValidate(ctx context.Context, prompt string, maxActions int) (*domain.Plan, *domain.PlanVerdict, int, error) {
	var rejections []string
	var lastErr error

	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		plan, err := o.provider.GeneratePlan(ctx, provider.Request{Prompt: prompt, Rejections: rejections})
		if err != nil {
			lastErr = err
			if pe, ok := provider.AsError(err); ok && pe.Retryable() && attempt < o.opts.MaxRetries {
				log.Printf("[orchestrator] provider attempt %d failed (%s), retrying", attempt+1, pe.Kind)
				continue
			}
			return nil, nil, attempt, err
		}

		verdict := o.validate(plan, maxActions)
		if verdict.Accepted() || attempt == o.opts.MaxRetries {
			return plan, verdict, attempt, nil
		}

		rejections = append(rejections, verdict.Rejections()...)
		log.Printf("[orchestrator] plan rejected (%d reasons), re-prompting", len(verdict.Rejections()))
	}

	return nil, nil, o.opts.MaxRetries, lastErr
}

// validate applies the policy plus the per-request action cap
func (o *Orchestrator) validate(plan *domain.Plan, maxActions int) *domain.PlanVerdict {
	if maxActions > 0 && len(plan.Actions) > maxActions {
		return &domain.PlanVerdict{
			PlanID:     plan.ID,
			PlanReason: fmt.Sprintf("plan has %d actions, request allows %d", len(plan.Actions), maxActions),
		}
	}
	return o.policy.Validate(plan, o.ws)
}

// finish seals the report, persists it and fans out notifications
func (o *Orchestrator) finish(report *domain.RunReport) *domain.RunReport {
	report.Seal()

	if o.store != nil {
		if err := o.store.SaveRun(report); err != nil {
			log.Printf("[orchestrator] saving run %s: %v", report.ID, err)
		}
	}

	o.notify(report)

	if o.OnRunUpdate != nil {
		o.OnRunUpdate(report)
	}
	return report
}

func (o *Orchestrator) notify(report *domain.RunReport) {
	n := notify.Notification{
		RunID:   report.ID,
		Title:   fmt.Sprintf("Run %s", report.Status),
		Message: truncatePrompt(report.Prompt),
		Type: notify.ForStatus(
			report.Status == domain.RunCompleted,
			report.Status == domain.RunPartial,
		),
	}
	if err := o.notifier.Send(n); err != nil {
		log.Printf("[orchestrator] notification failed: %v", err)
	}
}

func truncatePrompt(p string) string {
	if len(p) <= 120 {
		return p
	}
	return p[:120] + "..."
}
