// Package executor turns an approved action plan into filesystem and
// process effects, strictly inside the workspace.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/policy"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

// DefaultCommandTimeout applies when an action does not set one
const DefaultCommandTimeout = 30 * time.Second

// Executor applies validated actions against the workspace. Execution
// follows plan order; it halts on the first failure the policy marks
// fatal and continues past recoverable ones.
type Executor struct {
	ws     *workspace.Workspace
	policy *policy.Policy
	debug  bool
}

// New creates an executor over the given workspace
func New(ws *workspace.Workspace, pol *policy.Policy) *Executor {
	return &Executor{ws: ws, policy: pol}
}

// SetDebug enables per-action logging
func (e *Executor) SetDebug(debug bool) { e.debug = debug }

// Execute runs the actions in order and returns one result per
// action. After a fatal failure the remaining actions are marked
// skipped, never silently dropped.
func (e *Executor) Execute(ctx context.Context, actions []*domain.Action) []*domain.ActionResult {
	results := make([]*domain.ActionResult, 0, len(actions))
	halted := false

	for _, act := range actions {
		if halted {
			results = append(results, &domain.ActionResult{
				ActionID: act.ID,
				Kind:     act.Kind,
				Status:   domain.ActionSkipped,
				Error:    "skipped: earlier fatal failure",
			})
			continue
		}

		res := e.runAction(ctx, act)
		results = append(results, res)

		if e.debug {
			log.Printf("[executor] %s %s: %s (%s)", act.Kind, actionTarget(act), res.Status, res.Duration.Round(time.Millisecond))
		}

		if res.Status == domain.ActionFailure && e.policy.FailureMode(act.Kind) == policy.ModeFatal {
			halted = true
		}
		if ctx.Err() != nil {
			halted = true
		}
	}

	return results
}

func (e *Executor) runAction(ctx context.Context, act *domain.Action) *domain.ActionResult {
	start := time.Now()
	res := &domain.ActionResult{ActionID: act.ID, Kind: act.Kind, Status: domain.ActionSuccess}

	var err error
	switch act.Kind {
	case domain.KindWriteFile:
		err = e.ws.Write(act.Path, act.Content, act.Overwrite)
		if err == nil {
			res.Output = fmt.Sprintf("wrote %d bytes to %s", len(act.Content), act.Path)
		}

	case domain.KindReadFile:
		var content string
		content, err = e.ws.Read(act.Path)
		res.Output = content

	case domain.KindDeleteFile:
		err = e.ws.Delete(act.Path)
		if err == nil {
			res.Output = fmt.Sprintf("deleted %s", act.Path)
		}

	case domain.KindRunCommand:
		e.runCommand(ctx, act, res)

	default:
		err = fmt.Errorf("unknown action kind %q", act.Kind)
	}

	if err != nil {
		res.Status = domain.ActionFailure
		res.Error = err.Error()
		if errors.Is(err, workspace.ErrNotFound) {
			res.Error = fmt.Sprintf("not found: %s", act.Path)
		}
	}

	res.Duration = time.Since(start)
	return res
}

func actionTarget(act *domain.Action) string {
	if act.Kind.HasPath() {
		return act.Path
	}
	return act.Command
}
