// Package schema converts raw model-produced payloads into typed
// action plans. Parsing is strict: unknown kinds, missing fields and
// oversized inputs fail here rather than surfacing at execution time.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hochfrequenz/taskforge/internal/domain"
)

// Limits bounds what the parser accepts
type Limits struct {
	MaxActions    int // actions per plan
	MaxWriteBytes int // bytes of content per write_file
}

// DefaultLimits matches the shipped policy defaults
func DefaultLimits() Limits {
	return Limits{MaxActions: 20, MaxWriteBytes: 1 << 20}
}

// Error reports a malformed action payload. The whole plan is invalid;
// nothing is executed.
type Error struct {
	Index int    // action index, -1 for plan-level problems
	Field string // offending field, if any
	Msg   string
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schema: %s", e.Msg)
	}
	if e.Field != "" {
		return fmt.Sprintf("schema: action %d: field %q: %s", e.Index, e.Field, e.Msg)
	}
	return fmt.Sprintf("schema: action %d: %s", e.Index, e.Msg)
}

// rawPlan mirrors the JSON contract given to the provider
type rawPlan struct {
	Analysis string      `json:"analysis"`
	Actions  []rawAction `json:"actions"`
	Outcome  string      `json:"expected_outcome"`
}

type rawAction struct {
	Kind           string    `json:"kind"`
	Path           *string   `json:"path"`
	Content        *string   `json:"content"`
	Overwrite      *bool     `json:"overwrite"`
	Command        *string   `json:"command"`
	Args           []string  `json:"args"`
	TimeoutSeconds *float64  `json:"timeout_seconds"`
}

// Parse converts a raw provider response into a typed plan. The
// response may be wrapped in a Markdown code fence; anything else that
// does not decode, names an unknown kind, omits a required field or
// exceeds the limits yields a *Error.
func Parse(raw string, limits Limits) (*domain.Plan, error) {
	body := StripFences(raw)

	var rp rawPlan
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&rp); err != nil {
		return nil, &Error{Index: -1, Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if len(rp.Actions) == 0 {
		return nil, &Error{Index: -1, Msg: "plan contains no actions"}
	}
	if limits.MaxActions > 0 && len(rp.Actions) > limits.MaxActions {
		return nil, &Error{Index: -1, Msg: fmt.Sprintf("plan has %d actions, limit is %d", len(rp.Actions), limits.MaxActions)}
	}

	plan := &domain.Plan{
		ID:       uuid.NewString(),
		Analysis: rp.Analysis,
		Outcome:  rp.Outcome,
		Raw:      raw,
	}

	for i, ra := range rp.Actions {
		act, err := parseAction(i, ra, limits)
		if err != nil {
			return nil, err
		}
		plan.Actions = append(plan.Actions, act)
	}

	return plan, nil
}

func parseAction(i int, ra rawAction, limits Limits) (*domain.Action, error) {
	kind := domain.ActionKind(ra.Kind)
	if !kind.Valid() {
		return nil, &Error{Index: i, Field: "kind", Msg: fmt.Sprintf("unknown action kind %q", ra.Kind)}
	}

	act := &domain.Action{ID: uuid.NewString(), Kind: kind}

	switch kind {
	case domain.KindWriteFile:
		if ra.Path == nil || *ra.Path == "" {
			return nil, &Error{Index: i, Field: "path", Msg: "required"}
		}
		if ra.Content == nil {
			return nil, &Error{Index: i, Field: "content", Msg: "required"}
		}
		if limits.MaxWriteBytes > 0 && len(*ra.Content) > limits.MaxWriteBytes {
			return nil, &Error{Index: i, Field: "content", Msg: fmt.Sprintf("%d bytes exceeds limit of %d", len(*ra.Content), limits.MaxWriteBytes)}
		}
		act.Path = *ra.Path
		act.Content = *ra.Content
		if ra.Overwrite != nil {
			act.Overwrite = *ra.Overwrite
		}

	case domain.KindReadFile, domain.KindDeleteFile:
		if ra.Path == nil || *ra.Path == "" {
			return nil, &Error{Index: i, Field: "path", Msg: "required"}
		}
		act.Path = *ra.Path

	case domain.KindRunCommand:
		if ra.Command == nil || strings.TrimSpace(*ra.Command) == "" {
			return nil, &Error{Index: i, Field: "command", Msg: "required"}
		}
		act.Command = strings.TrimSpace(*ra.Command)
		act.Args = ra.Args
		if ra.TimeoutSeconds != nil {
			secs := int(*ra.TimeoutSeconds)
			if secs < 0 {
				return nil, &Error{Index: i, Field: "timeout_seconds", Msg: "must not be negative"}
			}
			act.TimeoutSeconds = secs
		}
	}

	return act, nil
}

// StripFences removes a surrounding Markdown code fence, with or
// without a language tag, from a model response
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// Description is the machine-readable contract embedded in the
// provider prompt. It must stay in sync with rawPlan/rawAction.
func Description() string {
	return `{
  "analysis": "brief analysis of the request",
  "actions": [
    {
      "kind": "write_file | read_file | delete_file | run_command",
      "path": "relative/path (write_file, read_file, delete_file)",
      "content": "file content (write_file)",
      "overwrite": "boolean, whether an existing file may be replaced (write_file)",
      "command": "program name (run_command)",
      "args": ["argument", "list (run_command)"],
      "timeout_seconds": "number (run_command, optional)"
    }
  ],
  "expected_outcome": "what should hold once all actions succeed"
}`
}
