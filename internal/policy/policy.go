// Package policy is the last line of defense between a model-produced
// plan and the workspace. Validation is pure: the same plan and the
// same policy always yield the same verdict.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

//go:embed default.yaml
var defaultPolicy []byte

// FailureMode classifies how the executor treats a failed action of a
// given kind
type FailureMode string

const (
	ModeFatal       FailureMode = "fatal"       // halt the plan, mark the rest skipped
	ModeRecoverable FailureMode = "recoverable" // record the failure, keep going
)

// Policy holds the safety thresholds and command rules. Loaded from
// YAML; the embedded default ships sane values.
type Policy struct {
	// DeniedPatterns are substring matches against the full command
	// line (program plus arguments)
	DeniedPatterns []string `yaml:"denied_patterns"`

	// AllowedCommands are the program names run_command may invoke.
	// Empty means any program not matching a denied pattern.
	AllowedCommands []string `yaml:"allowed_commands"`

	MaxActions        int `yaml:"max_actions"`
	MaxWriteBytes     int `yaml:"max_write_bytes"`
	MaxCommandTimeout int `yaml:"max_command_timeout_seconds"`

	// FailureModes overrides the per-kind fatal/recoverable default
	FailureModes map[domain.ActionKind]FailureMode `yaml:"failure_modes"`
}

// Default returns the embedded policy
func Default() (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(defaultPolicy, &p); err != nil {
		return nil, fmt.Errorf("embedded policy: %w", err)
	}
	return &p, nil
}

// Load reads a policy file, falling back to the embedded default when
// path is empty or missing
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default()
		}
		return nil, err
	}
	p, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// FailureMode returns the configured mode for an action kind. Writes
// and deletes default to fatal: a failed write means later actions
// would build on missing state. Reads and commands default to
// recoverable, matching how a human treats a non-zero exit.
func (p *Policy) FailureMode(kind domain.ActionKind) FailureMode {
	if m, ok := p.FailureModes[kind]; ok {
		return m
	}
	switch kind {
	case domain.KindWriteFile, domain.KindDeleteFile:
		return ModeFatal
	default:
		return ModeRecoverable
	}
}

// Validate evaluates every action of a plan against the policy and the
// workspace and returns the aggregated verdict. The plan itself is
// never mutated; a modified outcome carries a copy.
func (p *Policy) Validate(plan *domain.Plan, ws *workspace.Workspace) *domain.PlanVerdict {
	verdict := &domain.PlanVerdict{PlanID: plan.ID}

	if p.MaxActions > 0 && len(plan.Actions) > p.MaxActions {
		verdict.PlanReason = fmt.Sprintf("plan has %d actions, limit is %d", len(plan.Actions), p.MaxActions)
		return verdict
	}

	for i, act := range plan.Actions {
		verdict.Verdicts = append(verdict.Verdicts, p.validateAction(i, act, ws))
	}
	return verdict
}

func (p *Policy) validateAction(i int, act *domain.Action, ws *workspace.Workspace) domain.Verdict {
	v := domain.Verdict{Index: i, Decision: domain.DecisionApproved}

	if act.Kind.HasPath() {
		if _, err := ws.Resolve(act.Path); err != nil {
			return reject(i, fmt.Sprintf("path %q escapes the workspace", act.Path))
		}
	}

	switch act.Kind {
	case domain.KindWriteFile:
		if p.MaxWriteBytes > 0 && len(act.Content) > p.MaxWriteBytes {
			return reject(i, fmt.Sprintf("write of %d bytes to %q exceeds limit of %d", len(act.Content), act.Path, p.MaxWriteBytes))
		}
		if !act.Overwrite && ws.Exists(act.Path) {
			return reject(i, fmt.Sprintf("%q exists and overwrite is false", act.Path))
		}

	case domain.KindRunCommand:
		return p.validateCommand(i, act)
	}

	return v
}

func (p *Policy) validateCommand(i int, act *domain.Action) domain.Verdict {
	line := strings.ToLower(strings.TrimSpace(act.Command + " " + strings.Join(act.Args, " ")))

	for _, pattern := range p.DeniedPatterns {
		if pattern != "" && strings.Contains(line, strings.ToLower(pattern)) {
			return reject(i, fmt.Sprintf("command matches denied pattern %q", pattern))
		}
	}

	program := filepath.Base(act.Command)
	if len(p.AllowedCommands) > 0 && !p.allowed(program) {
		return reject(i, fmt.Sprintf("command %q is not in the allowed list", program))
	}

	// An inline script wraps an arbitrary command line into a single
	// argument, which neither the denylist nor the path check below
	// can see into. Reject the wrapper flags outright.
	for _, flag := range scriptFlags[program] {
		for _, arg := range act.Args {
			if arg == flag || strings.HasPrefix(arg, flag+"=") {
				return reject(i, fmt.Sprintf("inline script flag %q is not allowed for %q", flag, program))
			}
		}
	}

	for _, arg := range act.Args {
		if escapesWorkspace(arg) {
			return reject(i, fmt.Sprintf("argument %q targets a path outside the workspace", arg))
		}
	}

	// Over-limit timeouts are clamped rather than rejected; the
	// original request stays on record for audit
	if p.MaxCommandTimeout > 0 && act.TimeoutSeconds > p.MaxCommandTimeout {
		mod := act.Clone()
		mod.TimeoutSeconds = p.MaxCommandTimeout
		return domain.Verdict{
			Index:    i,
			Decision: domain.DecisionModified,
			Reason:   fmt.Sprintf("timeout %ds clamped to policy maximum %ds", act.TimeoutSeconds, p.MaxCommandTimeout),
			Modified: mod,
			Original: act.Clone(),
		}
	}

	return domain.Verdict{Index: i, Decision: domain.DecisionApproved}
}

// scriptFlags maps interpreter programs to the flags that take an
// inline script as their value
var scriptFlags = map[string][]string{
	"sh":      {"-c"},
	"bash":    {"-c"},
	"dash":    {"-c"},
	"zsh":     {"-c"},
	"python":  {"-c"},
	"python3": {"-c"},
	"node":    {"-e", "--eval", "-p", "--print"},
	"perl":    {"-e", "-E"},
	"ruby":    {"-e"},
}

func (p *Policy) allowed(program string) bool {
	for _, a := range p.AllowedCommands {
		if program == a {
			return true
		}
	}
	return false
}

// escapesWorkspace flags arguments that name paths above or outside
// the workspace root. Plain flags and relative in-tree paths pass.
func escapesWorkspace(arg string) bool {
	if arg == "" {
		return false
	}
	if strings.HasPrefix(arg, "~") {
		return true
	}
	if strings.HasPrefix(arg, "/") || filepath.IsAbs(arg) {
		return true
	}
	clean := filepath.Clean(filepath.FromSlash(arg))
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

func reject(i int, reason string) domain.Verdict {
	return domain.Verdict{Index: i, Decision: domain.DecisionRejected, Reason: reason}
}
