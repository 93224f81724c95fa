package domain

// ActionKind identifies the operation an action performs
type ActionKind string

const (
	KindWriteFile  ActionKind = "write_file"
	KindReadFile   ActionKind = "read_file"
	KindDeleteFile ActionKind = "delete_file"
	KindRunCommand ActionKind = "run_command"
)

// Kinds lists every action kind the schema accepts
var Kinds = []ActionKind{KindWriteFile, KindReadFile, KindDeleteFile, KindRunCommand}

// Valid reports whether k is a known action kind
func (k ActionKind) Valid() bool {
	switch k {
	case KindWriteFile, KindReadFile, KindDeleteFile, KindRunCommand:
		return true
	}
	return false
}

// HasPath reports whether actions of this kind carry a workspace path
func (k ActionKind) HasPath() bool {
	return k != KindRunCommand
}

// Action is one operation requested by a plan. Kind selects which
// fields are meaningful: Path/Content/Overwrite for file actions,
// Command/Args/TimeoutSeconds for run_command. Path is always relative
// to the workspace root.
type Action struct {
	ID             string     `json:"id"`
	Kind           ActionKind `json:"kind"`
	Path           string     `json:"path,omitempty"`
	Content        string     `json:"content,omitempty"`
	Overwrite      bool       `json:"overwrite,omitempty"`
	Command        string     `json:"command,omitempty"`
	Args           []string   `json:"args,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
}

// Clone returns a deep copy of the action
func (a *Action) Clone() *Action {
	c := *a
	if a.Args != nil {
		c.Args = make([]string, len(a.Args))
		copy(c.Args, a.Args)
	}
	return &c
}

// Plan is the ordered action sequence produced by one provider call.
// Order is significant: later actions may depend on files created by
// earlier ones. A plan is immutable once validated.
type Plan struct {
	ID       string    `json:"id"`
	Analysis string    `json:"analysis,omitempty"`
	Actions  []*Action `json:"actions"`
	Outcome  string    `json:"expected_outcome,omitempty"`

	// Raw is the provider response the plan was parsed from, kept for audit
	Raw string `json:"-"`
}
