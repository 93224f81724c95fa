package schema

import (
	"strings"
	"testing"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

func TestParse_WriteFile(t *testing.T) {
	raw := `{
		"analysis": "create a greeting",
		"actions": [
			{"kind": "write_file", "path": "hello.txt", "content": "hi", "overwrite": true}
		],
		"expected_outcome": "hello.txt exists"
	}`

	plan, err := Parse(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if plan.Analysis != "create a greeting" {
		t.Errorf("Analysis = %q", plan.Analysis)
	}
	if len(plan.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(plan.Actions))
	}

	act := plan.Actions[0]
	if act.Kind != domain.KindWriteFile {
		t.Errorf("Kind = %q, want write_file", act.Kind)
	}
	if act.Path != "hello.txt" || act.Content != "hi" || !act.Overwrite {
		t.Errorf("action = %+v", act)
	}
	if act.ID == "" || plan.ID == "" {
		t.Error("IDs not assigned")
	}
}

func TestParse_RunCommand(t *testing.T) {
	raw := `{"actions": [{"kind": "run_command", "command": "ls", "args": ["-la"], "timeout_seconds": 10}]}`

	plan, err := Parse(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	act := plan.Actions[0]
	if act.Command != "ls" {
		t.Errorf("Command = %q, want ls", act.Command)
	}
	if len(act.Args) != 1 || act.Args[0] != "-la" {
		t.Errorf("Args = %v", act.Args)
	}
	if act.TimeoutSeconds != 10 {
		t.Errorf("TimeoutSeconds = %d, want 10", act.TimeoutSeconds)
	}
}

func TestParse_CodeFence(t *testing.T) {
	fenced := "```json\n{\"actions\": [{\"kind\": \"read_file\", \"path\": \"a.txt\"}]}\n```"

	plan, err := Parse(fenced, DefaultLimits())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if plan.Actions[0].Path != "a.txt" {
		t.Errorf("Path = %q", plan.Actions[0].Path)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		index int
		field string
	}{
		{"not json", "plain prose, no JSON here", -1, ""},
		{"no actions", `{"analysis": "nothing to do", "actions": []}`, -1, ""},
		{"unknown kind", `{"actions": [{"kind": "format_disk"}]}`, 0, "kind"},
		{"write without path", `{"actions": [{"kind": "write_file", "content": "x"}]}`, 0, "path"},
		{"write without content", `{"actions": [{"kind": "write_file", "path": "a.txt"}]}`, 0, "content"},
		{"read without path", `{"actions": [{"kind": "read_file"}]}`, 0, "path"},
		{"command empty", `{"actions": [{"kind": "run_command", "command": "  "}]}`, 0, "command"},
		{"negative timeout", `{"actions": [{"kind": "run_command", "command": "ls", "timeout_seconds": -5}]}`, 0, "timeout_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, DefaultLimits())
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			serr, ok := err.(*Error)
			if !ok {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if serr.Index != tt.index {
				t.Errorf("Index = %d, want %d", serr.Index, tt.index)
			}
			if serr.Field != tt.field {
				t.Errorf("Field = %q, want %q", serr.Field, tt.field)
			}
		})
	}
}

func TestParse_TooManyActions(t *testing.T) {
	var actions []string
	for i := 0; i < 3; i++ {
		actions = append(actions, `{"kind": "read_file", "path": "a.txt"}`)
	}
	raw := `{"actions": [` + strings.Join(actions, ",") + `]}`

	_, err := Parse(raw, Limits{MaxActions: 2})
	if err == nil {
		t.Fatal("Parse() succeeded, want plan-level limit error")
	}
	if serr := err.(*Error); serr.Index != -1 {
		t.Errorf("Index = %d, want -1", serr.Index)
	}
}

func TestParse_OversizedContent(t *testing.T) {
	big := strings.Repeat("x", 100)
	raw := `{"actions": [{"kind": "write_file", "path": "a.txt", "content": "` + big + `"}]}`

	_, err := Parse(raw, Limits{MaxWriteBytes: 50})
	if err == nil {
		t.Fatal("Parse() succeeded, want size limit error")
	}
	if serr := err.(*Error); serr.Field != "content" {
		t.Errorf("Field = %q, want content", serr.Field)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"{\"a\": 1}", "{\"a\": 1}"},
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"  ```json\n{\"a\": 1}\n```  ", "{\"a\": 1}"},
	}

	for _, tt := range tests {
		if got := StripFences(tt.input); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
