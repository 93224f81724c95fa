package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
	}
}

// DefaultLoader creates a loader with the standard override path
// ~/.config/taskforge/prompts/.
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	return NewLoader(filepath.Join(home, ".config", "taskforge", "prompts"))
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		fullPath := filepath.Join(dir, path)
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// load parses and caches a template by its path under the prompts root.
func (l *Loader) load(path string) (*template.Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	data, err := l.loadContent(path)
	if err != nil {
		return nil, fmt.Errorf("loading prompt %s: %w", path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing prompt %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// Render executes the named template with the given data.
func (l *Loader) Render(path string, data any) (string, error) {
	tmpl, err := l.load(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", path, err)
	}
	return buf.String(), nil
}

// SystemData feeds the system prompt template.
type SystemData struct {
	Schema string // machine-readable action plan contract
}

// PlanData feeds the planning prompt template.
type PlanData struct {
	Request string
}

// RetryData feeds the retry prompt template.
type RetryData struct {
	Request    string
	Rejections []string
}

// System renders the agent system prompt.
func (l *Loader) System(schema string) (string, error) {
	return l.Render("agent/system.md", SystemData{Schema: schema})
}

// Plan renders the planning prompt for a user request.
func (l *Loader) Plan(request string) (string, error) {
	return l.Render("agent/plan.md", PlanData{Request: request})
}

// Retry renders the re-prompt carrying the validator's rejection
// reasons from the previous attempt.
func (l *Loader) Retry(request string, rejections []string) (string, error) {
	return l.Render("agent/retry.md", RetryData{Request: request, Rejections: rejections})
}
