// Package provider turns a task prompt into an action plan through an
// interchangeable LLM backend. Providers are a pure translation stage:
// one outbound network call per invocation and no local mutation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/prompts"
	"github.com/hochfrequenz/taskforge/internal/schema"
)

// Request is one plan-generation attempt. Rejections carries the
// validator's reasons from a previous attempt so the backend can be
// re-prompted with them.
type Request struct {
	Prompt     string
	Rejections []string
}

// Provider is the capability every backend implements. Concrete
// providers are selected by configuration, not by code path.
type Provider interface {
	GeneratePlan(ctx context.Context, req Request) (*domain.Plan, error)
	Name() string
}

// ErrorKind distinguishes provider failures so the orchestrator can
// decide retry vs abort
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindMalformed   ErrorKind = "malformed_response"
	KindTimeout     ErrorKind = "timeout"
)

// Error is a typed provider failure
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when applicable
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// AsError extracts a *Error from an error chain
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Config selects and parameterizes a backend
type Config struct {
	Name      string // "anthropic" or "gemini"
	Model     string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	BaseURL   string // override for tests
	Limits    schema.Limits
}

// New builds the configured provider
func New(cfg Config, loader *prompts.Loader) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Name {
	case "anthropic", "":
		return NewAnthropic(cfg, loader), nil
	case "gemini":
		return NewGemini(cfg, loader), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
}

// buildPrompts renders the system and user prompts for a request
func buildPrompts(loader *prompts.Loader, req Request) (system, user string, err error) {
	system, err = loader.System(schema.Description())
	if err != nil {
		return "", "", err
	}
	if len(req.Rejections) > 0 {
		user, err = loader.Retry(req.Prompt, req.Rejections)
	} else {
		user, err = loader.Plan(req.Prompt)
	}
	return system, user, err
}

// classifyStatus maps an HTTP status to an error kind
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	default:
		return KindNetwork
	}
}
