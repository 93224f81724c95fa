package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/prompts"
	"github.com/hochfrequenz/taskforge/internal/schema"
)

const anthropicDefaultURL = "https://api.anthropic.com/v1/messages"

// Anthropic implements Provider over the Anthropic messages API
type Anthropic struct {
	cfg    Config
	loader *prompts.Loader
	client *http.Client
	url    string
}

// NewAnthropic creates an Anthropic-backed provider
func NewAnthropic(cfg Config, loader *prompts.Loader) *Anthropic {
	url := cfg.BaseURL
	if url == "" {
		url = anthropicDefaultURL
	}
	return &Anthropic{
		cfg:    cfg,
		loader: loader,
		client: &http.Client{Timeout: cfg.Timeout},
		url:    url,
	}
}

// Name returns the provider name
func (p *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// GeneratePlan asks the model for an action plan and parses the
// response through the schema parser
func (p *Anthropic) GeneratePlan(ctx context.Context, req Request) (*domain.Plan, error) {
	system, user, err := buildPrompts(p.loader, req)
	if err != nil {
		return nil, err
	}

	maxTokens := p.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.wrapTransport(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider: p.Name(),
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 500)),
		}
	}

	var ar anthropicResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}

	var text strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	plan, err := schema.Parse(text.String(), p.cfg.Limits)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return plan, nil
}

func (p *Anthropic) wrapTransport(ctx context.Context, err error) error {
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Provider: p.Name(), Kind: kind, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
