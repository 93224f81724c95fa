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

const geminiDefaultURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini implements Provider over the Gemini generateContent API
type Gemini struct {
	cfg    Config
	loader *prompts.Loader
	client *http.Client
	url    string
}

// NewGemini creates a Gemini-backed provider
func NewGemini(cfg Config, loader *prompts.Loader) *Gemini {
	url := cfg.BaseURL
	if url == "" {
		url = geminiDefaultURL
	}
	return &Gemini{
		cfg:    cfg,
		loader: loader,
		client: &http.Client{Timeout: cfg.Timeout},
		url:    url,
	}
}

// Name returns the provider name
func (p *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeneratePlan asks the model for an action plan. Gemini has no
// separate system slot, so the system prompt is prepended to the user
// prompt.
func (p *Gemini) GeneratePlan(ctx context.Context, req Request) (*domain.Plan, error) {
	system, user, err := buildPrompts(p.loader, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: system + "\n\n" + user}}}},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.url, p.cfg.Model, p.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{Provider: p.Name(), Kind: kind, Err: err}
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

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	if len(gr.Candidates) == 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("response has no candidates")}
	}

	var text strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	plan, err := schema.Parse(text.String(), p.cfg.Limits)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed, Err: err}
	}
	return plan, nil
}
