package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	genai "google.golang.org/genai"
)

// GeminiConfig holds transport configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		Timeout:     2 * time.Minute,
		MaxRetries:  3,
		BackoffBase: 300 * time.Millisecond,
	}
}

// Gemini is a thin LLM transport over the official genai client.
type Gemini struct {
	cli         *genai.Client
	model       string
	maxRetries  int
	backoffBase time.Duration
	timeout     time.Duration
	tokens      atomic.Int64
}

// NewGemini creates the transport.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Gemini{cli: cli, model: model, maxRetries: retries, backoffBase: backoff, timeout: timeout}, nil
}

// GenerateJSON sends prompt plus marshaled input and requests an
// application/json response. Network failures retry with exponential
// backoff up to MaxRetries.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal input: %w", err)
	}
	full := prompt + "\n\n[INPUT JSON]\n" + string(in)

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoffBase * (1 << (attempt - 1))):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.cli.Models.GenerateContent(callCtx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.UsageMetadata != nil {
			g.tokens.Add(int64(resp.UsageMetadata.TotalTokenCount))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
			len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = fmt.Errorf("gemini: empty response")
			continue
		}
		return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
	}
	return nil, fmt.Errorf("gemini: %d attempts failed: %w", g.maxRetries, lastErr)
}

// TokensUsed reports cumulative token spend across all calls.
func (g *Gemini) TokensUsed() int64 { return g.tokens.Load() }
