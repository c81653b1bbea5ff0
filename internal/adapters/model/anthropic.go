package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

const (
	anthropicDefaultEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
	anthropicKeyEnv          = "ANTHROPIC_API_KEY"
)

// AnthropicAdapter calls the Anthropic messages API directly.
type AnthropicAdapter struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *logging.Logger
}

// NewAnthropicAdapter creates an HTTP adapter for the messages API. A
// missing credential is a non-retryable construction failure.
func NewAnthropicAdapter(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error) {
	apiKey := os.Getenv(anthropicKeyEnv)
	if apiKey == "" {
		return nil, core.ErrValidation(core.CodeNoCredential,
			anthropicKeyEnv+" is not set")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicDefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AnthropicAdapter{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{},
		logger:   logger,
	}, nil
}

// Provider returns the provider key.
func (a *AnthropicAdapter) Provider() string { return "anthropic" }

// Model returns the configured model.
func (a *AnthropicAdapter) Model() string { return a.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
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
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call executes one prompt exchange under the per-call timeout.
func (a *AnthropicAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("encoding request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrTransport(err.Error()).WithScope("anthropic", a.model)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrTimeout("anthropic call timed out").WithScope("anthropic", a.model)
		}
		return nil, core.ErrTransport(err.Error()).WithScope("anthropic", a.model)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxStdoutBytes))
	if err != nil {
		return nil, core.ErrTransport(err.Error()).WithScope("anthropic", a.model)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("anthropic", a.model, resp, payload)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, core.ErrParse(fmt.Sprintf("decoding response: %v", err)).WithScope("anthropic", a.model)
	}
	if parsed.Error != nil {
		return nil, core.ErrTransport(parsed.Error.Message).WithScope("anthropic", a.model)
	}

	content := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return nil, core.ErrParse("response carried no text content").WithScope("anthropic", a.model)
	}

	return &core.CallResult{
		Content: content,
		TokenUsage: core.TokenUsage{
			Prompt:     parsed.Usage.InputTokens,
			Completion: parsed.Usage.OutputTokens,
			Total:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		LatencyMs:   time.Since(start).Milliseconds(),
		RawResponse: string(payload),
	}, nil
}

// classifyHTTPError maps provider HTTP failures to the classified error
// set. The response body is never included verbatim to avoid echoing
// credentials embedded in error messages.
func classifyHTTPError(provider, model string, resp *http.Response, payload []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return core.ErrRateLimit(fmt.Sprintf("%s returned 429", provider), retryAfter).WithScope(provider, model)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return (&core.ModelError{
			Category: core.ErrCatValidation,
			Code:     core.CodeNoCredential,
			Message:  fmt.Sprintf("%s rejected credential (%d)", provider, resp.StatusCode),
		}).WithScope(provider, model)
	case resp.StatusCode >= 500:
		return core.ErrTransport(fmt.Sprintf("%s returned %d", provider, resp.StatusCode)).WithScope(provider, model)
	default:
		msg := fmt.Sprintf("%s returned %d", provider, resp.StatusCode)
		if detail := extractErrorMessage(payload); detail != "" {
			msg += ": " + detail
		}
		return (&core.ModelError{
			Category: core.ErrCatTransport,
			Code:     "HTTP_ERROR",
			Message:  msg,
		}).WithScope(provider, model)
	}
}

// extractErrorMessage pulls a short error description out of a provider
// error payload.
func extractErrorMessage(payload []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	msg := envelope.Error.Message
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
