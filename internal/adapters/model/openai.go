package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

const (
	openAIDefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	openAIKeyEnv          = "OPENAI_API_KEY"
)

// OpenAIAdapter calls an OpenAI-compatible chat completions endpoint. A
// custom endpoint makes it usable against local inference servers that
// speak the same shape.
type OpenAIAdapter struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *logging.Logger
}

// NewOpenAIAdapter creates an HTTP adapter for chat completions.
func NewOpenAIAdapter(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error) {
	apiKey := os.Getenv(openAIKeyEnv)
	if apiKey == "" {
		return nil, core.ErrValidation(core.CodeNoCredential,
			openAIKeyEnv+" is not set")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openAIDefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OpenAIAdapter{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{},
		logger:   logger,
	}, nil
}

// Provider returns the provider key.
func (a *OpenAIAdapter) Provider() string { return "openai" }

// Model returns the configured model.
func (a *OpenAIAdapter) Model() string { return a.model }

type openAIRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Messages    []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Call executes one prompt exchange under the per-call timeout.
func (a *OpenAIAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]openAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(openAIRequest{
		Model:       a.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("encoding request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrTransport(err.Error()).WithScope("openai", a.model)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrTimeout("openai call timed out").WithScope("openai", a.model)
		}
		return nil, core.ErrTransport(err.Error()).WithScope("openai", a.model)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxStdoutBytes))
	if err != nil {
		return nil, core.ErrTransport(err.Error()).WithScope("openai", a.model)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("openai", a.model, resp, payload)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, core.ErrParse(fmt.Sprintf("decoding response: %v", err)).WithScope("openai", a.model)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, core.ErrParse("response carried no choices").WithScope("openai", a.model)
	}

	total := parsed.Usage.TotalTokens
	if total < parsed.Usage.PromptTokens+parsed.Usage.CompletionTokens {
		total = parsed.Usage.PromptTokens + parsed.Usage.CompletionTokens
	}
	return &core.CallResult{
		Content: parsed.Choices[0].Message.Content,
		TokenUsage: core.TokenUsage{
			Prompt:     parsed.Usage.PromptTokens,
			Completion: parsed.Usage.CompletionTokens,
			Total:      total,
		},
		LatencyMs:   time.Since(start).Milliseconds(),
		RawResponse: string(payload),
	}, nil
}
