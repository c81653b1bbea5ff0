package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// GeminiAdapter drives the Gemini CLI.
type GeminiAdapter struct {
	runner *cliRunner
	model  string
}

// NewGeminiAdapter creates a Gemini CLI adapter.
func NewGeminiAdapter(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error) {
	runner, err := newCLIRunner("gemini", cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiAdapter{runner: runner, model: model}, nil
}

// Provider returns the provider key.
func (a *GeminiAdapter) Provider() string { return "gemini" }

// Model returns the configured model.
func (a *GeminiAdapter) Model() string { return a.model }

// Ping checks the CLI is installed and answers.
func (a *GeminiAdapter) Ping(ctx context.Context) error {
	return a.runner.ping(ctx)
}

// Call executes one prompt exchange. The combined prompt travels on stdin.
func (a *GeminiAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	args := []string{"--output-format", "json", "--model", a.model}

	stdin := req.UserPrompt
	if req.SystemPrompt != "" {
		stdin = req.SystemPrompt + "\n\n" + req.UserPrompt
	}

	result, err := a.runner.run(ctx, args, stdin, req.Timeout)
	if err != nil {
		if me, ok := err.(*core.ModelError); ok {
			me.WithScope("gemini", a.model)
		}
		return nil, err
	}

	content, usage := a.parseOutput(result.Stdout)
	if content == "" {
		return nil, core.ErrParse("gemini output carried no response").WithScope("gemini", a.model)
	}
	if usage.Total == 0 {
		usage = estimatedUsage(stdin, content)
	}

	return &core.CallResult{
		Content:     content,
		TokenUsage:  usage,
		LatencyMs:   result.Duration.Milliseconds(),
		RawResponse: result.Stdout,
	}, nil
}

// geminiResponse is the CLI's JSON envelope.
type geminiResponse struct {
	Response string `json:"response"`
	Stats    *struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"stats"`
}

func (a *GeminiAdapter) parseOutput(stdout string) (string, core.TokenUsage) {
	var res geminiResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &res); err != nil {
		return strings.TrimSpace(stdout), core.TokenUsage{}
	}
	var usage core.TokenUsage
	if res.Stats != nil && res.Stats.TotalTokens > 0 {
		usage = core.TokenUsage{
			Prompt:     res.Stats.PromptTokens,
			Completion: res.Stats.TotalTokens - res.Stats.PromptTokens,
			Total:      res.Stats.TotalTokens,
		}
	}
	return res.Response, usage
}
