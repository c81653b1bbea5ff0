package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// ClaudeAdapter drives the Claude CLI in print mode.
type ClaudeAdapter struct {
	runner *cliRunner
	model  string
}

// NewClaudeAdapter creates a Claude CLI adapter.
func NewClaudeAdapter(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error) {
	runner, err := newCLIRunner("claude", cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &ClaudeAdapter{runner: runner, model: model}, nil
}

// Provider returns the provider key.
func (a *ClaudeAdapter) Provider() string { return "claude" }

// Model returns the configured model.
func (a *ClaudeAdapter) Model() string { return a.model }

// Ping checks the CLI is installed and answers.
func (a *ClaudeAdapter) Ping(ctx context.Context) error {
	return a.runner.ping(ctx)
}

// Call executes one prompt exchange. The user prompt travels via stdin to
// keep argv small.
func (a *ClaudeAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	args := []string{"--print", "--output-format", "json", "--model", a.model}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}

	result, err := a.runner.run(ctx, args, req.UserPrompt, req.Timeout)
	if err != nil {
		if me, ok := err.(*core.ModelError); ok {
			me.WithScope("claude", a.model)
		}
		return nil, err
	}

	content, usage := a.parseOutput(result.Stdout)
	if content == "" {
		return nil, core.ErrParse("claude output carried no result content").WithScope("claude", a.model)
	}
	if usage.Total == 0 {
		usage = estimatedUsage(req.SystemPrompt+req.UserPrompt, content)
	}

	return &core.CallResult{
		Content:     content,
		TokenUsage:  usage,
		LatencyMs:   result.Duration.Milliseconds(),
		RawResponse: result.Stdout,
	}, nil
}

// claudeResult is the CLI's JSON result envelope.
type claudeResult struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *ClaudeAdapter) parseOutput(stdout string) (string, core.TokenUsage) {
	var res claudeResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &res); err != nil {
		// Older CLI builds print the answer bare.
		return strings.TrimSpace(stdout), core.TokenUsage{}
	}
	if res.IsError {
		return "", core.TokenUsage{}
	}
	usage := core.TokenUsage{
		Prompt:     res.Usage.InputTokens,
		Completion: res.Usage.OutputTokens,
		Total:      res.Usage.InputTokens + res.Usage.OutputTokens,
	}
	return res.Result, usage
}
