package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// CodexAdapter drives the Codex CLI in exec mode with JSONL output.
type CodexAdapter struct {
	runner *cliRunner
	model  string
}

// NewCodexAdapter creates a Codex CLI adapter.
func NewCodexAdapter(cfg config.ParticipantConfig, logger *logging.Logger) (core.ModelAdapter, error) {
	runner, err := newCLIRunner("codex", cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-5.1-codex"
	}
	return &CodexAdapter{runner: runner, model: model}, nil
}

// Provider returns the provider key.
func (a *CodexAdapter) Provider() string { return "codex" }

// Model returns the configured model.
func (a *CodexAdapter) Model() string { return a.model }

// Ping checks the CLI is installed and answers.
func (a *CodexAdapter) Ping(ctx context.Context) error {
	return a.runner.ping(ctx)
}

// Call executes one prompt exchange. Codex has no separate system-prompt
// channel in exec mode, so the prompts are concatenated on stdin.
func (a *CodexAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	args := []string{"exec", "--json", "--model", a.model, "-"}

	stdin := req.UserPrompt
	if req.SystemPrompt != "" {
		stdin = req.SystemPrompt + "\n\n" + req.UserPrompt
	}

	result, err := a.runner.run(ctx, args, stdin, req.Timeout)
	if err != nil {
		if me, ok := err.(*core.ModelError); ok {
			me.WithScope("codex", a.model)
		}
		return nil, err
	}

	content, usage := a.parseEvents(result.Stdout)
	if content == "" {
		return nil, core.ErrParse("codex emitted no agent message").WithScope("codex", a.model)
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

// codexEvent is one JSONL event from codex exec.
type codexEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// parseEvents scans the JSONL stream for the last agent message and the
// turn usage.
func (a *CodexAdapter) parseEvents(stdout string) (string, core.TokenUsage) {
	var content string
	var usage core.TokenUsage

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == "item.completed" && ev.Item != nil && ev.Item.Type == "agent_message" && ev.Item.Text != "" {
			content = ev.Item.Text
		}
		if ev.Usage != nil {
			usage = core.TokenUsage{
				Prompt:     ev.Usage.InputTokens,
				Completion: ev.Usage.OutputTokens,
				Total:      ev.Usage.InputTokens + ev.Usage.OutputTokens,
			}
		}
	}
	return content, usage
}
