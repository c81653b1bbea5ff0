package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// MockCall scripts one adapter invocation.
type MockCall struct {
	Content string
	Usage   core.TokenUsage
	Err     error
}

// MockAdapter is a deterministic adapter for tests and dry runs. Scripted
// calls pop in order; when the script is exhausted the fallback answer is
// returned.
type MockAdapter struct {
	provider string
	model    string

	mu     sync.Mutex
	script []MockCall
	calls  int
}

// NewMockAdapter creates the config-driven mock. It always abstains with a
// position derived from the participant's model string, which keeps dry
// runs deterministic.
func NewMockAdapter(cfg config.ParticipantConfig, _ *logging.Logger) (core.ModelAdapter, error) {
	model := cfg.Model
	if model == "" {
		model = "mock-default"
	}
	return &MockAdapter{provider: "mock", model: model}, nil
}

// NewScriptedMock creates a mock that replays the given calls in order.
func NewScriptedMock(model string, script ...MockCall) *MockAdapter {
	return &MockAdapter{provider: "mock", model: model, script: script}
}

// Provider returns the provider key.
func (m *MockAdapter) Provider() string { return m.provider }

// Model returns the configured model.
func (m *MockAdapter) Model() string { return m.model }

// Calls returns how many times the adapter was invoked.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Call replays the next scripted response, or the fallback abstention.
func (m *MockAdapter) Call(ctx context.Context, req core.CallRequest) (*core.CallResult, error) {
	select {
	case <-ctx.Done():
		return nil, core.ErrTimeout("mock call cancelled").WithCause(ctx.Err())
	default:
	}

	m.mu.Lock()
	m.calls++
	var next *MockCall
	if len(m.script) > 0 {
		call := m.script[0]
		m.script = m.script[1:]
		next = &call
	}
	m.mu.Unlock()

	if next == nil {
		fallback := fmt.Sprintf(
			`{"vote":"abstain","newPositionText":"position proposed by %s","reasoning":"scripted fallback","confidence":0.5}`,
			m.model)
		return &core.CallResult{
			Content:    fallback,
			TokenUsage: estimatedUsage(req.SystemPrompt+req.UserPrompt, fallback),
			LatencyMs:  1,
		}, nil
	}
	if next.Err != nil {
		return nil, next.Err
	}

	usage := next.Usage
	if usage.Total == 0 {
		usage = estimatedUsage(req.SystemPrompt+req.UserPrompt, next.Content)
	}
	return &core.CallResult{
		Content:    next.Content,
		TokenUsage: usage,
		LatencyMs:  1,
	}, nil
}
