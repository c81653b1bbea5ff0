package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Topic: "should we rewrite it",
		Agents: []ParticipantConfig{
			{ID: "a1", Provider: "mock"},
			{ID: "a2", Provider: "mock"},
			{ID: "a3", Provider: "mock"},
		},
		Judges: []ParticipantConfig{
			{ID: "j1", Provider: "mock"},
			{ID: "j2", Provider: "mock"},
			{ID: "j3", Provider: "mock"},
		},
		JudgePanelEnabled:       true,
		MaxAgentRounds:          3,
		MaxJudgeRounds:          2,
		ConsensusThreshold:      0.67,
		JudgeConsensusThreshold: 0.6,
		JudgeMinConfidence:      0.7,
		JudgePositionsScope:     "all_rounds",
		ContextTopology:         "last_round_with_self",
		Timeouts:                TimeoutConfig{ModelMs: 1000, RoundMs: 10000, SessionMs: 100000},
		Retries:                 RetryConfig{MaxAttempts: 2, BaseDelayMs: 100, MaxDelayMs: 1000},
		Concurrency:             ConcurrencyConfig{MaxConcurrentRequests: 4},
		Limits:                  LimitConfig{MaxTokensPerResponse: 1024, MaxTotalTokens: 100000, MaxTotalCostUsd: 5, MaxContextTokens: 4000},
	}
	cfg.Normalize()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"empty topic", func(c *Config) { c.Topic = "  " }, "topic"},
		{"too few agents", func(c *Config) { c.Agents = c.Agents[:1] }, "agents"},
		{"too many agents", func(c *Config) {
			for i := 0; i < 9; i++ {
				c.Agents = append(c.Agents, ParticipantConfig{ID: string(rune('p' + i)), Provider: "mock"})
			}
		}, "agents"},
		{"panel needs three judges", func(c *Config) { c.Judges = c.Judges[:2] }, "judge panel"},
		{"rounds too high", func(c *Config) { c.MaxAgentRounds = 11 }, "max_agent_rounds"},
		{"judge rounds too high", func(c *Config) { c.MaxJudgeRounds = 6 }, "max_judge_rounds"},
		{"threshold too low", func(c *Config) { c.ConsensusThreshold = 0.4 }, "consensus_threshold"},
		{"threshold too high", func(c *Config) { c.ConsensusThreshold = 1.01 }, "consensus_threshold"},
		{"judge threshold", func(c *Config) { c.JudgeConsensusThreshold = 0.2 }, "judge_consensus_threshold"},
		{"min confidence", func(c *Config) { c.JudgeMinConfidence = 1.5 }, "judge_min_confidence"},
		{"bad scope", func(c *Config) { c.JudgePositionsScope = "some_rounds" }, "judge_positions_scope"},
		{"summary topology rejected", func(c *Config) { c.ContextTopology = "summary" }, "summary"},
		{"unknown topology", func(c *Config) { c.ContextTopology = "ring" }, "context_topology"},
		{"zero timeout", func(c *Config) { c.Timeouts.ModelMs = 0 }, "timeouts"},
		{"negative retries", func(c *Config) { c.Retries.MaxAttempts = -1 }, "max_attempts"},
		{"zero concurrency", func(c *Config) { c.Concurrency.MaxConcurrentRequests = 0 }, "concurrent"},
		{"zero limit", func(c *Config) { c.Limits.MaxTotalTokens = 0 }, "limits"},
		{"empty agent id", func(c *Config) { c.Agents[0].ID = "" }, "id must not be empty"},
		{"empty provider", func(c *Config) { c.Agents[0].Provider = "" }, "provider"},
		{"temperature range", func(c *Config) { c.Agents[0].Temperature = 2.5 }, "temperature"},
		{"duplicate ids", func(c *Config) { c.Agents[1].ID = "a1" }, "duplicate"},
		{"agent judge id clash", func(c *Config) { c.Judges[0].ID = "a1" }, "duplicate"},
		{"external checkpoint dir", func(c *Config) { c.CheckpointDir = "/tmp/elsewhere" }, "escapes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_ExternalPathsAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.CheckpointDir = "/tmp/elsewhere"
	cfg.AllowExternalPaths = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("allow_external_paths should permit external dir: %v", err)
	}
}

func TestValidate_NoJudges(t *testing.T) {
	cfg := validConfig()
	cfg.Judges = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("panel enabled with zero judges must fail validation")
	}

	cfg.JudgePanelEnabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("panel disabled with zero judges should validate: %v", err)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := validConfig()
	for _, a := range cfg.Agents {
		if a.Temperature != DefaultAgentTemperature {
			t.Errorf("agent temperature = %v, want %v", a.Temperature, DefaultAgentTemperature)
		}
		if a.MaxTokens != cfg.Limits.MaxTokensPerResponse {
			t.Errorf("agent max tokens = %d", a.MaxTokens)
		}
	}
	for _, j := range cfg.Judges {
		if j.Temperature != DefaultJudgeTemperature {
			t.Errorf("judge temperature = %v, want %v", j.Temperature, DefaultJudgeTemperature)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	cfg := validConfig()
	cfg.DeterministicMode = true
	cfg.Retries.MaxAttempts = 3
	cfg.Normalize()

	for _, p := range append(cfg.Agents, cfg.Judges...) {
		if p.Temperature != 0 {
			t.Errorf("deterministic mode must zero temperature, got %v for %s", p.Temperature, p.ID)
		}
	}
	if cfg.Retries.MaxAttempts != 0 {
		t.Errorf("deterministic mode must disable retries, got %d", cfg.Retries.MaxAttempts)
	}
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigFile("").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConsensusThreshold != 0.67 {
		t.Errorf("consensus_threshold default = %v", cfg.ConsensusThreshold)
	}
	if cfg.JudgeConsensusThreshold != 0.6 {
		t.Errorf("judge_consensus_threshold default = %v", cfg.JudgeConsensusThreshold)
	}
	if cfg.JudgeMinConfidence != 0.7 {
		t.Errorf("judge_min_confidence default = %v", cfg.JudgeMinConfidence)
	}
	if cfg.JudgePositionsScope != "all_rounds" {
		t.Errorf("judge_positions_scope default = %q", cfg.JudgePositionsScope)
	}
	if cfg.ContextTopology != "last_round_with_self" {
		t.Errorf("context_topology default = %q", cfg.ContextTopology)
	}
	if !cfg.JudgePanelEnabled {
		t.Error("judge panel should default enabled")
	}
}
