package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// Default participant temperatures, applied by Normalize when unset.
const (
	DefaultAgentTemperature = 0.7
	DefaultJudgeTemperature = 0.3
)

// Normalize fills per-participant defaults and applies deterministic-mode
// coordination: temperature 0, retries off, jitter and repair disabled (the
// latter two read DeterministicMode directly at their call sites).
func (c *Config) Normalize() {
	for i := range c.Agents {
		if c.Agents[i].Temperature == 0 && !c.DeterministicMode {
			c.Agents[i].Temperature = DefaultAgentTemperature
		}
		if c.Agents[i].MaxTokens == 0 {
			c.Agents[i].MaxTokens = c.Limits.MaxTokensPerResponse
		}
	}
	for i := range c.Judges {
		if c.Judges[i].Temperature == 0 && !c.DeterministicMode {
			c.Judges[i].Temperature = DefaultJudgeTemperature
		}
		if c.Judges[i].MaxTokens == 0 {
			c.Judges[i].MaxTokens = c.Limits.MaxTokensPerResponse
		}
	}
	if c.DeterministicMode {
		for i := range c.Agents {
			c.Agents[i].Temperature = 0
		}
		for i := range c.Judges {
			c.Judges[i].Temperature = 0
		}
		c.Retries.MaxAttempts = 0
	}
}

// Validate checks the full configuration surface. Returns a validation
// error naming the first offending option.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Topic) == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "topic must not be empty")
	}

	if n := len(c.Agents); n < MinAgents || n > MaxAgents {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("agents: %d outside [%d,%d]", n, MinAgents, MaxAgents))
	}
	if n := len(c.Judges); n > MaxJudges {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("judges: %d exceeds %d", n, MaxJudges))
	}
	if c.JudgePanelEnabled && len(c.Judges) < MinJudgesForPanel {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("judge panel requires at least %d judges, got %d", MinJudgesForPanel, len(c.Judges)))
	}

	if err := validateParticipants("agents", c.Agents); err != nil {
		return err
	}
	if err := validateParticipants("judges", c.Judges); err != nil {
		return err
	}
	if err := validateDistinctIDs(c.Agents, c.Judges); err != nil {
		return err
	}

	if c.MaxAgentRounds < MinAgentRounds || c.MaxAgentRounds > MaxAgentRounds {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("max_agent_rounds: %d outside [%d,%d]", c.MaxAgentRounds, MinAgentRounds, MaxAgentRounds))
	}
	if c.MaxJudgeRounds < MinJudgeRounds || c.MaxJudgeRounds > MaxJudgeRounds {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("max_judge_rounds: %d outside [%d,%d]", c.MaxJudgeRounds, MinJudgeRounds, MaxJudgeRounds))
	}

	if c.ConsensusThreshold < 0.5 || c.ConsensusThreshold > 1.0 {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("consensus_threshold: %v outside [0.5,1.0]", c.ConsensusThreshold))
	}
	if c.JudgeConsensusThreshold < 0.5 || c.JudgeConsensusThreshold > 1.0 {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("judge_consensus_threshold: %v outside [0.5,1.0]", c.JudgeConsensusThreshold))
	}
	if c.JudgeMinConfidence < 0 || c.JudgeMinConfidence > 1 {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("judge_min_confidence: %v outside [0,1]", c.JudgeMinConfidence))
	}

	switch core.PositionsScope(c.JudgePositionsScope) {
	case core.ScopeAllRounds, core.ScopeLastRound:
	default:
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("judge_positions_scope: %q not one of all_rounds, last_round", c.JudgePositionsScope))
	}

	topology := core.ContextTopology(c.ContextTopology)
	if topology == core.TopologySummary {
		return core.ErrValidation(core.CodeInvalidConfig,
			"context_topology: summary is not implemented; use full_history, last_round or last_round_with_self")
	}
	if !core.ValidTopology(topology) {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("context_topology: %q not recognized", c.ContextTopology))
	}

	if c.Timeouts.ModelMs <= 0 || c.Timeouts.RoundMs <= 0 || c.Timeouts.SessionMs <= 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "timeouts must be positive")
	}
	if c.Retries.MaxAttempts < 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "retries.max_attempts must not be negative")
	}
	if c.Retries.BaseDelayMs <= 0 || c.Retries.MaxDelayMs <= 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "retry delays must be positive")
	}
	if c.Concurrency.MaxConcurrentRequests < 1 {
		return core.ErrValidation(core.CodeInvalidConfig, "concurrency.max_concurrent_requests must be at least 1")
	}
	if c.Limits.MaxTokensPerResponse <= 0 || c.Limits.MaxTotalTokens <= 0 ||
		c.Limits.MaxTotalCostUsd <= 0 || c.Limits.MaxContextTokens <= 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "limits must be positive")
	}

	if c.CheckpointDir != "" && !c.AllowExternalPaths {
		if err := pathInsideWorkdir(c.CheckpointDir); err != nil {
			return err
		}
	}

	return nil
}

func validateParticipants(kind string, list []ParticipantConfig) error {
	for i, p := range list {
		if strings.TrimSpace(p.ID) == "" {
			return core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("%s[%d]: id must not be empty", kind, i))
		}
		if strings.TrimSpace(p.Provider) == "" {
			return core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("%s[%d] (%s): provider must not be empty", kind, i, p.ID))
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return core.ErrValidation(core.CodeInvalidConfig,
				fmt.Sprintf("%s[%d] (%s): temperature %v outside [0,2]", kind, i, p.ID, p.Temperature))
		}
	}
	return nil
}

func validateDistinctIDs(agents, judges []ParticipantConfig) error {
	seen := make(map[string]bool)
	for _, p := range agents {
		if seen[p.ID] {
			return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("duplicate participant id %q", p.ID))
		}
		seen[p.ID] = true
	}
	for _, p := range judges {
		if seen[p.ID] {
			return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("duplicate participant id %q", p.ID))
		}
		seen[p.ID] = true
	}
	return nil
}

// pathInsideWorkdir rejects paths that escape the working directory unless
// allow_external_paths is set.
func pathInsideWorkdir(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("checkpoint_dir: %v", err))
	}
	wd, err := filepath.Abs(".")
	if err != nil {
		return core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("checkpoint_dir: %v", err))
	}
	rel, err := filepath.Rel(wd, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("checkpoint_dir %q escapes the working directory; set allow_external_paths to permit", path))
	}
	return nil
}
