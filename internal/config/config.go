// Package config defines the typed configuration surface and its loader.
package config

// Config holds all engine configuration.
type Config struct {
	Topic        string `mapstructure:"topic" json:"topic"`
	InitialQuery string `mapstructure:"initial_query" json:"initialQuery,omitempty"`

	Agents []ParticipantConfig `mapstructure:"agents" json:"agents"`
	Judges []ParticipantConfig `mapstructure:"judges" json:"judges"`

	JudgePanelEnabled bool `mapstructure:"judge_panel_enabled" json:"judgePanelEnabled"`

	MaxAgentRounds int `mapstructure:"max_agent_rounds" json:"maxAgentRounds"`
	MaxJudgeRounds int `mapstructure:"max_judge_rounds" json:"maxJudgeRounds"`

	ConsensusThreshold      float64 `mapstructure:"consensus_threshold" json:"consensusThreshold"`
	JudgeConsensusThreshold float64 `mapstructure:"judge_consensus_threshold" json:"judgeConsensusThreshold"`
	JudgeMinConfidence      float64 `mapstructure:"judge_min_confidence" json:"judgeMinConfidence"`

	JudgePositionsScope string `mapstructure:"judge_positions_scope" json:"judgePositionsScope"`
	ContextTopology     string `mapstructure:"context_topology" json:"contextTopology"`

	CheckpointDir string `mapstructure:"checkpoint_dir" json:"checkpointDir,omitempty"`

	Timeouts    TimeoutConfig     `mapstructure:"timeouts" json:"timeouts"`
	Retries     RetryConfig       `mapstructure:"retries" json:"retries"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" json:"concurrency"`
	Limits      LimitConfig       `mapstructure:"limits" json:"limits"`

	DeterministicMode  bool `mapstructure:"deterministic_mode" json:"deterministicMode"`
	AllowExternalPaths bool `mapstructure:"allow_external_paths" json:"allowExternalPaths"`

	Log   LogConfig   `mapstructure:"log" json:"log"`
	Store StoreConfig `mapstructure:"store" json:"store"`
	Serve ServeConfig `mapstructure:"serve" json:"serve"`
}

// ParticipantConfig configures one agent or judge.
type ParticipantConfig struct {
	ID           string  `mapstructure:"id" json:"id"`
	Provider     string  `mapstructure:"provider" json:"provider"`
	Model        string  `mapstructure:"model" json:"model"`
	Endpoint     string  `mapstructure:"endpoint" json:"endpoint,omitempty"` // HTTP providers
	Path         string  `mapstructure:"path" json:"path,omitempty"`         // CLI providers
	SystemPrompt string  `mapstructure:"system_prompt" json:"systemPrompt,omitempty"`
	Temperature  float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"maxTokens,omitempty"`
}

// TimeoutConfig bounds call, round and session runtime in milliseconds.
type TimeoutConfig struct {
	ModelMs   int `mapstructure:"model_ms" json:"modelMs"`
	RoundMs   int `mapstructure:"round_ms" json:"roundMs"`
	SessionMs int `mapstructure:"session_ms" json:"sessionMs"`
}

// RetryConfig configures the retry wrapper.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" json:"maxAttempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms" json:"baseDelayMs"`
	MaxDelayMs  int `mapstructure:"max_delay_ms" json:"maxDelayMs"`
}

// ConcurrencyConfig bounds the per-round fan-out.
type ConcurrencyConfig struct {
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" json:"maxConcurrentRequests"`
}

// LimitConfig holds enforced resource guards.
type LimitConfig struct {
	MaxTokensPerResponse int     `mapstructure:"max_tokens_per_response" json:"maxTokensPerResponse"`
	MaxTotalTokens       int     `mapstructure:"max_total_tokens" json:"maxTotalTokens"`
	MaxTotalCostUsd      float64 `mapstructure:"max_total_cost_usd" json:"maxTotalCostUsd"`
	MaxContextTokens     int     `mapstructure:"max_context_tokens" json:"maxContextTokens"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// StoreConfig configures the session archive.
type StoreConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// ServeConfig configures the read-only HTTP API.
type ServeConfig struct {
	Addr           string   `mapstructure:"addr" json:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowedOrigins,omitempty"`
}

// Bounds enforced by the validator.
const (
	MinAgents = 2
	MaxAgents = 10

	MaxJudges         = 15
	MinJudgesForPanel = 3

	MinAgentRounds = 1
	MaxAgentRounds = 10
	MinJudgeRounds = 1
	MaxJudgeRounds = 5
)
