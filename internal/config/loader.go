package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "AGORA",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance,
// allowing CLI flag bindings to participate in precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "AGORA",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (AGORA_*)
// 3. Project config (.agora.yaml in current directory)
// 4. User config (~/.config/agora/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".agora")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "agora"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for every recognized option.
func (l *Loader) setDefaults() {
	l.v.SetDefault("judge_panel_enabled", true)
	l.v.SetDefault("max_agent_rounds", 5)
	l.v.SetDefault("max_judge_rounds", 2)

	l.v.SetDefault("consensus_threshold", 0.67)
	l.v.SetDefault("judge_consensus_threshold", 0.6)
	l.v.SetDefault("judge_min_confidence", 0.7)

	l.v.SetDefault("judge_positions_scope", "all_rounds")
	l.v.SetDefault("context_topology", "last_round_with_self")

	l.v.SetDefault("timeouts.model_ms", 120000)
	l.v.SetDefault("timeouts.round_ms", 600000)
	l.v.SetDefault("timeouts.session_ms", 3600000)

	l.v.SetDefault("retries.max_attempts", 3)
	l.v.SetDefault("retries.base_delay_ms", 1000)
	l.v.SetDefault("retries.max_delay_ms", 30000)

	l.v.SetDefault("concurrency.max_concurrent_requests", 4)

	l.v.SetDefault("limits.max_tokens_per_response", 4096)
	l.v.SetDefault("limits.max_total_tokens", 500000)
	l.v.SetDefault("limits.max_total_cost_usd", 10.0)
	l.v.SetDefault("limits.max_context_tokens", 8000)

	l.v.SetDefault("deterministic_mode", false)
	l.v.SetDefault("allow_external_paths", false)

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("store.path", filepath.Join(".agora", "sessions.db"))

	l.v.SetDefault("serve.addr", "127.0.0.1:8787")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
