package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
)

// Exit codes: 0 consensus reached, 2 deadlock, 1 any fatal error.
const (
	ExitConsensus = 0
	ExitFatal     = 1
	ExitDeadlock  = 2
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// exitCode is set by commands that distinguish deadlock from success.
	exitCode int

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Adversarial multi-LLM debate orchestrator",
	Long: `agora orchestrates adversarial deliberations between multiple LLM
participants to produce a single auditable verdict on a topic. Agents argue
positions across bounded rounds; a judge panel breaks non-convergence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code. State
// machine violations panic; they are converted to a fatal exit here rather
// than a raw stack trace.
func Execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			code = ExitFatal
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitFatal
	}
	return exitCode
}

// SetVersion injects build-time version info.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .agora.yaml, then ~/.config/agora/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig loads and normalizes the configuration from all sources.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}
