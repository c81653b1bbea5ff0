package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/engine"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/store"
)

var (
	runInitialQuery string
	runOutputPath   string
)

var runCmd = &cobra.Command{
	Use:   "run [topic]",
	Short: "Run a debate to a verdict",
	Long: `Run drives agents through bounded debate rounds and, when they fail to
converge, escalates to the judge panel. The DebateOutput document is written
to stdout (or --output). Exit code 0 means consensus, 2 means deadlock.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Topic = args[0]
		}
		if runInitialQuery != "" {
			cfg.InitialQuery = runInitialQuery
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := newLogger(cfg)
		orchestrator, err := engine.New(cfg, model.NewRegistry(logger), logger, storeOption(cfg, logger)...)
		if err != nil {
			return err
		}
		return executeDebate(cmd.Context(), orchestrator)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInitialQuery, "query", "", "optional initial query passed to all participants")
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "write the output document to a file instead of stdout")
	rootCmd.AddCommand(runCmd)
}

// storeOption opens the session archive when configured. Archive failures
// must not block a debate, so open errors degrade to a warning.
func storeOption(cfg *config.Config, logger *logging.Logger) []engine.Option {
	if cfg.Store.Path == "" {
		return nil
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		logger.Warn("session archive unavailable", "path", cfg.Store.Path, "error", err.Error())
		return nil
	}
	return []engine.Option{engine.WithStore(st)}
}

// executeDebate runs the orchestrator under signal cancellation, writes the
// output document and maps the terminal phase to the exit code.
func executeDebate(parent context.Context, orchestrator *engine.Orchestrator) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	output, runErr := orchestrator.Run(ctx)
	if output != nil {
		if err := writeOutput(output); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	switch orchestrator.Session().Phase {
	case core.PhaseDeadlock:
		exitCode = ExitDeadlock
	default:
		exitCode = ExitConsensus
	}
	return nil
}

func writeOutput(output *engine.DebateOutput) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	data = append(data, '\n')

	if runOutputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(runOutputPath, data, 0o600)
}
