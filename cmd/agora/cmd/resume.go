package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/engine"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id|checkpoint-path>",
	Short: "Resume a debate from its checkpoint",
	Long: `Resume verifies the checkpoint's integrity (sha256, optional HMAC,
version) and continues the debate from the next round. A tampered or
version-mismatched checkpoint refuses to load.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		path := args[0]
		if !strings.HasSuffix(path, ".checkpoint.json") {
			if cfg.CheckpointDir == "" {
				return core.ErrValidation(core.CodeInvalidConfig,
					"resuming by session id requires checkpoint_dir to be configured")
			}
			path = engine.CheckpointPath(cfg.CheckpointDir, path)
		}

		cp, err := engine.LoadCheckpoint(path)
		if err != nil {
			return err
		}

		logger := newLogger(cfg)
		orchestrator, err := engine.NewFromCheckpoint(cp, model.NewRegistry(logger), logger,
			storeOption(cp.Config, logger)...)
		if err != nil {
			return err
		}
		return executeDebate(cmd.Context(), orchestrator)
	},
}

func init() {
	resumeCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "write the output document to a file instead of stdout")
	rootCmd.AddCommand(resumeCmd)
}
