package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/adapters/model"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/config"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check host resources and adapter availability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		preflight := diagnostics.RunPreflight()
		fmt.Printf("host: %d cores, %d MiB available, load %.1f\n",
			preflight.Cores, preflight.AvailableMemoryBytes>>20, preflight.Load1)
		for _, w := range preflight.Warnings {
			fmt.Printf("  warn: %s\n", w)
		}
		for _, e := range preflight.Errors {
			fmt.Printf("  FAIL: %s\n", e)
		}

		logger := newLogger(cfg)
		registry := model.NewRegistry(logger)
		failures := 0
		for _, pc := range append(append([]config.ParticipantConfig{}, cfg.Agents...), cfg.Judges...) {
			status := checkParticipant(cmd, registry, pc)
			fmt.Printf("%-20s %s/%s: %s\n", pc.ID, pc.Provider, pc.Model, status)
			if status != "ok" {
				failures++
			}
		}

		if !preflight.OK || failures > 0 {
			exitCode = ExitFatal
		}
		return nil
	},
}

func checkParticipant(cmd *cobra.Command, registry *model.Registry, pc config.ParticipantConfig) string {
	adapter, err := registry.Get(pc)
	if err != nil {
		return err.Error()
	}
	if pinger, ok := adapter.(core.AdapterPinger); ok {
		if err := pinger.Ping(cmd.Context()); err != nil {
			return err.Error()
		}
	}
	return "ok"
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
