package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Config prints the merged configuration after defaults, config files,
environment variables and flags have been applied, as YAML.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Round-trip through JSON so the YAML keys match the documented
		// (camelCase) configuration surface.
		raw, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var tree map[string]interface{}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return err
		}
		out, err := yaml.Marshal(tree)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
