package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and ORACLE_*
environment overrides are applied. API keys are never printed.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cfg.String())

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "\n✗ %v\n", err)
	}
	return nil
}
