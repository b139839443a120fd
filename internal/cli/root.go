package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/oracle/internal/config"
)

const version = "0.1.0"

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Oracle - multi-model fact checking chat",
	Long: `Oracle answers each question by asking several language models and
streaming back an aggregated, source-by-source answer over a websocket.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.oracle/oracle.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with API keys (default is ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig loads the config and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
