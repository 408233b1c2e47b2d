package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/dbwait/config"
)

// validateCmd validates a config file without running any wait.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a dbwait configuration file without connecting to anything.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful as a pre-flight check in CI pipelines.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  dbwait validate -c waits.yaml
  dbwait validate --config ci/waits.yaml --env-file ci/.env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	validateCmd.Flags().String("env-file", "", "load environment variables from a .env file first")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	total := cfg.WaitCount()
	direct := len(cfg.Waits)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Databases:       %d\n", len(cfg.Databases))
	fmt.Fprintf(out, "  Timeout:         %s\n", cfg.Defaults.Timeout.Duration())
	fmt.Fprintf(out, "  Interval:        %s\n", cfg.Defaults.Interval.Duration())
	fmt.Fprintf(out, "  Max concurrency: %d\n", cfg.MaxConcurrency)
	fmt.Fprintf(out, "  Waits:           %d direct + %d from grids = %d total\n",
		direct, total-direct, total)

	return nil
}
