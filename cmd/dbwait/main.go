// Package main is the entry point for the dbwait CLI.
//
// dbwait blocks until conditions described in a YAML file hold: rows appear
// in a database, columns reach expected values, or an HTTP endpoint reports
// ready. It is meant for test pipelines that must wait for asynchronous
// processing before asserting on its results.
//
// Usage:
//
//	dbwait run -c waits.yaml      # Run the waits
//	dbwait validate -c waits.yaml # Validate configuration
//	dbwait version                # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "dbwait",
	Short: "Wait for database and HTTP conditions",
	Long: `dbwait polls databases and HTTP endpoints until configured conditions
hold, time out, or fail.

Quick start:
  1. Create a config file (waits.yaml)
  2. Run: dbwait run -c waits.yaml
  3. Check the exit code: 0 when every wait succeeded

Example config:
  databases:
    main: {driver: pgx, dsn: "${DATABASE_URL}"}
  waits:
    - name: client onboarded
      database: main
      query: SELECT clnt_stat FROM clnt_dtl WHERE clnt_id = $1
      args: ["${CLIENT_ID}"]
      expect:
        columns: {clnt_stat: "contains:ACTIVE"}`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this dbwait binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "dbwait %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
