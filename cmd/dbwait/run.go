package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	// database/sql drivers selectable in the config
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/jpalmerr/dbwait"
	"github.com/jpalmerr/dbwait/config"
	"github.com/jpalmerr/dbwait/httpprobe"
	"github.com/jpalmerr/dbwait/internal/report"
	"github.com/jpalmerr/dbwait/internal/runner"
)

// newLogger creates the CLI logger. JSON goes to stderr so that stdout only
// carries the summary; text output is colourised with tint.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
		})), nil
	case "text":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected json or text)", format)
	}
}

// loadEnvFile loads variables from path without overriding ones already set.
// An empty path is a no-op.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// runCmd runs the configured waits.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured waits",
	Long: `Run every wait in the configuration file and print a summary.

The command will:
  - Load variables from --env-file, if given
  - Load and validate the configuration
  - Open each configured database
  - Poll all waits concurrently until each succeeds, times out, or fails

The run is cancelled on Ctrl+C or SIGTERM; unfinished waits are reported as
cancelled.

Exit codes:
  0 - Every wait succeeded
  1 - At least one wait timed out, failed, or was cancelled

Example:
  dbwait run -c waits.yaml
  dbwait run -c waits.yaml --env-file .env --only "client onboarded"
  dbwait run -c waits.yaml --log-format text --output json`,
	RunE:         runRun,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	runCmd.Flags().String("env-file", "", "load environment variables from a .env file first")
	runCmd.Flags().StringSlice("only", nil, "run only waits or grids with these names (repeatable)")
	runCmd.Flags().String("log-format", "json", "log format: json or text")
	runCmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	runCmd.Flags().StringP("output", "o", "table", "summary format: table or json")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	logFormat, _ := cmd.Flags().GetString("log-format")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(cmd.ErrOrStderr(), logFormat, logLevel)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "json" {
		return fmt.Errorf("invalid --output %q (expected table or json)", output)
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"databases", len(cfg.Databases),
		"waits", len(cfg.Waits),
		"grids", len(cfg.Grids),
	)

	dbs, closeDBs, err := openDatabases(cfg)
	if err != nil {
		return err
	}
	defer closeDBs()

	client := httpprobe.NewClient()
	defer client.Close()

	tasks, err := config.BuildTasks(cfg, dbs, client)
	if err != nil {
		return fmt.Errorf("failed to build waits: %w", err)
	}

	only, _ := cmd.Flags().GetStringSlice("only")
	tasks = filterTasks(tasks, only)
	if len(tasks) == 0 {
		return errors.New("no waits selected")
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := runner.NewRunner(tasks, cfg.MaxConcurrency, logger)
	r.Start(ctx)

	store := report.NewMemoryStore()
	total, failed := collectResults(r.Results(), store)
	r.Stop()

	entries := store.GetAll()
	out := cmd.OutOrStdout()
	if output == "json" {
		if err := report.WriteJSON(out, entries); err != nil {
			return err
		}
	} else {
		report.WriteTable(out, entries)
	}

	logger.Info("run complete",
		"run_id", r.RunID(),
		"waits", total,
		"failed", failed,
	)

	if failed > 0 {
		return fmt.Errorf("%d of %d waits did not succeed", failed, total)
	}
	return nil
}

// collectResults drains results into store and counts them. The counts come
// from the results themselves so that a failure is never lost to a store
// entry with the same name.
func collectResults(results <-chan runner.Result, store report.Store) (total, failed int) {
	for res := range results {
		total++
		if res.Kind != dbwait.Succeeded {
			failed++
		}
		store.Update(report.FromResult(res))
	}
	return total, failed
}

// openDatabases opens a handle per configured database. sql.Open does not
// connect, so an unreachable database surfaces as a probe error that
// retry_on: [transient] can wait out.
func openDatabases(cfg *config.Config) (map[string]config.DB, func(), error) {
	opened := make([]*sql.DB, 0, len(cfg.Databases))
	closeAll := func() {
		for _, db := range opened {
			_ = db.Close()
		}
	}

	dbs := make(map[string]config.DB, len(cfg.Databases))
	for name, dc := range cfg.Databases {
		driver, _ := config.DriverName(dc.Driver)
		db, err := sql.Open(driver, dc.DSN)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open database %s: %w", name, err)
		}
		opened = append(opened, db)
		dbs[name] = db
	}

	return dbs, closeAll, nil
}

// filterTasks keeps tasks whose name, or grid name, is in names.
// An empty names keeps every task.
func filterTasks(tasks []runner.Task, names []string) []runner.Task {
	if len(names) == 0 {
		return tasks
	}

	var kept []runner.Task
	for _, t := range tasks {
		if slices.ContainsFunc(names, func(n string) bool {
			n = strings.TrimSpace(n)
			return n == t.Name || (t.Labels != nil && n == t.Labels["grid"])
		}) {
			kept = append(kept, t)
		}
	}
	return kept
}
