package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/cenkalti/backoff/v4"

	"github.com/jpalmerr/dbwait"
	"github.com/jpalmerr/dbwait/httpprobe"
	"github.com/jpalmerr/dbwait/internal/runner"
	"github.com/jpalmerr/dbwait/sqlprobe"
)

// DB is a database handle waits can query and alter. *sql.DB satisfies it.
type DB interface {
	sqlprobe.Querier
	sqlprobe.Execer
}

// BuildTasks converts parsed configuration into runner tasks.
//
// It processes both direct waits and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product. dbs maps database
// names from the config to open handles; client is used by HTTP waits.
func BuildTasks(cfg *Config, dbs map[string]DB, client *httpprobe.Client) ([]runner.Task, error) {
	var tasks []runner.Task

	for _, wc := range cfg.Waits {
		task, err := buildTask(cfg.Defaults, wc, dbs, client)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	for _, gc := range cfg.Grids {
		gridTasks, err := buildGridTasks(cfg.Defaults, gc, dbs)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, gridTasks...)
	}

	return tasks, nil
}

// buildTask converts a single WaitConfig to a runner task.
func buildTask(defaults Defaults, wc WaitConfig, dbs map[string]DB, client *httpprobe.Client) (runner.Task, error) {
	pollCfg, err := buildPollConfig(defaults, wc.Timeout, wc.Interval, wc.RetryOn)
	if err != nil {
		return runner.Task{}, fmt.Errorf("wait (%s): %w", wc.Name, err)
	}

	task := runner.Task{
		Name:   wc.Name,
		Labels: wc.Labels,
		Config: pollCfg,
	}

	if wc.HTTP != nil {
		probe, err := buildHTTPProbe(client, *wc.HTTP)
		if err != nil {
			return runner.Task{}, fmt.Errorf("wait (%s): %w", wc.Name, err)
		}
		task.Probe = probe
		return task, nil
	}

	db, ok := dbs[wc.Database]
	if !ok {
		return runner.Task{}, fmt.Errorf("wait (%s): database %q is not open", wc.Name, wc.Database)
	}

	task.Probe, err = buildSQLProbe(db, wc.Query, toArgs(wc.Args), wc.Expect)
	if err != nil {
		return runner.Task{}, fmt.Errorf("wait (%s): %w", wc.Name, err)
	}

	if wc.SchemaChange != nil {
		task.Schema = &runner.SchemaStep{
			DB: db,
			Change: sqlprobe.SchemaChange{
				Apply:  wc.SchemaChange.Apply,
				Revert: wc.SchemaChange.Revert,
			},
		}
	}

	return task, nil
}

// buildGridTasks expands a GridConfig into multiple tasks via cartesian product.
func buildGridTasks(defaults Defaults, gc GridConfig, dbs map[string]DB) ([]runner.Task, error) {
	// use missingkey=error to fail fast on missing template variables
	tmpls := make([]*template.Template, len(gc.Args))
	for i, arg := range gc.Args {
		tmpl, err := template.New("arg").Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, err
		}
		tmpls[i] = tmpl
	}

	pollCfg, err := buildPollConfig(defaults, gc.Timeout, gc.Interval, gc.RetryOn)
	if err != nil {
		return nil, fmt.Errorf("grid (%s): %w", gc.Name, err)
	}

	db, ok := dbs[gc.Database]
	if !ok {
		return nil, fmt.Errorf("grid (%s): database %q is not open", gc.Name, gc.Database)
	}

	var tasks []runner.Task
	for _, combo := range cartesianProduct(gc.Dimensions) {
		args := make([]any, len(tmpls))
		for i, tmpl := range tmpls {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, combo); err != nil {
				return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", gc.Name, combo, err)
			}
			args[i] = buf.String()
		}

		// merge grid labels with dimension labels
		labels := make(map[string]string, len(gc.Labels)+len(combo)+1)
		for k, v := range gc.Labels {
			labels[k] = v
		}
		for k, v := range combo {
			labels[k] = v
		}
		labels["grid"] = gc.Name

		probe, err := buildSQLProbe(db, gc.Query, args, gc.Expect)
		if err != nil {
			return nil, fmt.Errorf("grid (%s): %w", gc.Name, err)
		}

		tasks = append(tasks, runner.Task{
			Name:   buildGridName(gc.Name, combo),
			Labels: labels,
			Config: pollCfg,
			Probe:  probe,
		})
	}

	return tasks, nil
}

// buildPollConfig merges per-wait overrides into the defaults.
func buildPollConfig(defaults Defaults, timeout, interval Duration, retryOn []string) (dbwait.PollConfig, error) {
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if interval == 0 {
		interval = defaults.Interval
	}

	opts := []dbwait.ConfigOption{
		dbwait.WithInitialDelay(defaults.InitialDelay.Duration()),
		dbwait.WithProbeTimeout(defaults.ProbeTimeout.Duration()),
	}
	if policy := buildRetryPolicy(retryOn); policy != nil {
		opts = append(opts, dbwait.WithRetryable(policy))
	}
	if b := defaults.Backoff; b != nil {
		opts = append(opts, dbwait.WithBackOff(newBackOff(interval, *b)))
	}

	return dbwait.NewPollConfig(timeout.Duration(), interval.Duration(), opts...)
}

// newBackOff returns a factory for exponential backoff starting at interval.
// The poll timeout bounds the wait, so the backoff never gives up on its own.
func newBackOff(interval Duration, cfg BackoffConfig) func() backoff.BackOff {
	multiplier := cfg.Multiplier
	if multiplier == 0 {
		multiplier = backoff.DefaultMultiplier
	}
	return func() backoff.BackOff {
		return backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(interval.Duration()),
			backoff.WithMaxInterval(cfg.MaxInterval.Duration()),
			backoff.WithMultiplier(multiplier),
			backoff.WithRandomizationFactor(cfg.Jitter),
			backoff.WithMaxElapsedTime(0),
		)
	}
}

// buildRetryPolicy maps retry_on classes to a policy. Returns nil when no
// class is given so that probe errors fail the wait at once.
func buildRetryPolicy(classes []string) dbwait.RetryPolicy {
	var policies []dbwait.RetryPolicy
	for _, class := range classes {
		switch class {
		case RetryTransient:
			policies = append(policies, sqlprobe.IsTransient)
		case RetryProbeTimeout:
			policies = append(policies, dbwait.RetryOn(dbwait.ErrProbeTimeout))
		case RetryAll:
			return dbwait.RetryAll
		}
	}
	if len(policies) == 0 {
		return nil
	}
	return dbwait.RetryAny(policies...)
}

// buildSQLProbe builds the probe for a SQL wait, rendering the observed
// value for the summary.
func buildSQLProbe(db DB, query string, args []any, expect ExpectConfig) (dbwait.Probe[string], error) {
	if expect.Mode == ModeCount {
		minRows := expect.MinRows
		if minRows == 0 {
			minRows = 1
		}
		return stringProbe(sqlprobe.Count(db, query, minRows, args...), func(n int64) string {
			return strconv.FormatInt(n, 10)
		}), nil
	}

	match, err := buildMatcher(expect.Columns)
	if err != nil {
		return nil, err
	}

	if expect.Mode == ModeAny {
		return stringProbe(sqlprobe.AnyRow(db, query, match, args...), formatRow), nil
	}
	return stringProbe(sqlprobe.FirstRowWhere(db, query, match, args...), formatRow), nil
}

// buildMatcher combines column expectations. Returns nil (any row matches)
// when there are none.
func buildMatcher(columns map[string]string) (sqlprobe.Matcher, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	// sort keys for deterministic ordering
	keys := make([]string, 0, len(columns))
	for k := range columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	matchers := make([]sqlprobe.Matcher, 0, len(keys))
	for _, col := range keys {
		m, err := sqlprobe.ParseExpectation(col, columns[col])
		if err != nil {
			return nil, fmt.Errorf("expect.columns[%s]: %w", col, err)
		}
		matchers = append(matchers, m)
	}
	return sqlprobe.All(matchers...), nil
}

// buildHTTPProbe builds the probe for an HTTP wait.
func buildHTTPProbe(client *httpprobe.Client, hc HTTPConfig) (dbwait.Probe[string], error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}

	matchers := []httpprobe.Matcher{httpprobe.StatusIn2xx}
	if len(hc.Status) > 0 {
		matchers[0] = httpprobe.StatusIn(hc.Status...)
	}
	if hc.JSON != "" {
		path, want, _ := strings.Cut(hc.JSON, "=")
		matchers = append(matchers, httpprobe.JSONField(path, want))
	}
	if hc.Contains != "" {
		matchers = append(matchers, httpprobe.BodyContains(hc.Contains))
	}

	req := httpprobe.Request{
		Method:  hc.Method,
		URL:     hc.URL,
		Headers: hc.Headers,
		Body:    hc.Body,
		Timeout: hc.Timeout.Duration(),
	}
	return stringProbe(httpprobe.Probe(client, req, httpprobe.AllOf(matchers...)), func(r httpprobe.Response) string {
		if r.StatusCode == 0 {
			return ""
		}
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	}), nil
}

// stringProbe adapts a typed probe to the string probes the runner reports.
func stringProbe[T any](p dbwait.Probe[T], format func(T) string) dbwait.Probe[string] {
	return func(ctx context.Context) (string, bool, error) {
		v, ok, err := p(ctx)
		return format(v), ok, err
	}
}

// formatRow renders a row as "col=value" pairs.
func formatRow(r sqlprobe.Row) string {
	cols := r.Columns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + "=" + r.String(c)
	}
	return strings.Join(parts, ", ")
}

// toArgs converts string args to bind parameters.
func toArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

// buildGridName creates a display name for a grid wait.
func buildGridName(baseName string, combo map[string]string) string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	name := baseName
	for _, k := range keys {
		name += " " + combo[k]
	}
	return name
}

// cartesianProduct generates all combinations of dimension values.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	// sort dimension keys for deterministic ordering
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// start with single empty combination
	result := []map[string]string{{}}

	for _, key := range keys {
		values := dimensions[key]
		var newResult []map[string]string

		for _, combo := range result {
			for _, val := range values {
				// copy existing combo and add new dimension
				newCombo := make(map[string]string)
				for k, v := range combo {
					newCombo[k] = v
				}
				newCombo[key] = val
				newResult = append(newResult, newCombo)
			}
		}
		result = newResult
	}

	return result
}
