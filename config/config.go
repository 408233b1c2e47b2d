// Package config provides YAML configuration parsing for the dbwait CLI.
//
// A configuration file names the databases to connect to and the waits to
// run against them.
//
// Example configuration:
//
//	defaults:
//	  timeout: 30s
//	  interval: 2s
//
//	databases:
//	  main:
//	    driver: pgx
//	    dsn: ${DATABASE_URL}
//
//	waits:
//	  - name: client onboarded
//	    database: main
//	    query: SELECT clnt_stat FROM clnt_dtl WHERE clnt_id = $1
//	    args: ["${CLIENT_ID}"]
//	    expect:
//	      columns:
//	        clnt_stat: contains:ACTIVE
//
//	grids:
//	  - name: encryption keys
//	    database: main
//	    query: SELECT key_type FROM clnt_encrypt_dtl WHERE clnt_id = $1
//	    args: ["{{.client}}"]
//	    dimensions:
//	      client: [c1, c2]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/dbwait"
	"github.com/jpalmerr/dbwait/sqlprobe"
)

const (
	// defaultMaxConcurrency bounds how many waits poll at once.
	defaultMaxConcurrency = 4

	// minInterval prevents hammering a database with back-to-back queries.
	minInterval = 10 * time.Millisecond
)

// Expectation modes.
const (
	ModeFirst = "first"
	ModeAny   = "any"
	ModeCount = "count"
)

// Retry classes accepted by retry_on.
const (
	RetryTransient    = "transient"
	RetryProbeTimeout = "probe_timeout"
	RetryAll          = "all"
)

// drivers maps configured driver names to database/sql driver names.
var drivers = map[string]string{
	"pgx":      "pgx",
	"postgres": "postgres",
	"mysql":    "mysql",
}

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Defaults are the poll settings used by waits that do not override them.
	Defaults Defaults `yaml:"defaults"`

	// MaxConcurrency is the number of waits that poll at once. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Databases maps a database name to its connection settings.
	Databases map[string]DatabaseConfig `yaml:"databases"`

	// Waits defines individual waits.
	Waits []WaitConfig `yaml:"waits"`

	// Grids defines waits that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// Defaults holds poll settings shared by all waits.
type Defaults struct {
	// Timeout is the maximum time to wait. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`

	// Interval is the pause between attempts. Defaults to 2s.
	Interval Duration `yaml:"interval"`

	// InitialDelay is a pause before the first attempt.
	InitialDelay Duration `yaml:"initial_delay"`

	// ProbeTimeout bounds a single attempt. Zero means unbounded.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// Backoff, if set, grows the interval between attempts.
	Backoff *BackoffConfig `yaml:"backoff"`
}

// BackoffConfig grows the interval exponentially from the wait's interval.
type BackoffConfig struct {
	// MaxInterval caps the grown interval. Required.
	MaxInterval Duration `yaml:"max_interval"`

	// Multiplier is the growth factor. Defaults to 1.5.
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the randomization factor in [0, 1). Defaults to 0.
	Jitter float64 `yaml:"jitter"`
}

// DatabaseConfig defines a database connection.
type DatabaseConfig struct {
	// Driver is one of "pgx", "postgres" or "mysql".
	Driver string `yaml:"driver"`

	// DSN is the driver-specific connection string.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	DSN string `yaml:"dsn"`
}

// WaitConfig defines a single wait: either a SQL query against a database
// or an HTTP request.
type WaitConfig struct {
	// Name is the display name shown in logs and the summary.
	Name string `yaml:"name"`

	// Database names an entry of the databases section.
	Database string `yaml:"database"`

	// Query is the SQL run on every attempt.
	Query string `yaml:"query"`

	// Args are bind parameters for Query.
	// Values support environment variable substitution.
	Args []string `yaml:"args"`

	// Labels are metadata key-value pairs copied onto the result.
	Labels map[string]string `yaml:"labels"`

	// Expect decides when the query result satisfies the wait.
	Expect ExpectConfig `yaml:"expect"`

	// RetryOn lists error classes that keep the wait polling instead of
	// failing it: "transient", "probe_timeout" or "all".
	RetryOn []string `yaml:"retry_on"`

	// SchemaChange is applied before polling and reverted afterwards.
	SchemaChange *SchemaChangeConfig `yaml:"schema_change"`

	// HTTP makes this an HTTP wait instead of a SQL wait.
	HTTP *HTTPConfig `yaml:"http"`

	// Timeout overrides defaults.timeout.
	Timeout Duration `yaml:"timeout"`

	// Interval overrides defaults.interval.
	Interval Duration `yaml:"interval"`
}

// GridConfig defines a SQL wait that expands via cartesian product.
//
// For example, with dimensions {client: [c1, c2], key: [AES, RSA]},
// the grid expands to 4 waits: c1/AES, c1/RSA, c2/AES, c2/RSA.
type GridConfig struct {
	// Name is the base name for generated waits.
	Name string `yaml:"name"`

	// Database names an entry of the databases section.
	Database string `yaml:"database"`

	// Query is the SQL run on every attempt.
	Query string `yaml:"query"`

	// Args are Go templates for bind parameters.
	// Dimension keys are available as template variables: {{.client}}
	Args []string `yaml:"args"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Labels are additional labels applied to all generated waits.
	// These are merged with auto-generated dimension labels.
	Labels map[string]string `yaml:"labels"`

	// Expect decides when the query result satisfies each wait.
	Expect ExpectConfig `yaml:"expect"`

	// RetryOn lists error classes that keep the waits polling.
	RetryOn []string `yaml:"retry_on"`

	// Timeout overrides defaults.timeout.
	Timeout Duration `yaml:"timeout"`

	// Interval overrides defaults.interval.
	Interval Duration `yaml:"interval"`
}

// ExpectConfig specifies what a query result must look like.
type ExpectConfig struct {
	// Mode is "first" (the first row must match, the default), "any"
	// (any row may match) or "count" (the query returns a single count).
	Mode string `yaml:"mode"`

	// Columns maps a column to its expected value. Values use the shorthand
	// "value", "eq:value", "contains:text", "in:a,b" or "notnull:".
	Columns map[string]string `yaml:"columns"`

	// MinRows is the count a "count" query must reach. Defaults to 1.
	MinRows int64 `yaml:"min_rows"`
}

// SchemaChangeConfig is a DDL statement and the statement that undoes it.
type SchemaChangeConfig struct {
	Apply  string `yaml:"apply"`
	Revert string `yaml:"revert"`
}

// HTTPConfig defines an HTTP wait.
type HTTPConfig struct {
	// URL is the request URL.
	// Supports environment variable substitution.
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Body is sent with POST requests.
	Body string `yaml:"body"`

	// Status lists accepted status codes. Defaults to any 2xx.
	Status []int `yaml:"status"`

	// JSON is a "path=value" expectation on the JSON body.
	JSON string `yaml:"json"`

	// Contains is text the body must contain.
	Contains string `yaml:"contains"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DriverName returns the database/sql driver name for a configured driver.
func DriverName(driver string) (string, bool) {
	name, ok := drivers[driver]
	return name, ok
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in DSNs, args, HTTP URLs, headers and
// bodies. Defaults are applied for timeout (30s), interval (2s) and
// max_concurrency (4).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Defaults.Timeout == 0 {
		cfg.Defaults.Timeout = Duration(dbwait.DefaultTimeout)
	}
	if cfg.Defaults.Interval == 0 {
		cfg.Defaults.Interval = Duration(dbwait.DefaultInterval)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WaitCount returns the number of waits after grid expansion.
func (c *Config) WaitCount() int {
	n := len(c.Waits)
	for _, g := range c.Grids {
		combos := 1
		for _, values := range g.Dimensions {
			combos *= len(values)
		}
		n += combos
	}
	return n
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if err := c.Defaults.validate(); err != nil {
		return err
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}

	for name, db := range c.Databases {
		if _, ok := drivers[db.Driver]; !ok {
			return fmt.Errorf("databases[%s]: driver must be pgx, postgres or mysql, got %q", name, db.Driver)
		}
		if db.DSN == "" {
			return fmt.Errorf("databases[%s]: dsn is required", name)
		}
		expanded, err := expandEnvVars(db.DSN)
		if err != nil {
			return fmt.Errorf("databases[%s]: dsn: %w", name, err)
		}
		db.DSN = expanded
		c.Databases[name] = db
	}

	names := make(map[string]struct{}, len(c.Waits))

	for i := range c.Waits {
		w := &c.Waits[i]

		if w.Name == "" {
			return fmt.Errorf("waits[%d]: name is required", i)
		}
		if _, exists := names[w.Name]; exists {
			return fmt.Errorf("waits[%d] (%s): duplicate name", i, w.Name)
		}
		names[w.Name] = struct{}{}

		where := fmt.Sprintf("waits[%d] (%s)", i, w.Name)

		if err := c.Defaults.validatePollOverrides(where, w.Timeout, w.Interval); err != nil {
			return err
		}
		if err := validateRetryOn(where, w.RetryOn); err != nil {
			return err
		}

		if w.HTTP != nil {
			if w.Database != "" || w.Query != "" {
				return fmt.Errorf("%s: http waits cannot set database or query", where)
			}
			if w.SchemaChange != nil {
				return fmt.Errorf("%s: schema_change requires a database", where)
			}
			if err := w.HTTP.expandAndValidate(where); err != nil {
				return err
			}
			continue
		}

		if err := c.validateQuery(where, w.Database, w.Query); err != nil {
			return err
		}
		for j, arg := range w.Args {
			expanded, err := expandEnvVars(arg)
			if err != nil {
				return fmt.Errorf("%s: args[%d]: %w", where, j, err)
			}
			w.Args[j] = expanded
		}
		if err := validateExpect(where, &w.Expect); err != nil {
			return err
		}
		if w.SchemaChange != nil && (w.SchemaChange.Apply == "" || w.SchemaChange.Revert == "") {
			return fmt.Errorf("%s: schema_change requires both apply and revert", where)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}

		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if err := c.validateQuery(where, g.Database, g.Query); err != nil {
			return err
		}

		for j, arg := range g.Args {
			expanded, err := expandEnvVars(arg)
			if err != nil {
				return fmt.Errorf("%s: args[%d]: %w", where, j, err)
			}
			g.Args[j] = expanded

			// fail fast before building tasks from an invalid template
			if _, err := template.New("").Parse(g.Args[j]); err != nil {
				return fmt.Errorf("%s: invalid args[%d] template: %w", where, j, err)
			}
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := c.Defaults.validatePollOverrides(where, g.Timeout, g.Interval); err != nil {
			return err
		}
		if err := validateRetryOn(where, g.RetryOn); err != nil {
			return err
		}
		if err := validateExpect(where, &g.Expect); err != nil {
			return err
		}
	}

	if len(c.Waits) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one wait or grid must be defined")
	}

	return c.validateExpandedNames()
}

// validateExpandedNames checks that grid expansion does not produce a name
// already taken by a wait, another grid or the grid itself. Results are
// keyed by name, so a clash would hide one of them.
func (c *Config) validateExpandedNames() error {
	owners := make(map[string]string, c.WaitCount())
	for i, w := range c.Waits {
		owners[w.Name] = fmt.Sprintf("waits[%d]", i)
	}

	for i, g := range c.Grids {
		owner := fmt.Sprintf("grids[%d]", i)
		for _, combo := range cartesianProduct(g.Dimensions) {
			name := buildGridName(g.Name, combo)
			if prev, exists := owners[name]; exists {
				return fmt.Errorf("%s (%s): wait name %q collides with %s", owner, g.Name, name, prev)
			}
			owners[name] = owner
		}
	}
	return nil
}

func (d *Defaults) validate() error {
	if d.Timeout.Duration() < 0 {
		return fmt.Errorf("defaults: timeout cannot be negative, got %s", d.Timeout.Duration())
	}
	if d.Interval.Duration() < minInterval {
		return fmt.Errorf("defaults: interval must be at least %s, got %s", minInterval, d.Interval.Duration())
	}
	if d.InitialDelay.Duration() < 0 {
		return fmt.Errorf("defaults: initial_delay cannot be negative, got %s", d.InitialDelay.Duration())
	}
	if d.ProbeTimeout.Duration() < 0 {
		return fmt.Errorf("defaults: probe_timeout cannot be negative, got %s", d.ProbeTimeout.Duration())
	}
	if b := d.Backoff; b != nil {
		if b.MaxInterval.Duration() < d.Interval.Duration() {
			return fmt.Errorf("defaults: backoff.max_interval must be at least the interval (%s), got %s",
				d.Interval.Duration(), b.MaxInterval.Duration())
		}
		if b.Multiplier != 0 && b.Multiplier < 1 {
			return fmt.Errorf("defaults: backoff.multiplier must be at least 1, got %v", b.Multiplier)
		}
		if b.Jitter < 0 || b.Jitter >= 1 {
			return fmt.Errorf("defaults: backoff.jitter must be in [0, 1), got %v", b.Jitter)
		}
	}
	return nil
}

// validateQuery checks the database reference and query of a SQL wait.
func (c *Config) validateQuery(where, database, query string) error {
	if database == "" {
		return fmt.Errorf("%s: database is required", where)
	}
	if _, ok := c.Databases[database]; !ok {
		return fmt.Errorf("%s: unknown database %q", where, database)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%s: query is required", where)
	}
	return nil
}

func (d *Defaults) validatePollOverrides(where string, timeout, interval Duration) error {
	if timeout.Duration() < 0 {
		return fmt.Errorf("%s: timeout cannot be negative, got %s", where, timeout.Duration())
	}
	if interval == 0 {
		return nil
	}
	if interval.Duration() < minInterval {
		return fmt.Errorf("%s: interval must be at least %s, got %s", where, minInterval, interval.Duration())
	}
	// backoff starts at the interval and must be able to grow from it
	if b := d.Backoff; b != nil && b.MaxInterval.Duration() < interval.Duration() {
		return fmt.Errorf("%s: interval %s exceeds backoff.max_interval %s",
			where, interval.Duration(), b.MaxInterval.Duration())
	}
	return nil
}

func validateRetryOn(where string, classes []string) error {
	for _, class := range classes {
		switch class {
		case RetryTransient, RetryProbeTimeout, RetryAll:
		default:
			return fmt.Errorf("%s: unknown retry_on class %q (expected transient, probe_timeout or all)", where, class)
		}
	}
	return nil
}

// validateExpect checks the expectation and applies its defaults.
func validateExpect(where string, e *ExpectConfig) error {
	switch e.Mode {
	case "":
		e.Mode = ModeFirst
	case ModeFirst, ModeAny, ModeCount:
	default:
		return fmt.Errorf("%s: expect.mode must be first, any or count, got %q", where, e.Mode)
	}

	if e.Mode == ModeCount {
		if len(e.Columns) > 0 {
			return fmt.Errorf("%s: expect.columns cannot be used with mode count", where)
		}
		if e.MinRows < 0 {
			return fmt.Errorf("%s: expect.min_rows cannot be negative, got %d", where, e.MinRows)
		}
		if e.MinRows == 0 {
			e.MinRows = 1
		}
		return nil
	}

	if e.MinRows != 0 {
		return fmt.Errorf("%s: expect.min_rows requires mode count", where)
	}
	for col, expr := range e.Columns {
		if _, err := sqlprobe.ParseExpectation(col, expr); err != nil {
			return fmt.Errorf("%s: expect.columns[%s]: %w", where, col, err)
		}
	}
	return nil
}

func (h *HTTPConfig) expandAndValidate(where string) error {
	if h.URL == "" {
		return fmt.Errorf("%s: http.url is required", where)
	}
	expanded, err := expandEnvVars(h.URL)
	if err != nil {
		return fmt.Errorf("%s: http.url: %w", where, err)
	}
	h.URL = expanded

	parsedURL, err := url.Parse(h.URL)
	if err != nil {
		return fmt.Errorf("%s: invalid http.url: %w", where, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s: http.url scheme must be http or https, got %q", where, parsedURL.Scheme)
	}

	for k, v := range h.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: http.headers[%s]: %w", where, k, err)
		}
		h.Headers[k] = expanded
	}

	if h.Body != "" {
		expanded, err := expandEnvVars(h.Body)
		if err != nil {
			return fmt.Errorf("%s: http.body: %w", where, err)
		}
		h.Body = expanded
	}

	if h.Method != "" && h.Method != "GET" && h.Method != "HEAD" && h.Method != "POST" {
		return fmt.Errorf("%s: http.method must be GET, HEAD, or POST", where)
	}

	for _, code := range h.Status {
		if code < 100 || code > 599 {
			return fmt.Errorf("%s: http.status %d is not a valid status code", where, code)
		}
	}

	if h.JSON != "" {
		if path, _, ok := strings.Cut(h.JSON, "="); !ok || path == "" {
			return fmt.Errorf("%s: http.json must be in the form path=value, got %q", where, h.JSON)
		}
	}

	if h.Timeout != 0 && h.Timeout.Duration() < 0 {
		return fmt.Errorf("%s: http.timeout cannot be negative, got %s", where, h.Timeout.Duration())
	}

	return nil
}
