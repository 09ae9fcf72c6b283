package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sambeau/iuql/config"
	perrors "github.com/sambeau/iuql/pkg/iuql/errors"
	"github.com/sambeau/iuql/pkg/iuql/query"
	"github.com/sambeau/iuql/pkg/iuql/repl"
	"github.com/sambeau/iuql/pkg/iuql/repo"
)

// Version information, set at build time via -ldflags
var (
	Version = "dev"     // -X main.Version=$(git describe --tags --always)
	Commit  = "unknown" // -X main.Commit=$(git rev-parse --short HEAD)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		var qe *perrors.QueryError
		if errors.As(err, &qe) {
			fmt.Fprintln(os.Stderr, qe.PrettyString())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	a := &app{stdout: stdout, stderr: stderr, getenv: getenv}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// app holds what every command needs once flags and config are read.
type app struct {
	stdout, stderr io.Writer
	getenv         func(string) string

	configPath string
	logLevel   string
	logFormat  string
	repos      []string
	args       []string
	params     []string
	jsonOut    bool

	cfg     *config.Config
	logger  *log.Logger
	engine  *query.Engine
	closers []io.Closer
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "iuql",
		Short: "Query installable-unit repositories",
		Long: `iuql evaluates installable-unit queries against repositories stored as
YAML or JSON documents (optionally gzip or zstd compressed) or in a
sqlite, postgres or mysql database.

Examples:
  iuql query -r units.yaml 'everything.latest()'
  iuql match -r units.yaml 'id ~= /org.example.*/'
  iuql query -r units.yaml --arg '[1.0,2.0)' 'everything.select(x | x.version ~= range($0))'
  iuql import --into sqlite:units.db units.yaml
  iuql repl`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: $IUQL_CONFIG, ./iuql.yaml or ~/.config/iuql/iuql.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text, json or logfmt")
	flags.StringArrayVarP(&a.repos, "repo", "r", nil, "repository name from the config, or a location (repeatable)")
	flags.StringArrayVar(&a.args, "arg", nil, "positional query parameter $0, $1, ... (repeatable)")
	flags.StringArrayVarP(&a.params, "param", "p", nil, "named query parameter NAME=VALUE (repeatable)")

	root.AddCommand(a.queryCmd(), a.matchCmd(), a.fmtCmd(), a.importCmd(), a.watchCmd(), a.replCmd(), a.versionCmd())
	return root
}

// setup loads the config, applies flag overrides, and builds the logger
// and query engine.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath, a.getenv)
	if errors.Is(err, config.ErrNotFound) {
		cfg, err = config.Defaults(), nil
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := newLogger(cfg.Logging, a.stdout, a.stderr)
	if err != nil {
		return err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.logger = logger

	a.engine, err = query.New(query.Options{CacheSize: cfg.CacheSize, Logger: logger})
	return err
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// newLogger builds the logger described by cfg. The returned closer is
// non-nil when logs go to a file.
func newLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}

	var formatter log.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}

	var w io.Writer
	var closer io.Closer
	switch cfg.Output {
	case "", "stderr":
		w = stderr
	case "stdout":
		w = stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: formatter != log.TextFormatter,
		Prefix:          "iuql",
	})
	return logger, closer, nil
}

// openRepository opens the repositories named by --repo, or every
// configured repository when none is named. Several repositories are
// queried as one.
func (a *app) openRepository(ctx context.Context) (repo.Repository, error) {
	locations, err := a.locations()
	if err != nil {
		return nil, err
	}

	var opened repo.Composite
	for _, loc := range locations {
		r, err := a.open(ctx, loc)
		if err != nil {
			opened.Close()
			return nil, err
		}
		opened = append(opened, r)
	}
	a.closers = append(a.closers, opened)

	if len(opened) == 1 {
		return opened[0], nil
	}
	return opened, nil
}

// open opens one repository. Database errors name the location with its
// password redacted.
func (a *app) open(ctx context.Context, loc config.Location) (repo.Repository, error) {
	a.logger.Debug("opening repository", "location", loc)
	r, err := repo.Open(ctx, loc.DSN(), a.logger)
	if err != nil {
		if loc.IsDatabase() {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		return nil, err
	}
	return r, nil
}

// locations resolves --repo values against the config.
func (a *app) locations() ([]config.Location, error) {
	if len(a.repos) == 0 {
		if len(a.cfg.Repositories) == 0 {
			return nil, errors.New("no repositories configured; name one with --repo")
		}
		locs := make([]config.Location, len(a.cfg.Repositories))
		for i, r := range a.cfg.Repositories {
			locs[i] = r.Location
		}
		return locs, nil
	}

	locs := make([]config.Location, len(a.repos))
	for i, name := range a.repos {
		if r, ok := a.cfg.Repository(name); ok {
			locs[i] = r.Location
		} else {
			locs[i] = config.NewLocation(name)
		}
	}
	return locs, nil
}

// source returns what a query runs against. A single SQL repository is
// streamed as it is read.
func source(ctx context.Context, r repo.Repository) any {
	if s, ok := r.(*repo.SQL); ok {
		return s.Rows(ctx)
	}
	return r
}

// queryParams merges config parameters with --arg and --param flags.
func (a *app) queryParams() (query.Params, error) {
	named := make(map[string]any, len(a.cfg.Parameters)+len(a.params)+1)
	for k, v := range a.cfg.Parameters {
		named[k] = v
	}
	if a.cfg.Locale != "" {
		named["locale"] = a.cfg.Locale
	}
	for _, p := range a.params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return query.Params{}, fmt.Errorf("--param %q: want NAME=VALUE", p)
		}
		named[name] = repl.ParseValue(value)
	}

	positional := make([]any, len(a.args))
	for i, v := range a.args {
		positional[i] = repl.ParseValue(v)
	}
	return query.Params{Positional: positional, Named: named}, nil
}
