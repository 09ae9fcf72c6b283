package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sambeau/iuql/config"
	"github.com/sambeau/iuql/pkg/iuql/iterator"
	"github.com/sambeau/iuql/pkg/iuql/query"
	"github.com/sambeau/iuql/pkg/iuql/repl"
	"github.com/sambeau/iuql/pkg/iuql/repo"
)

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query QUERY",
		Short: "Evaluate a query against everything in the repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			return a.runQuery(ctx, args[0], r, a.stdout)
		},
	}
	cmd.Flags().BoolVar(&a.jsonOut, "json", false, "print results as a JSON array")
	return cmd
}

func (a *app) runQuery(ctx context.Context, text string, r repo.Repository, w io.Writer) error {
	params, err := a.queryParams()
	if err != nil {
		return err
	}
	results, err := a.engine.Collect(ctx, text, source(ctx, r), params)
	if err != nil {
		return err
	}
	return printResults(w, results, a.jsonOut)
}

func (a *app) matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match PREDICATE",
		Short: "List the units a predicate accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := a.openRepository(ctx)
			if err != nil {
				return err
			}
			params, err := a.queryParams()
			if err != nil {
				return err
			}
			it, err := a.engine.Filter(ctx, args[0], source(ctx, r), params)
			if err != nil {
				return err
			}
			results, err := iterator.Collect(it)
			if err != nil {
				return err
			}
			return printResults(a.stdout, results, a.jsonOut)
		},
	}
	cmd.Flags().BoolVar(&a.jsonOut, "json", false, "print results as a JSON array")
	return cmd
}

func (a *app) fmtCmd() *cobra.Command {
	var predicate bool
	cmd := &cobra.Command{
		Use:   "fmt QUERY",
		Short: "Print the canonical form of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := query.ModeQuery
			if predicate {
				mode = query.ModePredicate
			}
			formatted, err := a.engine.Format(mode, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, formatted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&predicate, "predicate", false, "read the text as a predicate rooted at item")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var into string
	cmd := &cobra.Command{
		Use:   "import --into LOCATION FILE...",
		Short: "Copy units into a database or a repository document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if into == "" {
				return errors.New("--into is required")
			}

			var docs []*repo.Document
			total := 0
			for _, path := range args {
				m, err := repo.LoadFile(path)
				if err != nil {
					return err
				}
				docs = append(docs, &repo.Document{Name: path, Units: m.Units()})
				total += m.Len()
			}

			if !config.NewLocation(into).IsDatabase() {
				merged := &repo.Document{}
				for _, doc := range docs {
					merged.Units = append(merged.Units, doc.Units...)
				}
				if err := repo.WriteFile(into, merged); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "wrote %d units to %s\n", total, into)
				return nil
			}

			target, err := repo.Open(ctx, into, a.logger)
			if err != nil {
				return err
			}
			defer target.Close()
			db, ok := target.(*repo.SQL)
			if !ok {
				return fmt.Errorf("%s is not a database", into)
			}
			for _, doc := range docs {
				n, err := db.Import(ctx, doc.Units)
				if err != nil {
					return fmt.Errorf("%s: %w", doc.Name, err)
				}
				a.logger.Info("imported", "file", doc.Name, "units", n)
			}
			fmt.Fprintf(a.stdout, "imported %d units into %s\n", total, db.Location())
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "target: sqlite:PATH, postgres://..., mysql:DSN, or a .yaml/.json file")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch QUERY",
		Short: "Re-run a query whenever a repository file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			locations, err := a.locations()
			if err != nil {
				return err
			}
			var files []string
			for _, loc := range locations {
				if !loc.IsDatabase() {
					files = append(files, loc.DSN())
				}
			}
			if len(files) == 0 {
				return errors.New("watch needs at least one file repository")
			}

			var mu sync.Mutex
			runOnce := func() {
				mu.Lock()
				defer mu.Unlock()
				if err := a.watchPass(ctx, args[0], locations); err != nil {
					a.logger.Error("query failed", "err", err)
				}
				fmt.Fprintln(a.stdout, "---")
			}

			w, err := repo.NewWatcher(files, func(path string) {
				a.logger.Info("repository changed", "path", path)
				runOnce()
			}, a.logger)
			if err != nil {
				return err
			}
			defer w.Close()
			w.SetDebounce(a.cfg.Debounce())

			runOnce()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.jsonOut, "json", false, "print results as a JSON array")
	return cmd
}

// watchPass reopens the repositories so edited files are reread, then
// runs the query.
func (a *app) watchPass(ctx context.Context, text string, locations []config.Location) error {
	var opened repo.Composite
	defer func() { opened.Close() }()
	for _, loc := range locations {
		r, err := a.open(ctx, loc)
		if err != nil {
			return err
		}
		opened = append(opened, r)
	}
	return a.runQuery(ctx, text, opened, a.stdout)
}

func (a *app) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			locations, err := a.locations()
			if err != nil && len(a.repos) > 0 {
				return err
			}

			repos := make(map[string]repo.Repository)
			for i, loc := range locations {
				r, err := a.open(ctx, loc)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, r)
				repos[a.repoName(i, loc)] = r
			}

			params, err := a.queryParams()
			if err != nil {
				return err
			}
			repl.Start(a.stdout, repl.NewSession(ctx, a.engine, repos, params.Named), Version)
			return nil
		},
	}
}

// repoName is the shell name for the i'th resolved location.
func (a *app) repoName(i int, loc config.Location) string {
	if len(a.repos) == 0 {
		return a.cfg.Repositories[i].Name
	}
	if _, ok := a.cfg.Repository(a.repos[i]); ok {
		return a.repos[i]
	}
	return loc.String()
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "iuql %s (%s)\n", Version, Commit)
			return nil
		},
	}
}

// printResults writes one result per line, or a JSON array.
func printResults(w io.Writer, results []any, asJSON bool) error {
	if asJSON {
		if results == nil {
			results = []any{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, v := range results {
		if _, err := fmt.Fprintln(w, query.FormatValue(v)); err != nil {
			return err
		}
	}
	return nil
}
