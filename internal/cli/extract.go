package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/config"
	"github.com/mvp-joe/anchors-aweigh/internal/discovery"
	"github.com/mvp-joe/anchors-aweigh/internal/pipeline"
	"github.com/mvp-joe/anchors-aweigh/internal/source"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
	"github.com/mvp-joe/anchors-aweigh/internal/watcher"
)

type extractOptions struct {
	*rootOptions
	quiet  bool
	watch  bool
	force  bool
	format string
	output string
	dbPath string
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "extract [paths...]",
		Short: "Extract symbols and anchors from source files",
		Long: `Extract discovers source files under the project root (or the given
paths), extracts their documented symbols concurrently and prints a report.

Examples:
  # Extract the current directory and print JSON
  anchors extract

  # Extract two files as YAML
  anchors extract lib/foo.rb lib/bar.rb --format yaml

  # Persist results and keep them current while files change
  anchors extract --db .anchors/anchors.db --watch
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable progress bars and non-error output")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Watch for file changes and re-extract incrementally")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-extract files whose stored hash is unchanged")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: json or yaml (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database for results, or \"auto\" for the user cache (default from config)")
	return cmd
}

// app holds the collaborators wired from configuration.
type app struct {
	root      string
	cfg       *config.Config
	matcher   *discovery.Matcher
	pipeline  *pipeline.Pipeline
	sources   *source.List
	db        *sql.DB
	store     *storage.Store
	closeFunc func()
}

func (a *app) Close() {
	if a.closeFunc != nil {
		a.closeFunc()
	}
}

func newApp(ctx context.Context, opts *extractOptions) (*app, error) {
	root, cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	logger := opts.log()

	ex, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}
	matcher, err := discovery.NewMatcher(cfg.Paths.Include, cfg.Paths.Ignore)
	if err != nil {
		return nil, err
	}
	disc, err := discovery.New(root, matcher,
		discovery.WithRegistry(ex.Registry()),
		discovery.WithMaxFileSize(cfg.Extract.MaxFileSize),
		discovery.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	sources, err := source.NewList(cfg.Cache.Size, source.WithExtractor(ex), source.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, matcher: matcher, sources: sources}
	closers := []func(){sources.Close}
	a.closeFunc = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Extract.Workers),
		pipeline.WithLogger(logger),
		pipeline.WithProgress(NewCLIProgressReporter(opts.ErrWriter(), opts.quiet)),
	}

	dbPath, err := databasePath(ctx, root, cfg, opts.dbPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		closers = append(closers, func() { db.Close() })
		a.db = db
		a.store = storage.NewStore(db)
		pipeOpts = append(pipeOpts,
			pipeline.WithStore(a.store),
			pipeline.WithRunRetention(cfg.Storage.KeepRuns),
			pipeline.WithForce(opts.force))
		logger.Debug("persisting results", "db", dbPath)
	}

	a.pipeline = pipeline.New(disc, sources, pipeOpts...)
	return a, nil
}

func runExtract(cmd *cobra.Command, opts *extractOptions, args []string) error {
	// Cancel on Ctrl+C
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	format := opts.format
	if format == "" {
		format = a.cfg.Output.Format
	}

	report, err := a.pipeline.Run(ctx, args...)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction cancelled")
		}
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeFormatted(out, format, report); err != nil {
		return err
	}

	if !opts.watch {
		return nil
	}
	return runWatch(ctx, opts, a)
}

// runWatch re-extracts changed files until ctx is cancelled.
func runWatch(ctx context.Context, opts *extractOptions, a *app) error {
	logger := opts.log()
	fw, err := watcher.NewFileWatcher([]string{a.root},
		watcher.WithFilter(func(path string) bool {
			rel, err := filepath.Rel(a.root, path)
			return err == nil && a.matcher.Match(filepath.ToSlash(rel))
		}),
		watcher.WithSkipDir(func(path string) bool {
			rel, err := filepath.Rel(a.root, path)
			return err == nil && a.matcher.Ignored(filepath.ToSlash(rel))
		}),
		watcher.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	coord := watcher.NewWatchCoordinator(fw, a.pipeline, logger)
	if !opts.quiet {
		fmt.Fprintln(opts.ErrWriter(), "Watching for changes (Ctrl+C to stop)...")
	}
	if err := coord.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch mode failed: %w", err)
	}
	if !opts.quiet {
		fmt.Fprintln(opts.ErrWriter(), "Watch mode stopped")
	}
	return nil
}
