// Package pipeline runs discovery, extraction and persistence over a tree
// of source files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/anchors-aweigh/internal/discovery"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/source"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

// FileResult is the extraction result of one file.
type FileResult struct {
	Path     string              `json:"path" yaml:"path"`
	Language extractor.Language  `json:"language" yaml:"language"`
	Hash     string              `json:"hash" yaml:"hash"`
	Symbols  []extraction.Symbol `json:"symbols" yaml:"symbols"`
}

// Skipped is a file that was not extracted, with the reason.
type Skipped struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// Report summarizes a run.
type Report struct {
	RunID   string       `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Root    string       `json:"root" yaml:"root"`
	Files   []FileResult `json:"files" yaml:"files"`
	Skipped []Skipped    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Removed []string     `json:"removed,omitempty" yaml:"removed,omitempty"`
	// Unchanged counts files whose stored symbols were reused.
	Unchanged int           `json:"unchanged,omitempty" yaml:"unchanged,omitempty"`
	Duration  time.Duration `json:"-" yaml:"-"`
}

// SymbolCount returns the number of symbols across all files.
func (r *Report) SymbolCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Symbols)
	}
	return n
}

// Pipeline extracts discovered files with a bounded worker pool.
type Pipeline struct {
	discoverer *discovery.Discoverer
	sources    *source.List
	store      *storage.Store
	keepRuns   int
	force      bool
	workers    int
	progress   ProgressReporter
	logger     *slog.Logger
	progressMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists results. Without a store nothing is written.
func WithStore(s *storage.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithRunRetention prunes stored runs beyond the newest n after each run.
// Zero keeps every run.
func WithRunRetention(n int) Option {
	return func(p *Pipeline) { p.keepRuns = n }
}

// WithForce re-extracts every file even when its stored hash matches.
func WithForce(force bool) Option {
	return func(p *Pipeline) { p.force = force }
}

// WithWorkers bounds the number of files extracted concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithProgress sets the progress reporter.
func WithProgress(r ProgressReporter) Option {
	return func(p *Pipeline) { p.progress = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline.
func New(d *discovery.Discoverer, sources *source.List, opts ...Option) *Pipeline {
	p := &Pipeline{
		discoverer: d,
		sources:    sources,
		progress:   NoOpProgressReporter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// Run discovers files under paths (default the root) and extracts them.
// With a store, files whose contents match the stored hash keep their
// stored symbols, and a run over the whole root forgets stored files that
// were not discovered again.
func (p *Pipeline) Run(ctx context.Context, paths ...string) (*Report, error) {
	start := time.Now()

	p.report(func(r ProgressReporter) { r.OnDiscoveryStart() })
	files, skipped, err := p.discoverer.Discover(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	p.report(func(r ProgressReporter) { r.OnDiscoveryComplete(len(files), len(skipped)) })
	p.logger.Debug("discovery complete", "files", len(files), "skipped", len(skipped))

	report := &Report{Root: p.discoverer.Root()}
	for _, s := range skipped {
		report.Skipped = append(report.Skipped, Skipped{Path: s.Path, Reason: s.Reason})
	}

	if p.store != nil && len(paths) == 0 {
		if err := p.forgetMissing(report, files); err != nil {
			return nil, err
		}
	}

	if err := p.extract(ctx, report, files, true); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	p.report(func(r ProgressReporter) { r.OnComplete(report) })
	return report, nil
}

// Refresh re-extracts the given changed absolute paths. Paths that no
// longer exist are removed from the store; paths out of scope are ignored.
func (p *Pipeline) Refresh(ctx context.Context, paths []string) (*Report, error) {
	start := time.Now()
	report := &Report{Root: p.discoverer.Root()}

	var files []discovery.File
	for _, path := range paths {
		f, skip, ok := p.discoverer.Classify(path)
		switch {
		case skip != nil:
			report.Skipped = append(report.Skipped, Skipped{Path: skip.Path, Reason: skip.Reason})
		case ok:
			files = append(files, f)
		default:
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				rel, ok, err := p.remove(path)
				if err != nil {
					return nil, err
				}
				if ok {
					report.Removed = append(report.Removed, rel)
				}
			}
		}
	}
	slices.SortFunc(files, func(a, b discovery.File) int { return strings.Compare(a.RelPath, b.RelPath) })

	if err := p.extract(ctx, report, files, false); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// remove forgets a deleted file and returns its relative path. Files
// outside the root are ignored.
func (p *Pipeline) remove(path string) (string, bool, error) {
	p.sources.Invalidate(path)

	rel, err := filepath.Rel(p.discoverer.Root(), path)
	if err != nil || !filepath.IsAbs(path) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, nil
	}
	rel = filepath.ToSlash(rel)
	if p.store != nil {
		if err := p.store.DeleteFile(rel); err != nil {
			return "", false, err
		}
	}
	p.logger.Info("removed deleted file", "path", rel)
	return rel, true, nil
}

// forgetMissing deletes stored files that are not among files.
func (p *Pipeline) forgetMissing(report *Report, files []discovery.File) error {
	stored, err := p.store.Files()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.RelPath] = true
	}
	for _, rel := range stored {
		if present[rel] {
			continue
		}
		if err := p.store.DeleteFile(rel); err != nil {
			return err
		}
		p.sources.Invalidate(filepath.Join(p.discoverer.Root(), filepath.FromSlash(rel)))
		report.Removed = append(report.Removed, rel)
		p.logger.Info("forgot file no longer discovered", "path", rel)
	}
	return nil
}

// reuse returns the stored result of file when its contents still hash to
// the stored value.
func (p *Pipeline) reuse(file discovery.File) (*FileResult, bool, error) {
	contents, err := os.ReadFile(file.Path)
	if err != nil {
		// Reported by the extraction that follows.
		return nil, false, nil
	}
	hash := source.Hash(contents)
	stored, err := p.store.FileHash(file.RelPath)
	if err != nil {
		return nil, false, err
	}
	if stored != hash {
		return nil, false, nil
	}

	rows, err := p.store.Symbols(file.RelPath)
	if err != nil {
		return nil, false, err
	}
	symbols := make([]extraction.Symbol, len(rows))
	for i, row := range rows {
		symbols[i] = row.Symbol
	}
	return &FileResult{Path: file.RelPath, Language: file.Language, Hash: hash, Symbols: symbols}, true, nil
}

// extract runs the worker pool over files and fills report in file order.
// Progress callbacks fire only when track is set.
func (p *Pipeline) extract(ctx context.Context, report *Report, files []discovery.File, track bool) error {
	runID := ""
	if p.store != nil {
		id, err := p.store.BeginRun(report.Root)
		if err != nil {
			return err
		}
		runID = id
		report.RunID = id
	}

	if track {
		p.report(func(r ProgressReporter) { r.OnFileProcessingStart(len(files)) })
	}

	results := make([]*FileResult, len(files))
	failures := make([]*Skipped, len(files))
	reused := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if track {
				defer p.report(func(r ProgressReporter) { r.OnFileProcessed(file.RelPath) })
			}

			if p.store != nil && !p.force {
				res, ok, err := p.reuse(file)
				if err != nil {
					return err
				}
				if ok {
					results[i], reused[i] = res, true
					return nil
				}
			}

			src, err := p.sources.Get(file.Path)
			if err != nil {
				// Unreadable files are reported, not fatal.
				p.logger.Warn("failed to extract file", "path", file.RelPath, "error", err)
				failures[i] = &Skipped{Path: file.RelPath, Reason: err.Error()}
				return nil
			}

			if p.store != nil {
				err := p.store.WriteFile(runID, storage.FileRecord{
					Path:     file.RelPath,
					Language: string(src.Language),
					Hash:     src.Hash,
					Size:     file.Size,
					Symbols:  src.Symbols,
				})
				if err != nil {
					return err
				}
			}

			results[i] = &FileResult{Path: file.RelPath, Language: src.Language, Hash: src.Hash, Symbols: src.Symbols}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	report.Files = make([]FileResult, 0, len(files))
	for i := range files {
		switch {
		case results[i] != nil:
			report.Files = append(report.Files, *results[i])
			if reused[i] {
				report.Unchanged++
			}
		case failures[i] != nil:
			report.Skipped = append(report.Skipped, *failures[i])
		}
	}

	if p.store != nil {
		if err := p.store.FinishRun(runID, len(report.Files), report.SymbolCount(), len(report.Skipped)); err != nil {
			return err
		}
		p.logger.Debug("run stored", "run", runID, "files", len(report.Files), "unchanged", report.Unchanged)
		pruned, err := p.store.PruneRuns(p.keepRuns)
		if err != nil {
			// History is advisory; the results are already stored.
			p.logger.Warn("failed to prune runs", "error", err)
		} else if pruned > 0 {
			p.logger.Debug("pruned runs", "count", pruned, "keep", p.keepRuns)
		}
	}
	return nil
}

func (p *Pipeline) report(fn func(ProgressReporter)) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	fn(p.progress)
}
