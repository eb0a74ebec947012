package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/anchors-aweigh/internal/discovery"
	"github.com/mvp-joe/anchors-aweigh/internal/source"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

// Test Plan for Pipeline:
// - Run extracts every discovered file, in path order, with any worker count
// - Results are persisted when a store is configured, with run totals
// - Oversize files appear in the report as skipped
// - Progress callbacks fire once per file
// - Unchanged files keep their stored symbols; --force style runs re-extract them
// - A whole-root run forgets stored files that were not discovered again
// - Run retention prunes stored runs that no longer own files
// - Refresh re-extracts changed files and removes deleted ones
// - A cancelled context aborts the run

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func setup(t *testing.T, root string, opts ...Option) *Pipeline {
	t.Helper()
	m, err := discovery.NewMatcher([]string{"**/*.rb", "**/*.py"}, []string{"vendor/**"})
	require.NoError(t, err)
	d, err := discovery.New(root, m, discovery.WithMaxFileSize(1024))
	require.NoError(t, err)
	sources, err := source.NewList(64)
	require.NoError(t, err)
	t.Cleanup(sources.Close)
	return New(d, sources, opts...)
}

type recordingProgress struct {
	total     int
	processed []string
	completed bool
}

func (r *recordingProgress) OnDiscoveryStart()            {}
func (r *recordingProgress) OnDiscoveryComplete(_, _ int) {}
func (r *recordingProgress) OnFileProcessingStart(n int)  { r.total = n }
func (r *recordingProgress) OnFileProcessed(relPath string) {
	r.processed = append(r.processed, relPath)
}
func (r *recordingProgress) OnComplete(*Report) { r.completed = true }

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "lib/a.rb", "module A\n  class B\n  end\nend\n")
	writeFile(t, root, "lib/c.rb", "C = 1\n")
	writeFile(t, root, "tools/d.py", "class D:\n    pass\n")
	writeFile(t, root, "vendor/e.rb", "class E\nend\n")
	big := ""
	for range 200 {
		big += "# padding\n"
	}
	writeFile(t, root, "lib/big.rb", big)

	for _, workers := range []int{1, 4} {
		progress := &recordingProgress{}
		p := setup(t, root, WithWorkers(workers), WithProgress(progress))

		report, err := p.Run(context.Background())
		require.NoError(t, err)

		var paths []string
		for _, f := range report.Files {
			paths = append(paths, f.Path)
		}
		assert.Equal(t, []string{"lib/a.rb", "lib/c.rb", "tools/d.py"}, paths)
		assert.Equal(t, 4, report.SymbolCount())
		assert.Equal(t, "a/b", report.Files[0].Symbols[1].Anchor)
		require.Len(t, report.Skipped, 1)
		assert.Equal(t, "lib/big.rb", report.Skipped[0].Path)
		assert.Empty(t, report.RunID)

		assert.Equal(t, 3, progress.total)
		assert.ElementsMatch(t, paths, progress.processed)
		assert.True(t, progress.completed)
	}
}

func TestPipeline_RunPersists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.rb", "class A\n  def run; end\nend\n")
	writeFile(t, root, "b.rb", "class A\nend\n")

	store := storage.NewStore(storage.NewTestDB(t))
	p := setup(t, root, WithStore(store))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	run, err := store.Run(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.FileCount)
	assert.Equal(t, 3, run.SymbolCount)

	a, err := store.Lookup("a.rb#a/run")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Line)
	_, err = store.Lookup("b.rb#a")
	require.NoError(t, err)
}

func TestPipeline_RunRetention(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.rb", "class A\nend\n")

	store := storage.NewStore(storage.NewTestDB(t))
	p := setup(t, root, WithStore(store), WithRunRetention(1))

	var ids []string
	for range 3 {
		report, err := p.Run(context.Background())
		require.NoError(t, err)
		ids = append(ids, report.RunID)
	}

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2, "the first run still owns the unchanged file")
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[1].ID)

	writeFile(t, root, "a.rb", "class A\n  B = 1\nend\n")
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	runs, err = store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1, "every older run lost its files to the newest one")
	assert.Equal(t, report.RunID, runs[0].ID)
}

func TestPipeline_RunReusesUnchanged(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.rb", "class A\n  def run; end\nend\n")
	writeFile(t, root, "b.rb", "class B\nend\n")

	store := storage.NewStore(storage.NewTestDB(t))
	p := setup(t, root, WithStore(store))
	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, first.Unchanged)

	writeFile(t, root, "b.rb", "class B\n  C = 2\nend\n")
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Unchanged)
	require.Len(t, second.Files, 2)
	assert.Equal(t, first.Files[0], second.Files[0], "a.rb comes back from the store unchanged")
	assert.Len(t, second.Files[1].Symbols, 2)

	forced, err := setup(t, root, WithStore(store), WithForce(true)).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, forced.Unchanged)
	assert.Equal(t, second.Files, forced.Files)
}

func TestPipeline_RunForgetsMissing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.rb", "class A\nend\n")
	bPath := writeFile(t, root, "b.rb", "class B\nend\n")

	store := storage.NewStore(storage.NewTestDB(t))
	p := setup(t, root, WithStore(store))
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(bPath))
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.rb"}, report.Removed)

	files, err := store.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rb"}, files)
}

func TestPipeline_Refresh(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	aPath := writeFile(t, root, "a.rb", "class A\nend\n")
	bPath := writeFile(t, root, "b.rb", "class B\nend\n")
	vendored := writeFile(t, root, "vendor/v.rb", "class V\nend\n")

	store := storage.NewStore(storage.NewTestDB(t))
	p := setup(t, root, WithStore(store))
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.rb", "class A\n  X = 1\nend\n")
	require.NoError(t, os.Remove(bPath))

	report, err := p.Refresh(context.Background(), []string{bPath, aPath, vendored})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "a.rb", report.Files[0].Path)
	assert.Equal(t, []string{"b.rb"}, report.Removed)

	_, err = store.Lookup("a.rb#a/x")
	require.NoError(t, err)
	_, err = store.Lookup("b.rb#b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	files, err := store.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rb"}, files)
}

func TestPipeline_Cancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.rb", "class A\nend\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := setup(t, root).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
