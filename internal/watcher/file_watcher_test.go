package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileWatcher:
// - NewFileWatcher creates watcher successfully with valid directories
// - NewFileWatcher returns error with invalid directory
// - Multiple file changes are batched into one sorted callback
// - Debouncing works (rapid changes coalesced into single callback)
// - Pause/Resume behavior (accumulate during pause, fire on resume)
// - File deleted triggers callback
// - Directory added triggers recursive watch
// - Skipped directories are never watched
// - Filter (only accepted files trigger callback)
// - Stop() cleanup and context cancellation
// - Concurrent Stop() calls are safe

const testDebounce = 150 * time.Millisecond

func rubyOnly(path string) bool {
	return strings.HasSuffix(path, ".rb")
}

// collector records callback batches.
type collector struct {
	mu      sync.Mutex
	batches [][]string
	called  chan struct{}
}

func newCollector() *collector {
	return &collector{called: make(chan struct{}, 16)}
}

func (c *collector) callback(files []string) {
	c.mu.Lock()
	c.batches = append(c.batches, files)
	c.mu.Unlock()
	c.called <- struct{}{}
}

func (c *collector) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.called:
	case <-time.After(timeout):
		t.Fatal("Callback not called after timeout")
	}
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func startWatcher(t *testing.T, dir string, opts ...Option) (FileWatcher, *collector) {
	t.Helper()
	opts = append([]Option{WithFilter(rubyOnly), WithDebounce(testDebounce)}, opts...)
	watcher, err := NewFileWatcher([]string{dir}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Stop() })

	c := newCollector()
	require.NoError(t, watcher.Start(context.Background(), c.callback))
	// Wait for watcher to initialize
	time.Sleep(100 * time.Millisecond)
	return watcher, c
}

func TestNewFileWatcher_Success(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{t.TempDir()}, WithFilter(rubyOnly))
	require.NoError(t, err)
	require.NotNil(t, watcher)
	require.NoError(t, watcher.Stop())
}

func TestNewFileWatcher_InvalidDirectory(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{filepath.Join(t.TempDir(), "nonexistent")})
	assert.Error(t, err)
	assert.Nil(t, watcher)
}

func TestFileWatcher_MultipleFileChanges(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	_, c := startWatcher(t, tempDir)

	// Create multiple files rapidly (within debounce window)
	file1 := filepath.Join(tempDir, "c.rb")
	file2 := filepath.Join(tempDir, "a.rb")
	file3 := filepath.Join(tempDir, "b.rb")
	require.NoError(t, os.WriteFile(file1, []byte("class C; end"), 0644))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(file2, []byte("class A; end"), 0644))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(file3, []byte("class B; end"), 0644))

	c.wait(t, 2*time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{file2, file3, file1}, c.batches[0], "one sorted batch")
}

func TestFileWatcher_Debouncing(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	_, c := startWatcher(t, tempDir)

	// Modify same file rapidly (should coalesce into one callback)
	testFile := filepath.Join(tempDir, "test.rb")
	for i := range 3 {
		require.NoError(t, os.WriteFile(testFile, []byte("# v"+string(rune('1'+i))), 0644))
		time.Sleep(30 * time.Millisecond)
	}

	c.wait(t, 2*time.Second)
	// Wait a bit more to ensure no additional callbacks
	time.Sleep(3 * testDebounce)

	assert.Equal(t, 1, c.count(), "Should have exactly one callback due to debouncing")
	assert.Equal(t, []string{testFile}, c.all(), "File should appear only once despite multiple modifications")
}

func TestFileWatcher_PauseResume(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	watcher, c := startWatcher(t, tempDir)

	watcher.Pause()

	pausedFile := filepath.Join(tempDir, "paused.rb")
	require.NoError(t, os.WriteFile(pausedFile, []byte("X = 1"), 0644))

	// Wait beyond debounce period - callback should NOT fire
	time.Sleep(4 * testDebounce)
	assert.Zero(t, c.count(), "No callbacks should fire while paused")

	// Resume fires the accumulated events immediately
	watcher.Resume()
	c.wait(t, 500*time.Millisecond)
	assert.Contains(t, c.all(), pausedFile)
}

func TestFileWatcher_FileDeleted(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "gone.rb")
	require.NoError(t, os.WriteFile(testFile, []byte("class Gone; end"), 0644))

	_, c := startWatcher(t, tempDir)
	require.NoError(t, os.Remove(testFile))

	c.wait(t, 2*time.Second)
	assert.Equal(t, []string{testFile}, c.all())
}

func TestFileWatcher_DirectoryAdded(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	_, c := startWatcher(t, tempDir)

	newDir := filepath.Join(tempDir, "lib")
	require.NoError(t, os.Mkdir(newDir, 0755))
	// Wait for directory to be added to watcher
	time.Sleep(200 * time.Millisecond)

	fileInNewDir := filepath.Join(newDir, "nested.rb")
	require.NoError(t, os.WriteFile(fileInNewDir, []byte("module Nested; end"), 0644))

	c.wait(t, 2*time.Second)
	assert.Contains(t, c.all(), fileInNewDir)
	assert.NotContains(t, c.all(), newDir, "directories are not reported")
}

func TestFileWatcher_SkipDir(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	vendor := filepath.Join(tempDir, "vendor")
	require.NoError(t, os.Mkdir(vendor, 0755))

	_, c := startWatcher(t, tempDir, WithSkipDir(func(path string) bool {
		return filepath.Base(path) == "vendor"
	}))

	vendored := filepath.Join(vendor, "dep.rb")
	kept := filepath.Join(tempDir, "app.rb")
	require.NoError(t, os.WriteFile(vendored, []byte("class Dep; end"), 0644))
	require.NoError(t, os.WriteFile(kept, []byte("class App; end"), 0644))

	c.wait(t, 2*time.Second)
	time.Sleep(2 * testDebounce)
	assert.Contains(t, c.all(), kept)
	assert.NotContains(t, c.all(), vendored)
}

func TestFileWatcher_Filter(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	_, c := startWatcher(t, tempDir)

	rbFile := filepath.Join(tempDir, "test.rb")
	txtFile := filepath.Join(tempDir, "notes.txt")
	pyFile := filepath.Join(tempDir, "tool.py")
	require.NoError(t, os.WriteFile(txtFile, []byte("notes"), 0644))
	require.NoError(t, os.WriteFile(pyFile, []byte("x = 1"), 0644))
	require.NoError(t, os.WriteFile(rbFile, []byte("class T; end"), 0644))

	c.wait(t, 2*time.Second)
	assert.Contains(t, c.all(), rbFile)
	assert.NotContains(t, c.all(), txtFile)
	assert.NotContains(t, c.all(), pyFile)
}

func TestFileWatcher_StopCleanup(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background(), func([]string) {}))
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, watcher.Stop())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// Calling Stop() again should be safe
	require.NoError(t, watcher.Stop())
}

func TestFileWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, watcher.Stop())
}

func TestFileWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{t.TempDir()})
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, watcher.Start(ctx, func([]string) {}))
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	cancel()

	fw := watcher.(*fileWatcher)
	<-fw.doneCh
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFileWatcher_ConcurrentStop(t *testing.T) {
	t.Parallel()

	watcher, err := NewFileWatcher([]string{t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, watcher.Start(context.Background(), func([]string) {}))
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Stop()
		}()
	}
	// Should not panic or deadlock
	wg.Wait()
}
