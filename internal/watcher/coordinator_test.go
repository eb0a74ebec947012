package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/pipeline"
)

// Test Plan for WatchCoordinator:
// - File change event triggers Refresh() with the changed paths
// - The watcher is paused while a refresh runs and resumed afterwards
// - Empty change lists never reach the refresher
// - Refresh errors are logged and do not stop the coordinator
// - file watcher.Start() failure is propagated
// - Context cancellation stops the watcher; Stop errors don't panic

// mockFileWatcher implements FileWatcher for testing.
type mockFileWatcher struct {
	startErr      error
	stopErr       error
	startCallback func(files []string)
	started       chan struct{}
	pauseCount    int
	resumeCount   int
	stopCalled    bool
	mu            sync.Mutex
}

func newMockFileWatcher() *mockFileWatcher {
	return &mockFileWatcher{started: make(chan struct{})}
}

func (m *mockFileWatcher) Start(ctx context.Context, callback func(files []string)) error {
	m.mu.Lock()
	m.startCallback = callback
	startErr := m.startErr
	m.mu.Unlock()

	if startErr != nil {
		return startErr
	}
	close(m.started)

	// Block until context done (simulates watcher behavior)
	<-ctx.Done()
	return nil
}

func (m *mockFileWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return m.stopErr
}

func (m *mockFileWatcher) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCount++
}

func (m *mockFileWatcher) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCount++
}

func (m *mockFileWatcher) triggerFileChange(files []string) {
	m.mu.Lock()
	callback := m.startCallback
	m.mu.Unlock()

	if callback != nil {
		callback(files)
	}
}

// mockRefresher implements Refresher for testing.
type mockRefresher struct {
	err         error
	calls       [][]string
	pausedDepth []int
	files       *mockFileWatcher
	mu          sync.Mutex
}

func (m *mockRefresher) Refresh(ctx context.Context, paths []string) (*pipeline.Report, error) {
	m.files.mu.Lock()
	depth := m.files.pauseCount - m.files.resumeCount
	m.files.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, paths)
	m.pausedDepth = append(m.pausedDepth, depth)

	if m.err != nil {
		return nil, m.err
	}
	report := &pipeline.Report{}
	for _, p := range paths {
		report.Files = append(report.Files, pipeline.FileResult{
			Path:    p,
			Symbols: []extraction.Symbol{{Path: []string{"A"}, Kind: extraction.KindClass, Anchor: "a"}},
		})
	}
	return report, nil
}

func (m *mockRefresher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Helper to create coordinator with mocks
func setupCoordinator() (*WatchCoordinator, *mockFileWatcher, *mockRefresher) {
	files := newMockFileWatcher()
	refresher := &mockRefresher{files: files}
	return NewWatchCoordinator(files, refresher, nil), files, refresher
}

// startCoordinator runs Start in the background and waits for the file
// watcher to be running.
func startCoordinator(t *testing.T, coord *WatchCoordinator, files *mockFileWatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(ctx) }()

	select {
	case <-files.started:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("file watcher never started")
	}
	return cancel, errCh
}

func TestWatchCoordinator_FileChangeTriggersRefresh(t *testing.T) {
	t.Parallel()

	coord, files, refresher := setupCoordinator()
	done := make(chan []string, 1)
	coord.OnRefresh(func(changed []string, err error) {
		assert.NoError(t, err)
		done <- changed
	})

	cancel, errCh := startCoordinator(t, coord, files)
	defer cancel()

	files.triggerFileChange([]string{"/repo/a.rb", "/repo/b.rb"})
	select {
	case changed := <-done:
		assert.Equal(t, []string{"/repo/a.rb", "/repo/b.rb"}, changed)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh hook not called")
	}

	assert.Equal(t, 1, refresher.callCount())
	assert.Equal(t, []int{1}, refresher.pausedDepth, "watcher paused during refresh")

	files.mu.Lock()
	assert.Equal(t, 1, files.pauseCount)
	assert.Equal(t, 1, files.resumeCount)
	files.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWatchCoordinator_EmptyFileChangeList(t *testing.T) {
	t.Parallel()

	coord, files, refresher := setupCoordinator()
	cancel, errCh := startCoordinator(t, coord, files)

	files.triggerFileChange(nil)
	files.triggerFileChange([]string{})

	cancel()
	<-errCh
	assert.Zero(t, refresher.callCount())
}

func TestWatchCoordinator_RefreshErrorDoesNotCrash(t *testing.T) {
	t.Parallel()

	coord, files, refresher := setupCoordinator()
	refresher.err = errors.New("disk on fire")

	errs := make(chan error, 2)
	coord.OnRefresh(func(_ []string, err error) { errs <- err })

	cancel, errCh := startCoordinator(t, coord, files)
	defer cancel()

	files.triggerFileChange([]string{"/repo/a.rb"})
	files.triggerFileChange([]string{"/repo/b.rb"})

	for range 2 {
		select {
		case err := <-errs:
			assert.EqualError(t, err, "disk on fire")
		case <-time.After(2 * time.Second):
			t.Fatal("refresh hook not called")
		}
	}
	assert.Equal(t, 2, refresher.callCount())

	files.mu.Lock()
	assert.Equal(t, 2, files.resumeCount, "resumed even on error")
	files.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWatchCoordinator_FileWatcherStartError(t *testing.T) {
	t.Parallel()

	coord, files, _ := setupCoordinator()
	files.startErr = errors.New("no inotify")

	err := coord.Start(context.Background())
	require.EqualError(t, err, "no inotify")

	files.mu.Lock()
	defer files.mu.Unlock()
	assert.True(t, files.stopCalled)
}

func TestWatchCoordinator_CleanupErrorsDontPanic(t *testing.T) {
	t.Parallel()

	coord, files, _ := setupCoordinator()
	files.stopErr = errors.New("stop failed")

	cancel, errCh := startCoordinator(t, coord, files)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	files.mu.Lock()
	defer files.mu.Unlock()
	assert.True(t, files.stopCalled)
}
