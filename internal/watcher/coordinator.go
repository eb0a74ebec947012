package watcher

import (
	"context"
	"log/slog"
)

// WatchCoordinator routes debounced file changes from a FileWatcher to a
// Refresher.
type WatchCoordinator struct {
	files     FileWatcher
	refresher Refresher
	logger    *slog.Logger
	onRefresh func(changed []string, err error)
}

// NewWatchCoordinator creates a new watch coordinator.
func NewWatchCoordinator(files FileWatcher, refresher Refresher, logger *slog.Logger) *WatchCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchCoordinator{
		files:     files,
		refresher: refresher,
		logger:    logger,
	}
}

// OnRefresh registers a hook invoked after every refresh attempt.
func (c *WatchCoordinator) OnRefresh(fn func(changed []string, err error)) {
	c.onRefresh = fn
}

// Start begins routing events to the refresher.
// Blocks until context is cancelled.
func (c *WatchCoordinator) Start(ctx context.Context) error {
	filesErr := make(chan error, 1)

	go func() {
		if err := c.files.Start(ctx, func(files []string) { c.handleFileChange(ctx, files) }); err != nil {
			filesErr <- err
		}
	}()

	select {
	case err := <-filesErr:
		c.cleanup()
		return err
	case <-ctx.Done():
		c.cleanup()
		return ctx.Err()
	}
}

// cleanup stops the file watcher.
func (c *WatchCoordinator) cleanup() {
	if err := c.files.Stop(); err != nil {
		c.logger.Warn("file watcher stop failed", "error", err)
	}
}

// handleFileChange processes file change events from the file watcher.
func (c *WatchCoordinator) handleFileChange(ctx context.Context, files []string) {
	if len(files) == 0 {
		return
	}

	c.logger.Info("processing file changes", "count", len(files))

	// Refreshing must not race with a second batch of events.
	c.files.Pause()
	err := c.refresh(ctx, files)
	c.files.Resume()

	if c.onRefresh != nil {
		c.onRefresh(files, err)
	}
}

func (c *WatchCoordinator) refresh(ctx context.Context, files []string) error {
	report, err := c.refresher.Refresh(ctx, files)
	if err != nil {
		c.logger.Error("refresh failed", "error", err)
		return err
	}

	c.logger.Info("refreshed",
		"files", len(report.Files),
		"symbols", report.SymbolCount(),
		"removed", len(report.Removed),
		"skipped", len(report.Skipped))
	return nil
}
