package watcher

import (
	"context"

	"github.com/mvp-joe/anchors-aweigh/internal/pipeline"
)

// FileWatcher monitors source files for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching source directories, calling callback with debounced file changes.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// Refresher re-extracts changed files. *pipeline.Pipeline implements it.
type Refresher interface {
	Refresh(ctx context.Context, paths []string) (*pipeline.Report, error)
}
