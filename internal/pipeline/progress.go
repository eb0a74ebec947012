package pipeline

// ProgressReporter provides callbacks for reporting extraction progress.
// Implementations can display progress bars, log messages, or remain silent.
// Callbacks are never invoked concurrently.
type ProgressReporter interface {
	// OnDiscoveryStart is called when file discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when file discovery finishes.
	OnDiscoveryComplete(files, skipped int)

	// OnFileProcessingStart is called before extracting files.
	OnFileProcessingStart(totalFiles int)

	// OnFileProcessed is called after each file is extracted.
	OnFileProcessed(relPath string)

	// OnComplete is called when the run completes successfully.
	OnComplete(report *Report)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnDiscoveryStart()                      {}
func (NoOpProgressReporter) OnDiscoveryComplete(files, skipped int) {}
func (NoOpProgressReporter) OnFileProcessingStart(totalFiles int)   {}
func (NoOpProgressReporter) OnFileProcessed(relPath string)         {}
func (NoOpProgressReporter) OnComplete(report *Report)              {}
