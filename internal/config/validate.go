package config

import (
	"errors"
	"fmt"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidPattern indicates a path pattern that does not compile
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrEmptyInclude indicates that no include patterns are configured
	ErrEmptyInclude = errors.New("empty include patterns")

	// ErrInvalidFileSize indicates a non-positive max file size
	ErrInvalidFileSize = errors.New("invalid max file size")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidAttributeDocs indicates an unknown attribute doc policy
	ErrInvalidAttributeDocs = errors.New("invalid attribute doc policy")

	// ErrInvalidFormat indicates an unsupported output format
	ErrInvalidFormat = errors.New("invalid output format")

	// ErrInvalidCacheSize indicates a non-positive cache size
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidKeepRuns indicates a negative run retention
	ErrInvalidKeepRuns = errors.New("invalid run retention")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}

	if err := validateExtract(&cfg.Extract); err != nil {
		errs = append(errs, err)
	}

	if err := validateOutput(&cfg.Output); err != nil {
		errs = append(errs, err)
	}

	if cfg.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidCacheSize, cfg.Cache.Size))
	}

	if cfg.Storage.KeepRuns < 0 {
		errs = append(errs, fmt.Errorf("%w: keep_runs cannot be negative, got %d", ErrInvalidKeepRuns, cfg.Storage.KeepRuns))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validatePaths(cfg *PathsConfig) error {
	var errs []error

	if len(cfg.Include) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one include pattern required", ErrEmptyInclude))
	}

	for _, pattern := range append(append([]string(nil), cfg.Include...), cfg.Ignore...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateExtract(cfg *ExtractConfig) error {
	var errs []error

	if cfg.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_size must be positive, got %d", ErrInvalidFileSize, cfg.MaxFileSize))
	}

	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	switch cfg.AttributeDocs {
	case "", "broadcast", "first", "first_only":
	default:
		errs = append(errs, fmt.Errorf("%w: must be 'broadcast' or 'first', got '%s'", ErrInvalidAttributeDocs, cfg.AttributeDocs))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateOutput(cfg *OutputConfig) error {
	switch cfg.Format {
	case "json", "yaml":
		return nil
	}
	return fmt.Errorf("%w: must be 'json' or 'yaml', got '%s'", ErrInvalidFormat, cfg.Format)
}

// joinErrors combines multiple errors into one. errors.Is still matches
// every sentinel.
func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("validation failed: %w", errors.Join(errs...))
}
