package config

import "runtime"

// Config represents the complete anchors configuration.
// It can be loaded from .anchors/config.yml with environment variable overrides.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
}

// PathsConfig defines which files to extract and which to ignore.
type PathsConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns for source files
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to ignore
}

// ExtractConfig tunes symbol extraction.
type ExtractConfig struct {
	// MaxFileSize is in bytes; larger files are skipped before extraction.
	MaxFileSize int64 `yaml:"max_file_size" mapstructure:"max_file_size"`

	// Workers bounds concurrent extractions.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// AttributeDocs is "broadcast" or "first".
	AttributeDocs string `yaml:"attribute_docs" mapstructure:"attribute_docs"`
}

// OutputConfig defines how reports are written.
type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // "json" or "yaml"
}

// StorageConfig defines where extraction runs are persisted.
type StorageConfig struct {
	// Path is the SQLite file, relative to the root. Empty disables
	// persistence; "auto" places it under the user cache directory.
	Path string `yaml:"path" mapstructure:"path"`

	// KeepRuns bounds the run history; zero keeps every run.
	KeepRuns int `yaml:"keep_runs" mapstructure:"keep_runs"`
}

// CacheConfig sizes the in-memory source cache.
type CacheConfig struct {
	Size int `yaml:"size" mapstructure:"size"` // max cached files
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{
				"**/*.rb",
				"**/*.rake",
				"**/*.gemspec",
				"**/Rakefile",
				"**/Gemfile",
				"**/*.py",
			},
			Ignore: []string{
				".git/**",
				".anchors/**",
				"vendor/**",
				"node_modules/**",
				"tmp/**",
				"__pycache__/**",
			},
		},
		Extract: ExtractConfig{
			MaxFileSize:   1 << 20,
			Workers:       runtime.NumCPU(),
			AttributeDocs: "broadcast",
		},
		Output: OutputConfig{
			Format: "json",
		},
		Storage: StorageConfig{
			Path:     "", // persistence is opt-in
			KeepRuns: 20,
		},
		Cache: CacheConfig{
			Size: 1000,
		},
	}
}
