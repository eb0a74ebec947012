package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the per-project configuration directory.
const DirName = ".anchors"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// NewFileLoader creates a loader that reads an explicit config file instead
// of searching .anchors/. The file type follows its extension.
func NewFileLoader(rootDir, configFile string) Loader {
	return &loader{
		rootDir:    rootDir,
		configFile: configFile,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (ANCHORS_*)
// 2. Config file (.anchors/config.yml, .anchors/config.yaml or .anchors/config.toml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		// Search .anchors/config.* so YAML and TOML both work
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(l.rootDir, DirName))
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("ANCHORS")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., ANCHORS_EXTRACT_WORKERS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Scalar keys need explicit binding for Unmarshal to see env values
	for _, key := range []string{
		"extract.max_file_size",
		"extract.workers",
		"extract.attribute_docs",
		"output.format",
		"storage.path",
		"storage.keep_runs",
		"cache.size",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("paths.include", defaults.Paths.Include)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)

	v.SetDefault("extract.max_file_size", defaults.Extract.MaxFileSize)
	v.SetDefault("extract.workers", defaults.Extract.Workers)
	v.SetDefault("extract.attribute_docs", defaults.Extract.AttributeDocs)

	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("storage.path", defaults.Storage.Path)
	v.SetDefault("storage.keep_runs", defaults.Storage.KeepRuns)
	v.SetDefault("cache.size", defaults.Cache.Size)
}

// normalize canonicalizes enum-like values so that consumers can compare
// them exactly.
func normalize(cfg *Config) {
	cfg.Extract.AttributeDocs = strings.ToLower(strings.TrimSpace(cfg.Extract.AttributeDocs))
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
}
