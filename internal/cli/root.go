// Package cli implements the anchors command line interface.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/config"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/parsers"
)

// rootOptions holds the persistent flags shared by all subcommands.
type rootOptions struct {
	configFile string
	rootDir    string
	verbose    bool
	logger     *slog.Logger
	errOut     io.Writer
}

// NewRootCmd creates the root command with all subcommands attached.
//
// Global Flags:
//   - --config: explicit config file (default .anchors/config.{yml,yaml,toml})
//   - --root: project root (default current directory)
//   - --verbose: debug logging on stderr
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "anchors",
		Short: "Extract documented symbols and stable anchors from source files",
		Long: `anchors parses Ruby and Python source files, attaches leading
comment blocks to the modules, classes, constants, attributes and methods
they document, and assigns every symbol a stable, URL-safe anchor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.errOut = cmd.ErrOrStderr()
			opts.logger = newLogger(opts.errOut, opts.verbose)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is .anchors/config.yml under the root)")
	cmd.PersistentFlags().StringVarP(&opts.rootDir, "root", "C", "", "project root directory (default is the current directory)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newFindCmd(opts))
	cmd.AddCommand(newRunsCmd(opts))
	cmd.AddCommand(newTokensCmd(opts))
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// root returns the absolute project root.
func (o *rootOptions) root() (string, error) {
	dir := o.rootDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// load resolves the root and loads its configuration.
func (o *rootOptions) load() (string, *config.Config, error) {
	root, err := o.root()
	if err != nil {
		return "", nil, err
	}

	loader := config.NewLoader(root)
	if o.configFile != "" {
		loader = config.NewFileLoader(root, o.configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.configFile != "" {
		o.log().Debug("using config file", "path", o.configFile)
	}
	return root, cfg, nil
}

// ErrWriter returns the command's diagnostic output.
func (o *rootOptions) ErrWriter() io.Writer {
	if o.errOut == nil {
		return os.Stderr
	}
	return o.errOut
}

func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// newExtractor builds an extractor honoring the configured attribute doc policy.
func newExtractor(cfg *config.Config) (*extractor.Extractor, error) {
	policy, err := parsers.ParseAttributeDocPolicy(cfg.Extract.AttributeDocs)
	if err != nil {
		return nil, err
	}
	return extractor.New(extractor.WithAttributeDocs(policy)), nil
}
