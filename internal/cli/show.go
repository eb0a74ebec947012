package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/config"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/source"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

type showOptions struct {
	*rootOptions
	dedent bool
	format string
	dbPath string
}

// shownSymbol is the structured form printed by show --format json|yaml.
// Symbol is set only for file#anchor references.
type shownSymbol struct {
	File      string             `json:"file" yaml:"file"`
	Reference string             `json:"reference" yaml:"reference"`
	Symbol    *extraction.Symbol `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Lines     []string           `json:"lines" yaml:"lines"`
}

func newShowCmd(root *rootOptions) *cobra.Command {
	opts := &showOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "show <file>[#anchor|:selector]",
		Short: "Print the source of a symbol or a line selection",
		Long: `Show prints the lines a reference points at. The file is resolved
against the project root.

  file.rb#anchor     a symbol, from its documentation block through its terminator
  file.rb:name       the lines between "ANCHOR: name" and "ANCHOR_END: name"
  file.rb:42         line 42
  file.rb:42:69      lines 42 through 69
  file.rb:42:        line 42 to the end of the file
  file.rb::42        the first 42 lines
  file.rb            the whole file

Symbols are looked up in the extraction database when one is configured
and the file is unchanged since it was stored; otherwise the file is parsed.

Examples:
  anchors show lib/my_module.rb#mymodule/foo
  anchors show lib/my_module.rb#mymodule/foo/initialize --dedent
  anchors show lib/my_module.rb:10:20
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.dedent, "dedent", "d", false, "Remove common leading indentation")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database to resolve anchors from (default from config)")
	return cmd
}

func runShow(cmd *cobra.Command, opts *showOptions, raw string) error {
	ref, err := source.ParseReference(raw)
	if err != nil {
		return err
	}
	root, cfg, err := opts.load()
	if err != nil {
		return err
	}
	path := ref.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	ex, err := newExtractor(cfg)
	if err != nil {
		return err
	}

	file, err := storedFile(cmd.Context(), opts, root, cfg, ex, path, ref.Selector)
	if err != nil {
		return err
	}
	if file == nil {
		sources, err := source.NewList(1, source.WithExtractor(ex), source.WithLogger(opts.log()))
		if err != nil {
			return err
		}
		defer sources.Close()
		if file, err = sources.Get(path); err != nil {
			return err
		}
	}

	lines, err := file.SelectWith(ref.Selector)
	if err != nil {
		return err
	}
	if opts.dedent {
		lines = source.Dedent(lines)
	}

	if opts.format != "text" {
		shown := shownSymbol{File: ref.Path, Reference: ref.String(), Lines: lines}
		if sym, ok := file.Symbol(ref.Selector.Name); ok && ref.Selector.Kind == source.SelectSymbol {
			shown.Symbol = &sym
		}
		return writeFormatted(cmd.OutOrStdout(), opts.format, shown)
	}
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// storedFile resolves a symbol selector through the extraction database.
// It returns nil when there is no database, the selector is not a symbol,
// or the file changed since it was stored.
func storedFile(ctx context.Context, opts *showOptions, root string, cfg *config.Config, ex *extractor.Extractor, path string, sel source.Selector) (*source.File, error) {
	if sel.Kind != source.SelectSymbol {
		return nil, nil
	}
	store, closeStore, err := openStore(ctx, root, cfg, opts.dbPath)
	if err != nil || store == nil {
		return nil, err
	}
	defer closeStore()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, nil
	}
	rel = filepath.ToSlash(rel)
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	stored, err := store.FileHash(rel)
	if err != nil {
		return nil, err
	}
	if stored != source.Hash(contents) {
		opts.log().Debug("stored symbols are stale, parsing", "path", rel)
		return nil, nil
	}

	sym, err := store.Lookup(storage.QualifiedAnchor(rel, sel.Name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s#%s", source.ErrAnchorNotFound, rel, sel.Name)
	}
	if err != nil {
		return nil, err
	}
	lang, _ := ex.Registry().Detect(path)
	opts.log().Debug("resolved anchor from database", "anchor", sym.QualifiedAnchor())
	return source.NewFile(path, contents, lang, []extraction.Symbol{sym.Symbol}), nil
}
