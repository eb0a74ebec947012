package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

type findOptions struct {
	*rootOptions
	name        string
	kind        string
	fingerprint string
	limit       uint64
	format      string
	dbPath      string
}

// foundSymbol is the structured form printed by find --format json|yaml.
type foundSymbol struct {
	Ref    string            `json:"ref" yaml:"ref"`
	File   string            `json:"file" yaml:"file"`
	Symbol extraction.Symbol `json:"symbol" yaml:"symbol"`
}

func newFindCmd(root *rootOptions) *cobra.Command {
	opts := &findOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search stored symbols across files",
		Long: `Find searches the extraction database written by "anchors extract --db"
and prints one file#anchor reference per matching symbol, in file and
declaration order. Filters combine; without filters every symbol matches.

Examples:
  anchors find --kind class
  anchors find --name initialize --format json
  anchors find --fingerprint 3f2a9c0d1e4b5a68
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Symbol name (last path segment)")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Symbol kind: module, class, constant, attribute or method")
	cmd.Flags().StringVar(&opts.fingerprint, "fingerprint", "", "Content fingerprint")
	cmd.Flags().Uint64VarP(&opts.limit, "limit", "l", 0, "Maximum number of results (0 for all)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database to search (default from config)")
	return cmd
}

func runFind(cmd *cobra.Command, opts *findOptions) error {
	kind := extraction.Kind(opts.kind)
	if kind != "" && !slices.Contains(extraction.Kinds, kind) {
		return fmt.Errorf("unknown kind %q (want one of %v)", opts.kind, extraction.Kinds)
	}

	store, closeStore, err := requireStore(cmd, opts.rootOptions, opts.dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	found, err := store.FindSymbols(storage.SymbolQuery{
		Name:        opts.name,
		Kind:        kind,
		Fingerprint: opts.fingerprint,
		Limit:       opts.limit,
	})
	if err != nil {
		return err
	}
	opts.log().Debug("symbols found", "count", len(found))

	if opts.format != "text" {
		out := make([]foundSymbol, len(found))
		for i, s := range found {
			out[i] = foundSymbol{Ref: s.QualifiedAnchor(), File: s.FilePath, Symbol: s.Symbol}
		}
		return writeFormatted(cmd.OutOrStdout(), opts.format, out)
	}
	for _, s := range found {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.QualifiedAnchor(), s.Kind, s.QualifiedName("::"))
	}
	return nil
}
