package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/parsers"
)

func newTokensCmd(root *rootOptions) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "tokens <file>",
		Short: "Dump the token stream of a file",
		Long: `Tokens prints one token per line as line:column, kind and quoted text.
Newline tokens are omitted. Useful when a declaration is not recognized.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			contents, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			ex := extractor.New()
			lang, ok := ex.Registry().Detect(path)
			if language != "" {
				if lang, err = ex.Registry().Parse(language); err != nil {
					return err
				}
			} else if !ok {
				return fmt.Errorf("%s: %w (use --language)", path, extractor.ErrUnsupportedLanguage)
			}

			seq, err := ex.Tokenize(string(contents), lang)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for tok := range seq {
				if tok.Kind == parsers.TokenNewline {
					continue
				}
				fmt.Fprintln(out, tok)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language tag (default detected from the file name)")
	return cmd
}
