package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
)

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages and their file patterns",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			r := extractor.DefaultRegistry()
			for _, lang := range r.Languages() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", lang, strings.Join(r.Patterns(lang), " "))
			}
		},
	}
}
