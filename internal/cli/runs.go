package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

type runsOptions struct {
	*rootOptions
	format string
	dbPath string
}

// shownRun is the structured form printed by runs --format json|yaml.
type shownRun struct {
	ID         string     `json:"id" yaml:"id"`
	Root       string     `json:"root" yaml:"root"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Files      int        `json:"files" yaml:"files"`
	Symbols    int        `json:"symbols" yaml:"symbols"`
	Skipped    int        `json:"skipped" yaml:"skipped"`
}

func newShownRun(r storage.Run) shownRun {
	out := shownRun{
		ID:        r.ID,
		Root:      r.Root,
		StartedAt: r.StartedAt,
		Files:     r.FileCount,
		Symbols:   r.SymbolCount,
		Skipped:   r.SkippedCount,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	opts := &runsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored extraction runs",
		Long: `Runs lists the extraction runs kept in the database, newest first, or
shows a single run by ID. Older runs are pruned according to
storage.keep_runs once no stored file belongs to them.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database to read (default from config)")
	return cmd
}

func runRuns(cmd *cobra.Command, opts *runsOptions, args []string) error {
	store, closeStore, err := requireStore(cmd, opts.rootOptions, opts.dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	var runs []storage.Run
	if len(args) == 1 {
		run, err := store.Run(args[0])
		if err != nil {
			return err
		}
		runs = []storage.Run{run}
	} else if runs, err = store.Runs(); err != nil {
		return err
	}

	if opts.format != "text" {
		out := make([]shownRun, len(runs))
		for i, r := range runs {
			out[i] = newShownRun(r)
		}
		return writeFormatted(cmd.OutOrStdout(), opts.format, out)
	}
	for _, r := range runs {
		status := "running"
		if !r.FinishedAt.IsZero() {
			status = r.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  files=%d symbols=%d skipped=%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), status, r.FileCount, r.SymbolCount, r.SkippedCount)
	}
	return nil
}
