package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/anchors-aweigh/internal/config"
	"github.com/mvp-joe/anchors-aweigh/internal/git"
	"github.com/mvp-joe/anchors-aweigh/internal/storage"
)

// errNoDatabase indicates a read command ran without an extracted database.
var errNoDatabase = errors.New("no extraction database")

// databasePath resolves the --db flag, falling back to storage.path.
// An empty result means persistence is disabled.
func databasePath(ctx context.Context, root string, cfg *config.Config, flag string) (string, error) {
	configured := flag
	if configured == "" {
		configured = cfg.Storage.Path
	}
	return storage.ResolvePath(ctx, git.NewOperations(), root, configured)
}

// openStore opens an existing database for reading. It never creates one:
// the returned store is nil when no database is configured or the file
// does not exist yet.
func openStore(ctx context.Context, root string, cfg *config.Config, flag string) (*storage.Store, func(), error) {
	path, err := databasePath(ctx, root, cfg, flag)
	if err != nil || path == "" {
		return nil, func() {}, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, func() {}, nil
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewStore(db), func() { db.Close() }, nil
}

// requireStore is openStore for commands that only read the database.
func requireStore(cmd *cobra.Command, opts *rootOptions, flag string) (*storage.Store, func(), error) {
	root, cfg, err := opts.load()
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := openStore(cmd.Context(), root, cfg, flag)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("%w: run \"anchors extract --db <path>\" first or set storage.path", errNoDatabase)
	}
	return store, closeFn, nil
}
