package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mvp-joe/anchors-aweigh/internal/git"
)

// AutoPath is the storage.path value that selects DefaultPath.
const AutoPath = "auto"

// ProjectKey returns the key for the project at root.
// The key combines git remote and worktree path to uniquely identify a project.
// Format: {remoteHash}-{worktreeHash} where each hash is 8 chars; the remote
// part is "00000000" when no remote is configured.
func ProjectKey(ctx context.Context, ops git.Operations, root string) string {
	remoteHash := "00000000"
	if remote := ops.RemoteURL(ctx, root); remote != "" {
		remoteHash = hashString(git.NormalizeRemoteURL(remote))[:8]
	}
	return remoteHash + "-" + hashString(ops.WorktreeRoot(ctx, root))[:8]
}

// DefaultPath returns the database location for the project at root under
// the user cache directory: <cache>/anchors/<project key>/anchors.db.
func DefaultPath(ctx context.Context, ops git.Operations, root string) (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(dir, "anchors", ProjectKey(ctx, ops, root), "anchors.db"), nil
}

// ResolvePath maps a configured storage path to a database file. Empty
// disables persistence, AutoPath selects DefaultPath and relative paths are
// joined to root.
func ResolvePath(ctx context.Context, ops git.Operations, root, configured string) (string, error) {
	switch {
	case configured == "":
		return "", nil
	case configured == AutoPath:
		return DefaultPath(ctx, ops, root)
	case filepath.IsAbs(configured):
		return configured, nil
	default:
		return filepath.Join(root, configured), nil
	}
}

// hashString returns SHA-256 hash of the input string as hex.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
