// Package git runs the git queries used to identify a project checkout.
package git

import (
	"context"
	"os/exec"
	"strings"
)

// Operations defines the interface for git operations.
// This allows mocking git commands in tests.
type Operations interface {
	// RemoteURL returns the git remote URL.
	// Tries 'origin' first, then falls back to first available remote.
	// Returns empty string if no remote configured.
	RemoteURL(ctx context.Context, dir string) string

	// WorktreeRoot returns the top-level directory of the worktree holding dir.
	// Falls back to dir if it is not inside a git repository.
	WorktreeRoot(ctx context.Context, dir string) string
}

// execOps is the real implementation using exec.CommandContext.
type execOps struct{}

// NewOperations returns the default git operations implementation.
func NewOperations() Operations {
	return execOps{}
}

func (execOps) RemoteURL(ctx context.Context, dir string) string {
	if url, err := run(ctx, dir, "remote", "get-url", "origin"); err == nil {
		return url
	}

	// Fallback: first remote
	remotes, err := run(ctx, dir, "remote")
	if err != nil || remotes == "" {
		return ""
	}
	first, _, _ := strings.Cut(remotes, "\n")
	url, _ := run(ctx, dir, "remote", "get-url", first)
	return url
}

func (execOps) WorktreeRoot(ctx context.Context, dir string) string {
	root, err := run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil || root == "" {
		return dir
	}
	return root
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	return strings.TrimSpace(string(output)), err
}

// NormalizeRemoteURL normalizes git remote URLs to a canonical form.
// Strips protocols, converts SSH format to path format, removes .git suffix.
// Examples:
//   - https://github.com/user/repo.git -> github.com/user/repo
//   - git@github.com:user/repo.git -> github.com/user/repo
func NormalizeRemoteURL(remote string) string {
	remote = strings.TrimSpace(remote)

	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		remote = strings.TrimPrefix(remote, scheme)
	}

	// Strip .git suffix before handling git@ to avoid issues
	remote = strings.TrimSuffix(remote, ".git")

	// Convert SSH format (git@github.com:user/repo) to path format
	if rest, ok := strings.CutPrefix(remote, "git@"); ok {
		remote = strings.Replace(rest, ":", "/", 1)
	}

	return remote
}
