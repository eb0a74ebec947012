package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests for the real Operations implementation.
// These tests use actual git commands and run sequentially (NO t.Parallel()).

func TestGitOpsIntegration(t *testing.T) {
	// NO t.Parallel() - these tests run sequentially to avoid resource exhaustion
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	ctx := context.Background()
	gitOps := NewOperations()

	t.Run("RemoteURL prefers origin", func(t *testing.T) {
		dir := createTestGitRepo(t)
		runGitCmd(t, dir, "remote", "add", "upstream", "https://example.com/up.git")
		runGitCmd(t, dir, "remote", "add", "origin", "git@github.com:user/repo.git")
		assert.Equal(t, "git@github.com:user/repo.git", gitOps.RemoteURL(ctx, dir))
	})

	t.Run("RemoteURL falls back to first remote", func(t *testing.T) {
		dir := createTestGitRepo(t)
		runGitCmd(t, dir, "remote", "add", "upstream", "https://example.com/up.git")
		assert.Equal(t, "https://example.com/up.git", gitOps.RemoteURL(ctx, dir))
	})

	t.Run("RemoteURL without remotes", func(t *testing.T) {
		dir := createTestGitRepo(t)
		assert.Empty(t, gitOps.RemoteURL(ctx, dir))
	})

	t.Run("RemoteURL non-git directory", func(t *testing.T) {
		assert.Empty(t, gitOps.RemoteURL(ctx, t.TempDir()))
	})

	t.Run("WorktreeRoot from subdirectory", func(t *testing.T) {
		dir := createTestGitRepo(t)
		sub := filepath.Join(dir, "lib", "deep")
		require.NoError(t, os.MkdirAll(sub, 0755))

		want, err := filepath.EvalSymlinks(dir)
		require.NoError(t, err)
		got, err := filepath.EvalSymlinks(gitOps.WorktreeRoot(ctx, sub))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("WorktreeRoot non-git directory", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, dir, gitOps.WorktreeRoot(ctx, dir))
	})
}

func TestNormalizeRemoteURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://github.com/user/repo.git", want: "github.com/user/repo"},
		{in: "http://github.com/user/repo", want: "github.com/user/repo"},
		{in: "git@github.com:user/repo.git", want: "github.com/user/repo"},
		{in: "ssh://git@github.com/user/repo.git", want: "github.com/user/repo"},
		{in: "  git://host/x.git\n", want: "host/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeRemoteURL(tt.in))
		})
	}
}

func createTestGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Initialize repo
	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = dir
	require.NoError(t, cmd.Run(), "git init failed")

	// Configure git identity
	runGitCmd(t, dir, "config", "user.email", "test@example.com")
	runGitCmd(t, dir, "config", "user.name", "Test User")

	// Create initial commit
	testFile := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(testFile, []byte("# Test\n"), 0644))
	runGitCmd(t, dir, "add", "README.md")
	runGitCmd(t, dir, "commit", "-m", "Initial commit")

	return dir
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
}
