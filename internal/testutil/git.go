package testutil

import (
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when no git binary is on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found on PATH")
	}
}

// IsolateGit points git at an empty home directory and a fixed identity so
// tests neither read nor write the user's configuration.
func IsolateGit(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_AUTHOR_NAME", "FlowState Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@flowstate.invalid")
	t.Setenv("GIT_COMMITTER_NAME", "FlowState Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@flowstate.invalid")
}

// RunGit runs git in dir and returns its trimmed stdout. The test fails on a
// non-zero exit.
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, stderr)
	}
	return strings.TrimSpace(string(out))
}
