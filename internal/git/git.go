// Package git implements flow.VersionControl by running the git binary.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"flowstate-go/internal/flow"
)

// DefaultTimeout bounds every git invocation, including network calls.
const DefaultTimeout = 2 * time.Minute

// logFormat is parsed by parseLogLine: hash, subject, ISO author date, author name.
const logFormat = "--format=%H|%s|%aI|%an"

// Client runs git commands against working trees.
type Client struct {
	binary  string
	timeout time.Duration
}

// NewClient creates a client running binary (default "git") with the given
// per-call timeout (default DefaultTimeout).
func NewClient(binary string, timeout time.Duration) *Client {
	if binary == "" {
		binary = "git"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{binary: binary, timeout: timeout}
}

// run executes git in dir and returns stdout. A non-zero exit yields a
// *flow.ToolError carrying the combined output.
func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	// Never block on a credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %s", ctx.Err(), c.timeout)
		}
		return nil, &flow.ToolError{
			Args:   args,
			Output: strings.TrimSpace(stderr.String() + "\n" + stdout.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// exitCode returns the exit status carried by err, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (c *Client) IsRepo(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func (c *Client) Init(ctx context.Context, path, branch string) error {
	if _, err := c.run(ctx, path, "init"); err != nil {
		return err
	}
	_, err := c.run(ctx, path, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return err
}

func (c *Client) AddAll(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "add", ".")
	return err
}

func (c *Client) StatusPorcelain(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (c *Client) Commit(ctx context.Context, path, message string) error {
	_, err := c.run(ctx, path, "commit", "-m", message)
	return err
}

// HeadCommit returns nil for a repository without commits.
func (c *Client) HeadCommit(ctx context.Context, path string) (*flow.Commit, error) {
	commits, err := c.Log(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	return &commits[0], nil
}

func (c *Client) hasCommits(ctx context.Context, path string) (bool, error) {
	_, err := c.run(ctx, path, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		if exitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CurrentBranch returns "" for a detached HEAD.
func (c *Client) CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, path, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		if exitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// RemoteURL returns "" when the remote is not configured.
func (c *Client) RemoteURL(ctx context.Context, path, remote string) (string, error) {
	out, err := c.run(ctx, path, "remote", "get-url", remote)
	if err != nil {
		var toolErr *flow.ToolError
		if exitCode(err) == 2 || (errors.As(err, &toolErr) && strings.Contains(toolErr.Output, "No such remote")) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) AddRemote(ctx context.Context, path, remote, url string) error {
	_, err := c.run(ctx, path, "remote", "add", remote, url)
	return err
}

func (c *Client) SetRemoteURL(ctx context.Context, path, remote, url string) error {
	_, err := c.run(ctx, path, "remote", "set-url", remote, url)
	return err
}

// Pull rebases onto remote/branch. Conflicts are reported as flow.ErrConflict
// and a missing remote branch as flow.ErrNoUpstream; the rebase is left in
// progress for the caller to abort.
func (c *Client) Pull(ctx context.Context, path, remote, branch string) error {
	_, err := c.run(ctx, path, "pull", "--rebase", remote, branch)
	if err == nil {
		return nil
	}

	var toolErr *flow.ToolError
	if !errors.As(err, &toolErr) {
		return err
	}
	switch out := toolErr.Output; {
	case strings.Contains(out, "couldn't find remote ref"):
		return fmt.Errorf("%w: %w", flow.ErrNoUpstream, err)
	case strings.Contains(out, "CONFLICT"),
		strings.Contains(out, "could not apply"),
		strings.Contains(out, "Resolve all conflicts"):
		return fmt.Errorf("%w: %w", flow.ErrConflict, err)
	default:
		return err
	}
}

func (c *Client) AbortRebase(ctx context.Context, path string) error {
	_, err := c.run(ctx, path, "rebase", "--abort")
	return err
}

func (c *Client) Push(ctx context.Context, path, remote, branch string) error {
	_, err := c.run(ctx, path, "push", remote, branch)
	return err
}

// Clone runs from the parent of path so that relative paths resolve as the caller expects.
func (c *Client) Clone(ctx context.Context, url, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving clone target: %w", err)
	}
	_, err = c.run(ctx, filepath.Dir(abs), "clone", url, abs)
	return err
}

// Log returns up to limit commits, newest first. An empty repository has no log.
func (c *Client) Log(ctx context.Context, path string, limit int) ([]flow.Commit, error) {
	ok, err := c.hasCommits(ctx, path)
	if err != nil || !ok {
		return nil, err
	}

	out, err := c.run(ctx, path, "log", "-n", strconv.Itoa(limit), logFormat)
	if err != nil {
		return nil, err
	}

	var commits []flow.Commit
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		commits = append(commits, parseLogLine(line))
	}
	return commits, nil
}

// parseLogLine splits a logFormat line. The subject may itself contain '|',
// so the hash is taken from the front and date and author from the back.
// Lines that do not fit are returned with Raw and Message set to the line.
func parseLogLine(line string) flow.Commit {
	raw := flow.Commit{Raw: line, Message: line}

	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return raw
	}
	hash := parts[0]
	if !isHexHash(hash) {
		return raw
	}
	date := parts[len(parts)-2]
	if _, err := time.Parse(time.RFC3339, date); err != nil {
		return raw
	}

	return flow.Commit{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   strings.Join(parts[1:len(parts)-2], "|"),
		Date:      date,
		Author:    parts[len(parts)-1],
	}
}

func isHexHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// Compile-time check that Client implements flow.VersionControl interface
var _ flow.VersionControl = (*Client)(nil)
