package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"flowstate-go/internal/flow"
)

// FakeRepo is the in-memory state of one working tree.
type FakeRepo struct {
	Branch  string
	Remotes map[string]string
	Dirty   []string
	Commits []flow.Commit // oldest first
	// MalformedLog lines are returned by Log after the parsed commits.
	MalformedLog []string
}

// FakeVCS is an in-memory flow.VersionControl. Init and Clone create the
// .git directory on disk so that lock files can be placed there.
// Safe for concurrent use.
type FakeVCS struct {
	mu    sync.Mutex
	repos map[string]*FakeRepo
	seq   int

	// PullErr and PushErr are returned by every Pull and Push.
	PullErr error
	PushErr error

	// PullStarted, when set, receives a value as Pull begins; Pull then waits
	// for PullRelease to be closed.
	PullStarted chan struct{}
	PullRelease chan struct{}

	PullCalls        int
	PushCalls        int
	AbortRebaseCalls int
}

// NewFakeVCS creates an empty FakeVCS.
func NewFakeVCS() *FakeVCS {
	return &FakeVCS{repos: make(map[string]*FakeRepo)}
}

// Repo returns the state of the working tree at path, or nil.
func (f *FakeVCS) Repo(path string) *FakeRepo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos[path]
}

// Touch marks files as changed in the working tree at path.
func (f *FakeVCS) Touch(path string, files ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.repos[path]
	for _, name := range files {
		r.Dirty = append(r.Dirty, "?? "+name)
	}
}

// Calls returns the Pull, Push and AbortRebase call counts.
func (f *FakeVCS) Calls() (pull, push, abort int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PullCalls, f.PushCalls, f.AbortRebaseCalls
}

func (f *FakeVCS) repo(path string) (*FakeRepo, error) {
	r, ok := f.repos[path]
	if !ok {
		return nil, &flow.ToolError{
			Args:   []string{"-C", path},
			Output: "fatal: not a git repository",
			Err:    errors.New("exit status 128"),
		}
	}
	return r, nil
}

func (f *FakeVCS) newCommit(message string) flow.Commit {
	f.seq++
	hash := fmt.Sprintf("%040x", f.seq)
	return flow.Commit{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   message,
		Date:      "2024-01-15T10:30:00Z",
		Author:    "FlowState Test",
	}
}

func makeGitDir(path string) error {
	return os.MkdirAll(filepath.Join(path, ".git"), 0755)
}

func (f *FakeVCS) IsRepo(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.repos[path]
	return ok
}

func (f *FakeVCS) Init(_ context.Context, path, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := makeGitDir(path); err != nil {
		return err
	}
	f.repos[path] = &FakeRepo{Branch: branch, Remotes: map[string]string{}}
	return nil
}

func (f *FakeVCS) AddAll(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.repo(path)
	return err
}

func (f *FakeVCS) StatusPorcelain(_ context.Context, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), r.Dirty...), nil
}

func (f *FakeVCS) Commit(_ context.Context, path, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return err
	}
	if len(r.Dirty) == 0 && len(r.Commits) > 0 {
		return &flow.ToolError{Args: []string{"commit"}, Output: "nothing to commit", Err: errors.New("exit status 1")}
	}
	r.Commits = append(r.Commits, f.newCommit(message))
	r.Dirty = nil
	return nil
}

func (f *FakeVCS) HeadCommit(_ context.Context, path string) (*flow.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return nil, err
	}
	if len(r.Commits) == 0 {
		return nil, nil
	}
	head := r.Commits[len(r.Commits)-1]
	return &head, nil
}

func (f *FakeVCS) CurrentBranch(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return "", err
	}
	return r.Branch, nil
}

func (f *FakeVCS) RemoteURL(_ context.Context, path, remote string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return "", err
	}
	return r.Remotes[remote], nil
}

func (f *FakeVCS) AddRemote(_ context.Context, path, remote, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return err
	}
	if _, ok := r.Remotes[remote]; ok {
		return &flow.ToolError{Args: []string{"remote", "add", remote}, Output: "remote " + remote + " already exists", Err: errors.New("exit status 3")}
	}
	r.Remotes[remote] = url
	return nil
}

func (f *FakeVCS) SetRemoteURL(_ context.Context, path, remote, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return err
	}
	if _, ok := r.Remotes[remote]; !ok {
		return &flow.ToolError{Args: []string{"remote", "set-url", remote}, Output: "No such remote", Err: errors.New("exit status 2")}
	}
	r.Remotes[remote] = url
	return nil
}

func (f *FakeVCS) Pull(_ context.Context, path, _, _ string) error {
	f.mu.Lock()
	f.PullCalls++
	started, release := f.PullStarted, f.PullRelease
	_, err := f.repo(path)
	pullErr := f.PullErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return err
	}
	return pullErr
}

func (f *FakeVCS) AbortRebase(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AbortRebaseCalls++
	_, err := f.repo(path)
	return err
}

func (f *FakeVCS) Push(_ context.Context, path, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PushCalls++
	if _, err := f.repo(path); err != nil {
		return err
	}
	return f.PushErr
}

// Clone creates a working tree at path with one commit and url as "origin".
func (f *FakeVCS) Clone(_ context.Context, url, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := makeGitDir(path); err != nil {
		return err
	}
	f.repos[path] = &FakeRepo{
		Branch:  "main",
		Remotes: map[string]string{"origin": url},
		Commits: []flow.Commit{f.newCommit("FlowState initialized")},
	}
	return nil
}

func (f *FakeVCS) Log(_ context.Context, path string, limit int) ([]flow.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.repo(path)
	if err != nil {
		return nil, err
	}

	var out []flow.Commit
	for i := len(r.Commits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.Commits[i])
	}
	for _, line := range r.MalformedLog {
		if len(out) >= limit {
			break
		}
		out = append(out, flow.Commit{Raw: line, Message: line})
	}
	return out, nil
}

// Compile-time check
var _ flow.VersionControl = (*FakeVCS)(nil)
