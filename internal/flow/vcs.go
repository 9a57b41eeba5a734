package flow

import "context"

// Commit describes one commit in the working tree's history.
// Raw holds the unparsed log line when the line could not be split into fields.
type Commit struct {
	Hash      string
	ShortHash string
	Message   string
	Date      string
	Author    string
	Raw       string
}

// VersionControl is the transport used to reconcile the data root with other
// devices. All methods operate on the working tree at path.
type VersionControl interface {
	// IsRepo reports whether path contains version-control metadata.
	IsRepo(path string) bool

	// Init creates a repository whose initial branch is branch.
	Init(ctx context.Context, path, branch string) error

	// AddAll stages every working-tree change.
	AddAll(ctx context.Context, path string) error

	// StatusPorcelain returns the non-empty lines of the porcelain status.
	StatusPorcelain(ctx context.Context, path string) ([]string, error)

	// Commit records the staged changes with message.
	Commit(ctx context.Context, path, message string) error

	// HeadCommit returns the most recent commit, or nil for an empty repository.
	HeadCommit(ctx context.Context, path string) (*Commit, error)

	// CurrentBranch returns the checked-out branch name ("" when detached).
	CurrentBranch(ctx context.Context, path string) (string, error)

	// RemoteURL returns the URL of the named remote, or "" if it is not configured.
	RemoteURL(ctx context.Context, path, remote string) (string, error)

	// AddRemote configures a new remote.
	AddRemote(ctx context.Context, path, remote, url string) error

	// SetRemoteURL changes the URL of an existing remote.
	SetRemoteURL(ctx context.Context, path, remote, url string) error

	// Pull rebases local commits onto remote/branch. It returns an error
	// wrapping ErrConflict when the rebase stops on conflicts and ErrNoUpstream
	// when the remote branch does not exist.
	Pull(ctx context.Context, path, remote, branch string) error

	// AbortRebase abandons an in-progress rebase, restoring the local branch.
	AbortRebase(ctx context.Context, path string) error

	// Push publishes branch to remote.
	Push(ctx context.Context, path, remote, branch string) error

	// Clone copies the repository at url into path.
	Clone(ctx context.Context, url, path string) error

	// Log returns up to limit commits, newest first.
	Log(ctx context.Context, path string, limit int) ([]Commit, error)
}
