package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by flow services. Check them with errors.Is; the wrapping
// error carries the path or tool output that caused the failure.
var (
	// ErrNotFound is returned when a file or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotInitialized is returned by sync operations on a path that has
	// no version-control metadata yet.
	ErrNotInitialized = errors.New("not initialized")

	// ErrDirectoryNotEmpty is returned when a clone target already has content.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrHashUnavailable marks a non-fatal hashing failure during ingestion.
	ErrHashUnavailable = errors.New("hash unavailable")

	// ErrConflict is returned when local and remote histories cannot be
	// reconciled automatically.
	ErrConflict = errors.New("conflict")

	// ErrNoUpstream is returned by a pull when the remote branch does not exist yet.
	ErrNoUpstream = errors.New("no upstream branch")

	// ErrIO wraps filesystem failures.
	ErrIO = errors.New("i/o error")

	// ErrExternalTool is returned when the version-control client exits
	// non-zero or produces output that cannot be parsed.
	ErrExternalTool = errors.New("external tool error")

	// ErrSyncInProgress is returned when a sync operation overlaps another
	// one against the same working tree.
	ErrSyncInProgress = errors.New("another sync operation is in progress")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// ToolError describes a failed version-control invocation.
type ToolError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Is makes every ToolError match ErrExternalTool.
func (e *ToolError) Is(target error) bool { return target == ErrExternalTool }
