package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/gofrs/flock"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"flowstate-go/internal/model"
)

const (
	initialCommitMessage = "FlowState initialized"
	syncMessageLayout    = "2006-01-02 15:04:05"
	syncLockName         = "flowstate-sync.lock"
)

// LocalStateDir holds per-install files inside a working tree, such as the
// sync store and logs. It is always ignored.
const LocalStateDir = ".flowstate"

// Operation names recorded in the sync history.
const (
	OpInit      = "init"
	OpStatus    = "status"
	OpSetRemote = "set_remote"
	OpSync      = "sync"
	OpClone     = "clone"
	OpHistory   = "history"
)

// DefaultIgnorePatterns lists the files never tracked in the working tree:
// per-install state, OS junk, database journals, locks, temporaries and local
// backups.
var DefaultIgnorePatterns = []string{
	LocalStateDir + "/",
	".DS_Store",
	"Thumbs.db",
	"*.sqlite-journal",
	"*.sqlite-wal",
	"*.sqlite-shm",
	"*.db-journal",
	"*.db-wal",
	"*.db-shm",
	"*.lock",
	"*.tmp",
	"*.bak",
	"*.local-backup-*",
}

const readme = `# FlowState data

This directory is managed by FlowState and synchronized between devices with git.

- flowstate.db: structured records
- projects/project_<id>/attachments/: files attached to each project
- .flowstate/: sync status and history of this device, never synchronized

Avoid editing files here by hand while a sync is running.
`

// State is the sync state of a working tree.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateHasRemote     State = "has_remote"
	StateSynced        State = "synced"
	StateConflict      State = "conflict"
)

// SyncOptions configures a SyncCoordinator.
type SyncOptions struct {
	DeviceName string
	Remote     string
	Branch     string
	// IgnorePatterns are added to DefaultIgnorePatterns in the generated ignore list.
	IgnorePatterns []string
}

// DefaultSyncOptions returns options using remote "origin" and branch "main".
func DefaultSyncOptions(deviceName string) SyncOptions {
	return SyncOptions{
		DeviceName: deviceName,
		Remote:     "origin",
		Branch:     "main",
	}
}

// InitResult reports the outcome of Init.
type InitResult struct {
	Path               string
	AlreadyInitialized bool
	Commit             *Commit
}

// StatusReport describes a working tree.
type StatusReport struct {
	Initialized    bool
	Branch         string
	HasRemote      bool
	RemoteURL      string
	PendingChanges int
	LastCommit     *Commit
	HasConflicts   bool
	LastSyncAt     *time.Time
}

// RemoteResult reports the outcome of SetRemote.
type RemoteResult struct {
	Action string // "added" or "updated"
	URL    string
}

// CloneResult reports the outcome of Clone.
type CloneResult struct {
	Path   string
	Commit *Commit
}

// SyncCoordinator drives the version-control client to keep a working tree in
// step with a remote, and records every operation in the sync history.
//
// Operations that run git against the working tree are serialized: an Init,
// Status, SetRemote, Sync or Clone that overlaps another one on the same
// coordinator fails with ErrSyncInProgress. Status and Sync also hold a file
// lock in the repository so that other processes are rejected the same way.
type SyncCoordinator struct {
	store  SyncStore
	vcs    VersionControl
	fsmgr  FilesystemManager
	logger Logger
	clock  Clock
	idgen  IDGenerator
	opts   SyncOptions

	mu sync.Mutex
}

// NewSyncCoordinator creates a new SyncCoordinator with the provided dependencies.
// Empty Remote and Branch options fall back to "origin" and "main".
func NewSyncCoordinator(store SyncStore, vcs VersionControl, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, opts SyncOptions) *SyncCoordinator {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &SyncCoordinator{
		store:  store,
		vcs:    vcs,
		fsmgr:  fsmgr,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		opts:   opts,
	}
}

// bookkeeping is what an operation leaves in the sync history and status.
type bookkeeping struct {
	status       string
	commit       *Commit
	filesChanged *int
	errMsg       *string
	pending      *int
	conflicts    *bool
	remoteURL    *string
	synced       bool
}

// record appends one history entry and refreshes the status singleton if it
// exists. Failures here are logged and never returned.
func (c *SyncCoordinator) record(op string, b bookkeeping, opErr error) {
	now := c.clock.Now()

	status, err := c.store.GetSyncStatus()
	if err != nil {
		c.logger.Warn("reading sync status", "op", op, "error", err)
	}

	h := &model.SyncHistory{
		Operation:    op,
		FilesChanged: b.filesChanged,
		Status:       b.status,
		ErrorMessage: b.errMsg,
		CreatedAt:    now,
	}
	if status != nil {
		h.DeviceID = status.DeviceID
	}
	if b.commit != nil {
		h.CommitHash = pointer.ToString(b.commit.Hash)
	}
	if opErr != nil {
		h.Status = StatusError
		h.ErrorMessage = pointer.ToString(opErr.Error())
	}
	if err := c.store.AppendSyncHistory(h); err != nil {
		c.logger.Warn("appending sync history", "op", op, "error", err)
	}

	if status == nil {
		return
	}
	upd := model.SyncStatusUpdate{
		PendingChanges: b.pending,
		HasConflicts:   b.conflicts,
		RemoteURL:      b.remoteURL,
		UpdatedAt:      now,
	}
	if b.synced && b.commit != nil {
		upd.LastSyncAt = pointer.ToTime(now)
		upd.LastSyncCommit = pointer.ToString(b.commit.Hash)
	}
	if _, err := c.store.UpdateSyncStatus(upd); err != nil {
		c.logger.Warn("updating sync status", "op", op, "error", err)
	}
}

// pendingChanges counts porcelain status lines, returning nil when unknown.
func (c *SyncCoordinator) pendingChanges(ctx context.Context, path string) *int {
	lines, err := c.vcs.StatusPorcelain(ctx, path)
	if err != nil {
		c.logger.Warn("counting pending changes", "path", path, "error", err)
		return nil
	}
	return pointer.ToInt(len(lines))
}

// ensureDevice creates the status singleton if it does not exist yet.
func (c *SyncCoordinator) ensureDevice(name string) (*model.SyncStatus, error) {
	status, err := c.store.GetSyncStatus()
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}
	if status != nil {
		return status, nil
	}

	status, err = c.store.CreateSyncStatus(name, c.idgen.New(), c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("creating sync status: %w", err)
	}
	c.logger.Info("device registered", "device", status.DeviceName, "device_id", status.DeviceID)
	return status, nil
}

// lockTree takes the repository's file lock, failing with ErrSyncInProgress
// when another process holds it.
func (c *SyncCoordinator) lockTree(path string) (func(), error) {
	lock := flock.New(filepath.Join(path, ".git", syncLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return nil, ErrSyncInProgress
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("releasing sync lock", "error", err)
		}
	}, nil
}

func (c *SyncCoordinator) requireRepo(path string) error {
	if !c.vcs.IsRepo(path) {
		return fmt.Errorf("%s: %w", path, ErrNotInitialized)
	}
	return nil
}

// State derives the sync state of the working tree at path.
func (c *SyncCoordinator) State(ctx context.Context, path string) (State, error) {
	if !c.vcs.IsRepo(path) {
		return StateUninitialized, nil
	}

	status, err := c.store.GetSyncStatus()
	if err != nil {
		return "", fmt.Errorf("reading sync status: %w", err)
	}
	if status != nil && status.HasConflicts {
		return StateConflict, nil
	}

	url, err := c.vcs.RemoteURL(ctx, path, c.opts.Remote)
	if err != nil {
		return "", fmt.Errorf("reading remote: %w", err)
	}
	if url == "" {
		return StateInitialized, nil
	}

	if status != nil && status.LastSyncCommit != nil {
		head, err := c.vcs.HeadCommit(ctx, path)
		if err != nil {
			return "", fmt.Errorf("reading head commit: %w", err)
		}
		if head != nil && head.Hash == *status.LastSyncCommit {
			return StateSynced, nil
		}
	}
	return StateHasRemote, nil
}

// Init turns path into a working tree with a generated ignore list, a README
// and an initial commit. Calling it on an existing working tree is a no-op
// reported through AlreadyInitialized.
func (c *SyncCoordinator) Init(ctx context.Context, path string) (*InitResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	res, b, err := c.init(ctx, path)
	c.record(OpInit, b, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *SyncCoordinator) init(ctx context.Context, path string) (*InitResult, bookkeeping, error) {
	if c.vcs.IsRepo(path) {
		if _, err := c.ensureDevice(c.opts.DeviceName); err != nil {
			c.logger.Warn("registering device", "error", err)
		}
		c.logger.Info("working tree already initialized", "path", path)
		b := bookkeeping{status: StatusAlreadyInitialized, pending: c.pendingChanges(ctx, path)}
		return &InitResult{Path: path, AlreadyInitialized: true}, b, nil
	}

	if err := c.fsmgr.MkdirAll(filepath.Join(path, "projects")); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: creating %s: %v", ErrIO, path, err)
	}
	if err := c.vcs.Init(ctx, path, c.opts.Branch); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("initializing repository: %w", err)
	}
	if err := c.fsmgr.WriteFile(filepath.Join(path, ".gitignore"), []byte(c.ignoreFile())); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: writing ignore list: %v", ErrIO, err)
	}
	if err := c.fsmgr.WriteFile(filepath.Join(path, "README.md"), []byte(readme)); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: writing readme: %v", ErrIO, err)
	}
	if err := c.vcs.AddAll(ctx, path); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("staging initial files: %w", err)
	}
	staged, err := c.vcs.StatusPorcelain(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading status: %w", err)
	}
	if err := c.vcs.Commit(ctx, path, initialCommitMessage); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("creating initial commit: %w", err)
	}
	head, err := c.vcs.HeadCommit(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading head commit: %w", err)
	}

	if _, err := c.ensureDevice(c.opts.DeviceName); err != nil {
		c.logger.Warn("registering device", "error", err)
	}

	c.logger.Info("working tree initialized", "path", path, "branch", c.opts.Branch)
	b := bookkeeping{
		status:       StatusInitialized,
		commit:       head,
		filesChanged: pointer.ToInt(len(staged)),
		pending:      c.pendingChanges(ctx, path),
		conflicts:    pointer.ToBool(false),
	}
	return &InitResult{Path: path, Commit: head}, b, nil
}

func (c *SyncCoordinator) ignoreFile() string {
	var sb strings.Builder
	sb.WriteString("# Generated by FlowState\n")
	for _, p := range DefaultIgnorePatterns {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	for _, p := range c.opts.IgnorePatterns {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Status reports the state of the working tree at path. An uninitialized path
// is reported with Initialized false rather than as an error.
func (c *SyncCoordinator) Status(ctx context.Context, path string) (*StatusReport, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	report, b, err := c.status(ctx, path)
	c.record(OpStatus, b, err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *SyncCoordinator) status(ctx context.Context, path string) (*StatusReport, bookkeeping, error) {
	if !c.vcs.IsRepo(path) {
		return &StatusReport{Initialized: false}, bookkeeping{status: StatusOK}, nil
	}

	unlock, err := c.lockTree(path)
	if err != nil {
		return nil, bookkeeping{}, err
	}
	defer unlock()

	branch, err := c.vcs.CurrentBranch(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading branch: %w", err)
	}
	url, err := c.vcs.RemoteURL(ctx, path, c.opts.Remote)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading remote: %w", err)
	}
	lines, err := c.vcs.StatusPorcelain(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading status: %w", err)
	}
	head, err := c.vcs.HeadCommit(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading head commit: %w", err)
	}

	report := &StatusReport{
		Initialized:    true,
		Branch:         branch,
		HasRemote:      url != "",
		RemoteURL:      url,
		PendingChanges: len(lines),
		LastCommit:     head,
	}
	if status, err := c.store.GetSyncStatus(); err != nil {
		c.logger.Warn("reading sync status", "error", err)
	} else if status != nil {
		report.HasConflicts = status.HasConflicts
		report.LastSyncAt = status.LastSyncAt
	}

	return report, bookkeeping{status: StatusOK, pending: pointer.ToInt(len(lines))}, nil
}

// SetRemote points the configured remote at url, adding it if absent.
func (c *SyncCoordinator) SetRemote(ctx context.Context, path, url string) (*RemoteResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	res, b, err := c.setRemote(ctx, path, url)
	c.record(OpSetRemote, b, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *SyncCoordinator) setRemote(ctx context.Context, path, url string) (*RemoteResult, bookkeeping, error) {
	if err := validation.Validate(url, validation.Required); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: remote url: %v", ErrInvalidInput, err)
	}
	if err := c.requireRepo(path); err != nil {
		return nil, bookkeeping{}, err
	}

	existing, err := c.vcs.RemoteURL(ctx, path, c.opts.Remote)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading remote: %w", err)
	}

	action := StatusAdded
	if existing == "" {
		err = c.vcs.AddRemote(ctx, path, c.opts.Remote, url)
	} else {
		action = StatusUpdated
		err = c.vcs.SetRemoteURL(ctx, path, c.opts.Remote, url)
	}
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("configuring remote: %w", err)
	}

	c.logger.Info("remote configured", "path", path, "remote", c.opts.Remote, "action", action)
	b := bookkeeping{status: action, remoteURL: pointer.ToString(url)}
	return &RemoteResult{Action: action, URL: url}, b, nil
}

// Sync commits local changes and reconciles them with the remote.
//
// The local commit always happens before any remote call, so a failure while
// pulling or pushing never loses local work. An empty message is replaced by
// a timestamped default.
func (c *SyncCoordinator) Sync(ctx context.Context, path, message string) (SyncOutcome, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	outcome, b, err := c.sync(ctx, path, message)
	c.record(OpSync, b, err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (c *SyncCoordinator) sync(ctx context.Context, path, message string) (SyncOutcome, bookkeeping, error) {
	if err := c.requireRepo(path); err != nil {
		return nil, bookkeeping{}, err
	}

	unlock, err := c.lockTree(path)
	if err != nil {
		return nil, bookkeeping{}, err
	}
	defer unlock()

	if err := c.vcs.AddAll(ctx, path); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("staging changes: %w", err)
	}
	changes, err := c.vcs.StatusPorcelain(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading status: %w", err)
	}

	committed := false
	if len(changes) > 0 {
		if message == "" {
			message = "FlowState sync - " + c.clock.Now().Format(syncMessageLayout)
		}
		if err := c.vcs.Commit(ctx, path, message); err != nil {
			return nil, bookkeeping{}, fmt.Errorf("committing changes: %w", err)
		}
		committed = true
		c.logger.Info("local changes committed", "path", path, "files", len(changes))
	}

	head, err := c.vcs.HeadCommit(ctx, path)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("reading head commit: %w", err)
	}
	b := bookkeeping{filesChanged: pointer.ToInt(len(changes)), commit: head}

	url, err := c.vcs.RemoteURL(ctx, path, c.opts.Remote)
	if err != nil {
		return nil, b, fmt.Errorf("reading remote: %w", err)
	}
	if url == "" {
		b.status = StatusCommittedLocalOnly
		b.pending = c.pendingChanges(ctx, path)
		b.conflicts = pointer.ToBool(false)
		return CommittedLocalOnly{Committed: committed, Commit: head}, b, nil
	}

	if err := c.vcs.Pull(ctx, path, c.opts.Remote, c.opts.Branch); err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			if abortErr := c.vcs.AbortRebase(ctx, path); abortErr != nil {
				c.logger.Error("aborting rebase after conflict", "path", path, "error", abortErr)
			}
			c.logger.Warn("sync conflict, local commit kept", "path", path, "error", err)
			b.status = StatusConflict
			b.errMsg = pointer.ToString(err.Error())
			b.conflicts = pointer.ToBool(true)
			b.pending = c.pendingChanges(ctx, path)
			if head, err := c.vcs.HeadCommit(ctx, path); err == nil {
				b.commit = head
			}
			return Conflict{Committed: committed, Detail: err.Error(), Commit: b.commit}, b, nil

		case errors.Is(err, ErrNoUpstream):
			c.logger.Debug("remote branch missing, pushing to create it", "remote", c.opts.Remote, "branch", c.opts.Branch)

		default:
			c.logger.Warn("pull failed, push skipped", "path", path, "error", err)
			b.status = StatusPartial
			b.errMsg = pointer.ToString(err.Error())
			b.pending = c.pendingChanges(ctx, path)
			return PartialSync{Committed: committed, PullError: err.Error(), Commit: head}, b, nil
		}
	}

	// A rebase may have moved HEAD.
	head, err = c.vcs.HeadCommit(ctx, path)
	if err != nil {
		return nil, b, fmt.Errorf("reading head commit: %w", err)
	}
	b.commit = head
	b.conflicts = pointer.ToBool(false)
	b.status = StatusSynced

	outcome := Synced{Committed: committed, Pushed: true, Commit: head}
	if err := c.vcs.Push(ctx, path, c.opts.Remote, c.opts.Branch); err != nil {
		c.logger.Warn("push failed, changes kept locally", "path", path, "error", err)
		outcome.Pushed = false
		outcome.PushError = err.Error()
		b.errMsg = pointer.ToString(err.Error())
	} else {
		b.synced = true
		c.logger.Info("sync complete", "path", path, "commit", head.ShortHash)
	}
	b.pending = c.pendingChanges(ctx, path)
	return outcome, b, nil
}

// Clone copies the repository at url into localPath, which must be missing or
// empty. The device is registered if this install has no sync status yet.
func (c *SyncCoordinator) Clone(ctx context.Context, url, localPath string) (*CloneResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	res, b, err := c.clone(ctx, url, localPath)
	c.record(OpClone, b, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *SyncCoordinator) clone(ctx context.Context, url, localPath string) (*CloneResult, bookkeeping, error) {
	if err := validation.Validate(url, validation.Required); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: remote url: %v", ErrInvalidInput, err)
	}

	empty, err := c.fsmgr.IsEmptyDir(localPath)
	if err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: checking %s: %v", ErrIO, localPath, err)
	}
	if !empty {
		return nil, bookkeeping{}, fmt.Errorf("%s: %w", localPath, ErrDirectoryNotEmpty)
	}
	if err := c.fsmgr.MkdirAll(filepath.Dir(localPath)); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("%w: creating parent of %s: %v", ErrIO, localPath, err)
	}

	if err := c.vcs.Clone(ctx, url, localPath); err != nil {
		return nil, bookkeeping{}, fmt.Errorf("cloning %s: %w", url, err)
	}

	if _, err := c.ensureDevice(c.opts.DeviceName); err != nil {
		c.logger.Warn("registering device", "error", err)
	}

	head, err := c.vcs.HeadCommit(ctx, localPath)
	if err != nil {
		c.logger.Warn("reading head commit after clone", "path", localPath, "error", err)
	}

	c.logger.Info("repository cloned", "url", url, "path", localPath)
	b := bookkeeping{
		status:    StatusCloned,
		commit:    head,
		remoteURL: pointer.ToString(url),
		pending:   pointer.ToInt(0),
		conflicts: pointer.ToBool(false),
	}
	return &CloneResult{Path: localPath, Commit: head}, b, nil
}

// RegisterDevice creates the sync status singleton under name if it does not
// exist yet and returns it.
func (c *SyncCoordinator) RegisterDevice(name string) (*model.SyncStatus, error) {
	if err := validation.Validate(name, validation.Required); err != nil {
		return nil, fmt.Errorf("%w: device name: %v", ErrInvalidInput, err)
	}
	return c.ensureDevice(name)
}

// DeviceStatus returns the sync status singleton.
func (c *SyncCoordinator) DeviceStatus() (*model.SyncStatus, error) {
	status, err := c.store.GetSyncStatus()
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}
	if status == nil {
		return nil, fmt.Errorf("sync status: %w", ErrNotFound)
	}
	return status, nil
}

// SyncLog returns the most recent sync history entries, newest first.
func (c *SyncCoordinator) SyncLog(limit int) ([]*model.SyncHistory, error) {
	entries, err := c.store.ListSyncHistory(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync history: %w", err)
	}
	return entries, nil
}
