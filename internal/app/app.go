package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"flowstate-go/internal/bundle"
	"flowstate-go/internal/config"
	"flowstate-go/internal/database"
	"flowstate-go/internal/flow"
	"flowstate-go/internal/fs"
	"flowstate-go/internal/git"
	"flowstate-go/internal/model"
	"flowstate-go/internal/watch"
)

// FlowApp is the application layer between the CLI and the flow services.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type FlowApp struct {
	cfg         *config.Config
	db          *database.SQLiteDatabase
	state       *database.SQLiteDatabase
	logger      *slog.Logger
	logCloser   io.Closer
	op          *Operation
	attachments *flow.AttachmentStore
	content     *flow.ContentIndex
	sync        *flow.SyncCoordinator
}

// NewFlowApp creates a fully wired FlowApp from the given config.
// operation identifies the CLI command being run (e.g. "AttachAdd", "Sync").
// The caller must call Close when done.
func NewFlowApp(cfg *config.Config, operation string) (*FlowApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(operation, time.Now())
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.LogLevel, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, state, err := openStores(cfg)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	a, err := assemble(cfg, db, state, logger, logCloser, op)
	if err != nil {
		db.Close()
		state.Close()
		logCloser.Close()
		return nil, err
	}
	return a, nil
}

// openStores opens the record store and this install's sync state store.
// The sync state lives under flow.LocalStateDir so that recording a sync
// never modifies a tracked file.
func openStores(cfg *config.Config) (*database.SQLiteDatabase, *database.SQLiteDatabase, error) {
	db, err := database.NewRecordStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("creating database: %w", err)
	}

	stateCfg := config.DatabaseConfig{Type: config.DatabaseMemory}
	if cfg.Database.Type == config.DatabaseSQLite {
		stateCfg = config.DatabaseConfig{
			Type: config.DatabaseSQLite,
			Path: filepath.Join(cfg.DataRoot, flow.LocalStateDir, "state.db"),
		}
	}
	state, err := database.NewRecordStoreFromConfig(stateCfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating sync state database: %w", err)
	}
	return db, state, nil
}

// CloneDataRoot clones the repository at url into the configured data root
// and returns an app wired to the cloned tree.
//
// The data root must be empty for the clone, so no store can be opened
// beforehand. The clone's bookkeeping is kept in memory and appended to the
// sync state store once it is open.
func CloneDataRoot(ctx context.Context, cfg *config.Config, url string) (*FlowApp, *flow.CloneResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation("Clone", time.Now())
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.LogLevel, op.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	scratch, err := database.NewRecordStoreFromConfig(config.DatabaseConfig{Type: config.DatabaseMemory})
	if err != nil {
		logCloser.Close()
		return nil, nil, fmt.Errorf("creating scratch database: %w", err)
	}
	defer scratch.Close()

	cloner := newSyncCoordinator(cfg, scratch, logger)
	res, err := cloner.Clone(ctx, url, cfg.DataRoot)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}

	db, state, err := openStores(cfg)
	if err != nil {
		logCloser.Close()
		return nil, nil, fmt.Errorf("opening cloned data root: %w", err)
	}
	a, err := assemble(cfg, db, state, logger, logCloser, op)
	if err != nil {
		db.Close()
		state.Close()
		logCloser.Close()
		return nil, nil, err
	}

	device, err := a.sync.RegisterDevice(cfg.DeviceName)
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("registering device: %w", err)
	}
	if err := carryHistory(scratch, state, device.DeviceID); err != nil {
		logger.Warn("copying clone history", "error", err)
	}
	upd := model.SyncStatusUpdate{RemoteURL: &url, UpdatedAt: time.Now()}
	if _, err := state.UpdateSyncStatus(upd); err != nil {
		logger.Warn("recording remote url", "error", err)
	}
	return a, res, nil
}

// carryHistory appends every history entry of from to to, oldest first,
// under deviceID.
func carryHistory(from, to flow.SyncStore, deviceID string) error {
	entries, err := from.ListSyncHistory(0)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		h := *entries[i]
		h.ID = 0
		h.DeviceID = deviceID
		if err := to.AppendSyncHistory(&h); err != nil {
			return err
		}
	}
	return nil
}

func newSyncCoordinator(cfg *config.Config, store flow.SyncStore, logger *slog.Logger) *flow.SyncCoordinator {
	opts := flow.SyncOptions{
		DeviceName:     cfg.DeviceName,
		Remote:         cfg.Git.Remote,
		Branch:         cfg.Git.Branch,
		IgnorePatterns: ignorePatterns(cfg),
	}
	vcs := git.NewClient(cfg.Git.Binary, cfg.Git.Timeout())
	return flow.NewSyncCoordinator(store, vcs, fs.NewOSFilesystemManager(), &slogAdapter{l: logger},
		flow.RealClock{}, flow.UUIDGenerator{}, opts)
}

func assemble(cfg *config.Config, db, state *database.SQLiteDatabase, logger *slog.Logger, logCloser io.Closer, op *Operation) (*FlowApp, error) {
	b, err := bundle.NewFileSystemBundle(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("creating bundle: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	log := &slogAdapter{l: logger}
	clock := flow.RealClock{}

	return &FlowApp{
		cfg:         cfg,
		db:          db,
		state:       state,
		logger:      logger,
		logCloser:   logCloser,
		op:          op,
		attachments: flow.NewAttachmentStore(db, b, fsmgr, log, clock),
		content:     flow.NewContentIndex(db, log, clock),
		sync:        newSyncCoordinator(cfg, state, logger),
	}, nil
}

func (a *FlowApp) Config() *config.Config { return a.cfg }

func (a *FlowApp) Attachments() *flow.AttachmentStore { return a.attachments }

func (a *FlowApp) Content() *flow.ContentIndex { return a.content }

func (a *FlowApp) SyncCoordinator() *flow.SyncCoordinator { return a.sync }

// Fail marks the running operation as failed. Close reports it.
func (a *FlowApp) Fail(err error) {
	a.op.Fail(err)
}

// Attach resolves each raw path and ingests it into projectID's bundle.
// A single path is ingested directly; several are ingested concurrently and
// returned in argument order.
func (a *FlowApp) Attach(rawPaths []string, projectID int64, opts flow.IngestOptions) ([]*model.Attachment, error) {
	paths := make([]string, len(rawPaths))
	for i, raw := range rawPaths {
		p, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		paths[i] = p
	}

	if len(paths) == 1 {
		att, err := a.attachments.Ingest(paths[0], projectID, opts)
		if err != nil {
			return nil, err
		}
		return []*model.Attachment{att}, nil
	}
	return a.attachments.IngestMany(paths, projectID, opts)
}

// InitSync makes the data root a version-controlled working tree.
func (a *FlowApp) InitSync(ctx context.Context) (*flow.InitResult, error) {
	return a.sync.Init(ctx, a.cfg.DataRoot)
}

// SyncStatus reports the state of the data root.
func (a *FlowApp) SyncStatus(ctx context.Context) (*flow.StatusReport, error) {
	return a.sync.Status(ctx, a.cfg.DataRoot)
}

// SetRemote points the data root at url.
func (a *FlowApp) SetRemote(ctx context.Context, url string) (*flow.RemoteResult, error) {
	return a.sync.SetRemote(ctx, a.cfg.DataRoot, url)
}

// Sync commits, pulls and pushes the data root. An empty message selects the
// timestamped default.
func (a *FlowApp) Sync(ctx context.Context, message string) (flow.SyncOutcome, error) {
	return a.sync.Sync(ctx, a.cfg.DataRoot, message)
}

// History returns up to limit commits of the data root, newest first.
func (a *FlowApp) History(ctx context.Context, limit int) ([]flow.Commit, error) {
	return a.sync.History(ctx, a.cfg.DataRoot, limit)
}

// Watch syncs the data root whenever it changes until ctx is cancelled.
// onSync, if set, is called after every sync attempt.
func (a *FlowApp) Watch(ctx context.Context, onSync func(flow.SyncOutcome, error)) error {
	w, err := watch.New(a.cfg.DataRoot, a.sync, &slogAdapter{l: a.logger.With("component", "watch")}, watch.Options{
		Debounce:    a.cfg.Watch.Debounce(),
		Ignore:      ignorePatterns(a.cfg),
		SyncOnStart: true,
		OnSync:      onSync,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	return w.Run(ctx)
}

// ignorePatterns returns the configured ignore patterns plus the log
// directory when it lives inside the data root. They go into the generated
// ignore file and the watcher's filter.
func ignorePatterns(cfg *config.Config) []string {
	patterns := append([]string{}, cfg.Filesystem.Ignore...)
	if rel, ok := relativeTo(cfg.DataRoot, cfg.LogDir); ok {
		patterns = append(patterns, rel, rel+"/*")
	}
	return patterns
}

// relativeTo returns target relative to root in slash form, if target is
// strictly inside root.
func relativeTo(root, target string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Close reports the operation's outcome and closes all resources.
func (a *FlowApp) Close() error {
	var firstErr error

	args := []any{"operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(time.Now()).Round(time.Millisecond)}
	if a.op.Failed() {
		a.logger.Warn("operation finished", append(args, "error", a.op.Error)...)
	} else {
		a.logger.Debug("operation finished", args...)
	}

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if err := a.state.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing sync state database: %w", err)
	}

	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}
