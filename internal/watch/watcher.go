// Package watch triggers syncs when the working tree changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"flowstate-go/internal/flow"
	fsys "flowstate-go/internal/fs"
)

// DefaultDebounce is how long the tree must stay quiet before a sync starts.
const DefaultDebounce = 2 * time.Second

// Syncer is the part of flow.SyncCoordinator the watcher drives.
type Syncer interface {
	Sync(ctx context.Context, path, message string) (flow.SyncOutcome, error)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Ignore lists extra patterns whose changes never trigger a sync,
	// on top of the working tree's own ignore list.
	Ignore []string
	// SyncOnStart runs one sync before waiting for changes.
	SyncOnStart bool
	// OnSync, if set, is called after every sync attempt.
	OnSync func(flow.SyncOutcome, error)
}

// Watcher watches a working tree and runs a debounced sync after changes.
type Watcher struct {
	root    string
	syncer  Syncer
	logger  flow.Logger
	matcher *fsys.IgnoreMatcher
	opts    Options
}

// New creates a Watcher for the working tree at root.
func New(root string, syncer Syncer, logger flow.Logger, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	matcher, err := fsys.NewWorkTreeMatcher(abs, opts.Ignore)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{root: abs, syncer: syncer, logger: logger, matcher: matcher, opts: opts}, nil
}

// Run watches until ctx is cancelled. Directories created while running are
// added to the watch list.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.root); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	if w.opts.SyncOnStart {
		trigger <- struct{}{}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.watch(ctx, fw, trigger) })
	g.Go(func() error { return w.syncLoop(ctx, trigger) })

	w.logger.Info("watcher started", "root", w.root, "debounce", w.opts.Debounce)
	err = g.Wait()
	w.logger.Info("watcher stopped", "root", w.root)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) watch(ctx context.Context, fw *fsnotify.Watcher, trigger chan<- struct{}) error {
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			select {
			case trigger <- struct{}{}:
			default: // a sync is already queued
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil || w.matcher.Match(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addDirs(fw, ev.Name); err != nil {
						w.logger.Warn("watching new directory", "path", rel, "error", err)
					}
				}
			}

			w.logger.Debug("change detected", "path", rel, "op", ev.Op.String())
			timer.Reset(w.opts.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) syncLoop(ctx context.Context, trigger <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		}

		outcome, err := w.syncer.Sync(ctx, w.root, "")
		if errors.Is(err, flow.ErrSyncInProgress) {
			// Someone else is syncing; retry once the tree has settled again.
			w.logger.Debug("sync already running, retrying", "root", w.root)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.Debounce):
			}
			outcome, err = w.syncer.Sync(ctx, w.root, "")
		}

		switch {
		case err != nil:
			w.logger.Warn("watch sync failed", "root", w.root, "error", err)
		default:
			w.logger.Info("watch sync finished", "root", w.root, "status", outcome.Status())
		}
		if w.opts.OnSync != nil {
			w.opts.OnSync(outcome, err)
		}
	}
}

// addDirs adds root and every non-ignored directory below it.
func (w *Watcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.matcher.Match(rel) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
