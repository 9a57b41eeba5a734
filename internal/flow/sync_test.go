package flow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flowstate-go/internal/flow"
	fsys "flowstate-go/internal/fs"
	"flowstate-go/internal/git"
	"flowstate-go/internal/testutil"
)

type syncFixture struct {
	sync  *flow.SyncCoordinator
	db    flow.RecordStore
	root  string
	clock *testutil.StubClock
}

func newSyncFixture(t *testing.T, vcs flow.VersionControl, device string) *syncFixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	coord := flow.NewSyncCoordinator(db, vcs, fsys.NewOSFilesystemManager(), flow.NewNopLogger(),
		clock, testutil.NewStubIDGenerator(), flow.DefaultSyncOptions(device))
	return &syncFixture{
		sync:  coord,
		db:    db,
		root:  filepath.Join(t.TempDir(), "data"),
		clock: clock,
	}
}

func newGitClient(t *testing.T) *git.Client {
	t.Helper()
	testutil.RequireGit(t)
	testutil.IsolateGit(t)
	return git.NewClient("git", 30*time.Second)
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	bare := t.TempDir()
	testutil.RunGit(t, bare, "init", "--bare")
	testutil.RunGit(t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	return bare
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func lastHistory(t *testing.T, f *syncFixture) string {
	t.Helper()
	entries, err := f.sync.SyncLog(1)
	if err != nil {
		t.Fatalf("SyncLog() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("SyncLog() len = %d, want 1", len(entries))
	}
	return entries[0].Operation + "/" + entries[0].Status
}

func TestSyncCoordinator_SyncUninitialized(t *testing.T) {
	f := newSyncFixture(t, newGitClient(t), "laptop")

	_, err := f.sync.Sync(context.Background(), f.root, "")
	if !errors.Is(err, flow.ErrNotInitialized) {
		t.Fatalf("Sync() error = %v, want ErrNotInitialized", err)
	}
	if _, err := os.Stat(f.root); !os.IsNotExist(err) {
		t.Errorf("Sync() touched the filesystem: stat err = %v", err)
	}
	if got := lastHistory(t, f); got != "sync/error" {
		t.Errorf("history = %s, want sync/error", got)
	}
}

func TestSyncCoordinator_Init(t *testing.T) {
	ctx := context.Background()
	vcs := newGitClient(t)
	f := newSyncFixture(t, vcs, "laptop")

	res, err := f.sync.Init(ctx, f.root)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if res.AlreadyInitialized || res.Commit == nil || res.Commit.Message != "FlowState initialized" {
		t.Errorf("Init() = %+v", res)
	}
	for _, name := range []string{".gitignore", "README.md", "projects"} {
		if _, err := os.Stat(filepath.Join(f.root, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	if got := lastHistory(t, f); got != "init/initialized" {
		t.Errorf("history = %s, want init/initialized", got)
	}

	device, err := f.sync.DeviceStatus()
	if err != nil {
		t.Fatalf("DeviceStatus() error = %v", err)
	}
	if device.DeviceName != "laptop" || device.DeviceID != "id-1" {
		t.Errorf("device = %+v", device)
	}

	t.Run("second init is a no-op", func(t *testing.T) {
		again, err := f.sync.Init(ctx, f.root)
		if err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if !again.AlreadyInitialized {
			t.Error("AlreadyInitialized = false, want true")
		}
		commits, err := vcs.Log(ctx, f.root, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(commits) != 1 {
			t.Errorf("commits = %d, want 1", len(commits))
		}
		if got := lastHistory(t, f); got != "init/already_initialized" {
			t.Errorf("history = %s, want init/already_initialized", got)
		}
	})

	t.Run("ignore list covers defaults", func(t *testing.T) {
		writeFile(t, f.root, "flowstate.db-wal", "x")
		writeFile(t, f.root, ".DS_Store", "x")
		writeFile(t, f.root, "flowstate.db.local-backup-20240101", "x")
		lines, err := vcs.StatusPorcelain(ctx, f.root)
		if err != nil {
			t.Fatal(err)
		}
		if len(lines) != 0 {
			t.Errorf("ignored files show as changes: %q", lines)
		}
	})
}

func TestSyncCoordinator_SyncWithoutRemote(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, newGitClient(t), "laptop")
	if _, err := f.sync.Init(ctx, f.root); err != nil {
		t.Fatal(err)
	}
	writeFile(t, f.root, "projects/project_1/attachments/notes.txt", "hello")

	outcome, err := f.sync.Sync(ctx, f.root, "")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	local, ok := outcome.(flow.CommittedLocalOnly)
	if !ok {
		t.Fatalf("outcome = %T, want CommittedLocalOnly", outcome)
	}
	if !local.Committed || local.Commit == nil {
		t.Errorf("outcome = %+v", local)
	}
	if local.Commit != nil && local.Commit.Message != "FlowState sync - 2024-01-15 10:30:00" {
		t.Errorf("message = %q", local.Commit.Message)
	}

	report, err := f.sync.Status(ctx, f.root)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.PendingChanges != 0 || report.HasRemote {
		t.Errorf("report = %+v", report)
	}

	entries, err := f.sync.SyncLog(5)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range entries {
		if e.Operation == flow.OpSync && e.Status == flow.StatusCommittedLocalOnly {
			found = true
			if e.FilesChanged == nil || *e.FilesChanged != 1 {
				t.Errorf("FilesChanged = %v, want 1", e.FilesChanged)
			}
			if e.DeviceID != "id-1" {
				t.Errorf("DeviceID = %q, want id-1", e.DeviceID)
			}
		}
	}
	if !found {
		t.Error("no sync/committed_local_only history entry")
	}

	t.Run("clean tree does not commit", func(t *testing.T) {
		outcome, err := f.sync.Sync(ctx, f.root, "manual")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if outcome.WasCommitted() {
			t.Error("WasCommitted() = true on clean tree")
		}
		if outcome.Head() == nil || outcome.Head().Hash != local.Commit.Hash {
			t.Errorf("Head() = %+v, want %s", outcome.Head(), local.Commit.Hash)
		}
	})
}

func TestSyncCoordinator_SetRemote(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, newGitClient(t), "laptop")
	if _, err := f.sync.Init(ctx, f.root); err != nil {
		t.Fatal(err)
	}

	first, err := f.sync.SetRemote(ctx, f.root, "https://example.com/a.git")
	if err != nil {
		t.Fatalf("SetRemote() error = %v", err)
	}
	if first.Action != flow.StatusAdded {
		t.Errorf("first Action = %q, want added", first.Action)
	}
	second, err := f.sync.SetRemote(ctx, f.root, "https://example.com/b.git")
	if err != nil {
		t.Fatalf("SetRemote() error = %v", err)
	}
	if second.Action != flow.StatusUpdated {
		t.Errorf("second Action = %q, want updated", second.Action)
	}

	device, err := f.sync.DeviceStatus()
	if err != nil {
		t.Fatal(err)
	}
	if device.RemoteURL == nil || *device.RemoteURL != "https://example.com/b.git" {
		t.Errorf("RemoteURL = %v", device.RemoteURL)
	}

	report, err := f.sync.Status(ctx, f.root)
	if err != nil {
		t.Fatal(err)
	}
	if !report.HasRemote || report.RemoteURL != "https://example.com/b.git" || report.Branch != "main" {
		t.Errorf("report = %+v", report)
	}

	if _, err := f.sync.SetRemote(ctx, f.root, ""); !errors.Is(err, flow.ErrInvalidInput) {
		t.Errorf("SetRemote(\"\") error = %v, want ErrInvalidInput", err)
	}
	if _, err := f.sync.SetRemote(ctx, filepath.Join(t.TempDir(), "none"), "x"); !errors.Is(err, flow.ErrNotInitialized) {
		t.Errorf("SetRemote() on uninitialized path error = %v, want ErrNotInitialized", err)
	}
}

func TestSyncCoordinator_RoundTripAndConflict(t *testing.T) {
	ctx := context.Background()
	vcs := newGitClient(t)
	bare := newBareRemote(t)

	a := newSyncFixture(t, vcs, "desk")
	if _, err := a.sync.Init(ctx, a.root); err != nil {
		t.Fatal(err)
	}
	if _, err := a.sync.SetRemote(ctx, a.root, bare); err != nil {
		t.Fatal(err)
	}
	first, err := a.sync.Sync(ctx, a.root, "")
	if err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	synced, ok := first.(flow.Synced)
	if !ok || !synced.Pushed {
		t.Fatalf("first Sync() = %#v, want pushed Synced", first)
	}
	state, err := a.sync.State(ctx, a.root)
	if err != nil {
		t.Fatal(err)
	}
	if state != flow.StateSynced {
		t.Errorf("State() = %s, want synced", state)
	}

	b := newSyncFixture(t, vcs, "laptop")
	cloned, err := b.sync.Clone(ctx, bare, b.root)
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if cloned.Commit == nil || cloned.Commit.Hash != synced.Commit.Hash {
		t.Errorf("clone HEAD = %+v, want %s", cloned.Commit, synced.Commit.Hash)
	}
	if got := lastHistory(t, b); got != "clone/cloned" {
		t.Errorf("history = %s, want clone/cloned", got)
	}

	writeFile(t, b.root, "README.md", "edited on laptop\n")
	if out, err := b.sync.Sync(ctx, b.root, "laptop edit"); err != nil {
		t.Fatalf("laptop Sync() error = %v", err)
	} else if s, ok := out.(flow.Synced); !ok || !s.Pushed {
		t.Fatalf("laptop Sync() = %#v, want pushed Synced", out)
	}

	writeFile(t, a.root, "README.md", "edited on desk\n")
	outcome, err := a.sync.Sync(ctx, a.root, "desk edit")
	if err != nil {
		t.Fatalf("desk Sync() error = %v", err)
	}
	conflict, ok := outcome.(flow.Conflict)
	if !ok {
		t.Fatalf("desk Sync() = %#v, want Conflict", outcome)
	}
	if !conflict.Committed || conflict.Detail == "" {
		t.Errorf("conflict = %+v", conflict)
	}

	head := testutil.RunGit(t, a.root, "rev-parse", "HEAD")
	if conflict.Commit == nil || conflict.Commit.Hash != head {
		t.Errorf("conflict commit = %+v, want HEAD %s", conflict.Commit, head)
	}
	if msg := testutil.RunGit(t, a.root, "log", "-1", "--format=%s"); msg != "desk edit" {
		t.Errorf("HEAD message = %q, want local commit", msg)
	}
	if _, err := os.Stat(filepath.Join(a.root, ".git", "rebase-merge")); !os.IsNotExist(err) {
		t.Errorf("rebase still in progress: %v", err)
	}

	state, err = a.sync.State(ctx, a.root)
	if err != nil {
		t.Fatal(err)
	}
	if state != flow.StateConflict {
		t.Errorf("State() = %s, want conflict", state)
	}
	if got := lastHistory(t, a); got != "sync/conflict" {
		t.Errorf("history = %s, want sync/conflict", got)
	}
}

func TestSyncCoordinator_Clone(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, newGitClient(t), "laptop")

	t.Run("refuses non-empty directory", func(t *testing.T) {
		writeFile(t, f.root, "keep.txt", "mine")
		_, err := f.sync.Clone(ctx, newBareRemote(t), f.root)
		if !errors.Is(err, flow.ErrDirectoryNotEmpty) {
			t.Fatalf("Clone() error = %v, want ErrDirectoryNotEmpty", err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, "keep.txt"))
		if err != nil || string(data) != "mine" {
			t.Errorf("existing content changed: %q, %v", data, err)
		}
	})

	t.Run("rejects empty url", func(t *testing.T) {
		_, err := f.sync.Clone(ctx, "", filepath.Join(t.TempDir(), "x"))
		if !errors.Is(err, flow.ErrInvalidInput) {
			t.Errorf("Clone() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestSyncCoordinator_Status(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, newGitClient(t), "laptop")

	report, err := f.sync.Status(ctx, f.root)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.Initialized {
		t.Error("Initialized = true for missing path")
	}
	state, err := f.sync.State(ctx, f.root)
	if err != nil || state != flow.StateUninitialized {
		t.Errorf("State() = %s, %v; want uninitialized", state, err)
	}

	if _, err := f.sync.Init(ctx, f.root); err != nil {
		t.Fatal(err)
	}
	writeFile(t, f.root, "a.txt", "a")
	writeFile(t, f.root, "b.txt", "b")

	report, err = f.sync.Status(ctx, f.root)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !report.Initialized || report.PendingChanges != 2 || report.LastCommit == nil {
		t.Errorf("report = %+v", report)
	}
	if got := lastHistory(t, f); got != "status/ok" {
		t.Errorf("history = %s, want status/ok", got)
	}
	device, err := f.sync.DeviceStatus()
	if err != nil {
		t.Fatal(err)
	}
	if device.PendingChanges != 2 {
		t.Errorf("device pending = %d, want 2", device.PendingChanges)
	}
	state, err = f.sync.State(ctx, f.root)
	if err != nil || state != flow.StateInitialized {
		t.Errorf("State() = %s, %v; want initialized", state, err)
	}
}

func TestSyncCoordinator_StatusDuringSync(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, newGitClient(t), "laptop")
	if _, err := f.sync.Init(ctx, f.root); err != nil {
		t.Fatal(err)
	}

	for round := 0; round < 20; round++ {
		writeFile(t, f.root, fmt.Sprintf("notes/%d.md", round), "round")

		done := make(chan error, 1)
		go func() {
			_, err := f.sync.Sync(ctx, f.root, "")
			done <- err
		}()
		for i := 0; i < 5; i++ {
			if _, err := f.sync.Status(ctx, f.root); err != nil && !errors.Is(err, flow.ErrSyncInProgress) {
				t.Errorf("round %d: Status() error = %v", round, err)
			}
		}
		if err := <-done; err != nil && !errors.Is(err, flow.ErrSyncInProgress) {
			t.Fatalf("round %d: Sync() error = %v", round, err)
		}
	}

	if _, err := f.sync.Sync(ctx, f.root, ""); err != nil {
		t.Fatalf("final Sync() error = %v", err)
	}
	report, err := f.sync.Status(ctx, f.root)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.PendingChanges != 0 {
		t.Errorf("PendingChanges = %d, want 0", report.PendingChanges)
	}
}
