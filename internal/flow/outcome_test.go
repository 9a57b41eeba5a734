package flow_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"flowstate-go/internal/flow"
	"flowstate-go/internal/testutil"
)

// newFakeRemoteFixture returns an initialized working tree with a remote and
// one pending change, backed by FakeVCS.
func newFakeRemoteFixture(t *testing.T) (*syncFixture, *testutil.FakeVCS) {
	t.Helper()
	ctx := context.Background()
	vcs := testutil.NewFakeVCS()
	f := newSyncFixture(t, vcs, "desk")
	if _, err := f.sync.Init(ctx, f.root); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := f.sync.SetRemote(ctx, f.root, "https://example.com/flow.git"); err != nil {
		t.Fatalf("SetRemote() error = %v", err)
	}
	vcs.Touch(f.root, "projects/project_1/attachments/a.txt")
	return f, vcs
}

func TestSyncCoordinator_Outcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("successful sync stamps last sync", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)

		outcome, err := f.sync.Sync(ctx, f.root, "")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		s, ok := outcome.(flow.Synced)
		if !ok || !s.Pushed || !s.Committed {
			t.Fatalf("outcome = %#v, want pushed Synced", outcome)
		}
		if outcome.Status() != flow.StatusSynced {
			t.Errorf("Status() = %q", outcome.Status())
		}

		device, err := f.sync.DeviceStatus()
		if err != nil {
			t.Fatal(err)
		}
		if device.LastSyncAt == nil || !device.LastSyncAt.Equal(f.clock.Now()) {
			t.Errorf("LastSyncAt = %v, want %v", device.LastSyncAt, f.clock.Now())
		}
		if device.LastSyncCommit == nil || *device.LastSyncCommit != s.Commit.Hash {
			t.Errorf("LastSyncCommit = %v, want %s", device.LastSyncCommit, s.Commit.Hash)
		}
		if pull, push, _ := vcs.Calls(); pull != 1 || push != 1 {
			t.Errorf("pull=%d push=%d, want 1/1", pull, push)
		}
	})

	t.Run("missing upstream branch still pushes", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		vcs.PullErr = fmt.Errorf("%w: couldn't find remote ref main", flow.ErrNoUpstream)

		outcome, err := f.sync.Sync(ctx, f.root, "")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if s, ok := outcome.(flow.Synced); !ok || !s.Pushed {
			t.Errorf("outcome = %#v, want pushed Synced", outcome)
		}
	})

	t.Run("pull failure skips push", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		vcs.PullErr = &flow.ToolError{Args: []string{"pull"}, Output: "fatal: unable to access", Err: errors.New("exit status 1")}

		outcome, err := f.sync.Sync(ctx, f.root, "")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		p, ok := outcome.(flow.PartialSync)
		if !ok {
			t.Fatalf("outcome = %#v, want PartialSync", outcome)
		}
		if !p.Committed || p.PullError == "" {
			t.Errorf("partial = %+v", p)
		}
		if _, push, _ := vcs.Calls(); push != 0 {
			t.Errorf("push calls = %d, want 0", push)
		}
		if got := lastHistory(t, f); got != "sync/partial" {
			t.Errorf("history = %s, want sync/partial", got)
		}
	})

	t.Run("push failure keeps local commit", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		vcs.PushErr = &flow.ToolError{Args: []string{"push"}, Output: "rejected", Err: errors.New("exit status 1")}

		outcome, err := f.sync.Sync(ctx, f.root, "")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		s, ok := outcome.(flow.Synced)
		if !ok {
			t.Fatalf("outcome = %#v, want Synced", outcome)
		}
		if s.Pushed || s.PushError == "" || !s.Committed {
			t.Errorf("synced = %+v, want unpushed with error", s)
		}
		head := vcs.Repo(f.root).Commits
		if s.Commit == nil || s.Commit.Hash != head[len(head)-1].Hash {
			t.Errorf("commit = %+v, want local HEAD", s.Commit)
		}
		device, err := f.sync.DeviceStatus()
		if err != nil {
			t.Fatal(err)
		}
		if device.LastSyncAt != nil {
			t.Errorf("LastSyncAt = %v, want nil after failed push", device.LastSyncAt)
		}
	})

	t.Run("conflict aborts rebase and flags status", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		vcs.PullErr = fmt.Errorf("%w: CONFLICT (content)", flow.ErrConflict)

		outcome, err := f.sync.Sync(ctx, f.root, "")
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if _, ok := outcome.(flow.Conflict); !ok {
			t.Fatalf("outcome = %#v, want Conflict", outcome)
		}
		if pull, push, abort := vcs.Calls(); pull != 1 || push != 0 || abort != 1 {
			t.Errorf("pull=%d push=%d abort=%d, want 1/0/1", pull, push, abort)
		}
		device, err := f.sync.DeviceStatus()
		if err != nil {
			t.Fatal(err)
		}
		if !device.HasConflicts {
			t.Error("HasConflicts = false after conflict")
		}

		vcs.PullErr = nil
		if _, err := f.sync.Sync(ctx, f.root, ""); err != nil {
			t.Fatal(err)
		}
		device, err = f.sync.DeviceStatus()
		if err != nil {
			t.Fatal(err)
		}
		if device.HasConflicts {
			t.Error("HasConflicts still set after a clean sync")
		}
	})

	t.Run("explicit message", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		if _, err := f.sync.Sync(ctx, f.root, "add wiring notes"); err != nil {
			t.Fatal(err)
		}
		commits := vcs.Repo(f.root).Commits
		if got := commits[len(commits)-1].Message; got != "add wiring notes" {
			t.Errorf("message = %q", got)
		}
	})
}

func TestSyncCoordinator_Overlap(t *testing.T) {
	ctx := context.Background()

	t.Run("overlapping calls on one coordinator", func(t *testing.T) {
		f, vcs := newFakeRemoteFixture(t)
		vcs.PullStarted = make(chan struct{})
		vcs.PullRelease = make(chan struct{})

		done := make(chan error, 1)
		go func() {
			_, err := f.sync.Sync(ctx, f.root, "")
			done <- err
		}()
		<-vcs.PullStarted

		if _, err := f.sync.Sync(ctx, f.root, ""); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("overlapping Sync() error = %v, want ErrSyncInProgress", err)
		}
		if _, err := f.sync.SetRemote(ctx, f.root, "https://example.com/other.git"); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("overlapping SetRemote() error = %v, want ErrSyncInProgress", err)
		}
		if _, err := f.sync.Init(ctx, f.root); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("overlapping Init() error = %v, want ErrSyncInProgress", err)
		}
		if _, err := f.sync.Status(ctx, f.root); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("overlapping Status() error = %v, want ErrSyncInProgress", err)
		}

		close(vcs.PullRelease)
		if err := <-done; err != nil {
			t.Errorf("first Sync() error = %v", err)
		}
	})

	t.Run("lock held by another process", func(t *testing.T) {
		f, _ := newFakeRemoteFixture(t)
		other := flock.New(filepath.Join(f.root, ".git", "flowstate-sync.lock"))
		locked, err := other.TryLock()
		if err != nil || !locked {
			t.Fatalf("TryLock() = %v, %v", locked, err)
		}
		defer other.Unlock()

		if _, err := f.sync.Sync(ctx, f.root, ""); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("Sync() error = %v, want ErrSyncInProgress", err)
		}
		if got := lastHistory(t, f); got != "sync/error" {
			t.Errorf("history = %s, want sync/error", got)
		}

		if _, err := f.sync.Status(ctx, f.root); !errors.Is(err, flow.ErrSyncInProgress) {
			t.Errorf("Status() error = %v, want ErrSyncInProgress", err)
		}
		if got := lastHistory(t, f); got != "status/error" {
			t.Errorf("history = %s, want status/error", got)
		}
	})
}

func TestSyncCoordinator_Devices(t *testing.T) {
	f := newSyncFixture(t, testutil.NewFakeVCS(), "desk")

	if _, err := f.sync.DeviceStatus(); !errors.Is(err, flow.ErrNotFound) {
		t.Errorf("DeviceStatus() error = %v, want ErrNotFound", err)
	}
	if _, err := f.sync.RegisterDevice(""); !errors.Is(err, flow.ErrInvalidInput) {
		t.Errorf("RegisterDevice(\"\") error = %v, want ErrInvalidInput", err)
	}

	first, err := f.sync.RegisterDevice("workbench")
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	second, err := f.sync.RegisterDevice("other-name")
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	if first.DeviceID != second.DeviceID || second.DeviceName != "workbench" {
		t.Errorf("second registration = %+v, want existing %+v", second, first)
	}
}

func TestSyncOutcome_Accessors(t *testing.T) {
	head := &flow.Commit{Hash: "abc"}
	tests := []struct {
		outcome   flow.SyncOutcome
		status    string
		committed bool
	}{
		{flow.CommittedLocalOnly{Committed: true, Commit: head}, flow.StatusCommittedLocalOnly, true},
		{flow.Synced{Pushed: true, Commit: head}, flow.StatusSynced, false},
		{flow.Conflict{Committed: true, Commit: head}, flow.StatusConflict, true},
		{flow.PartialSync{Commit: head}, flow.StatusPartial, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if tt.outcome.Status() != tt.status {
				t.Errorf("Status() = %q, want %q", tt.outcome.Status(), tt.status)
			}
			if tt.outcome.WasCommitted() != tt.committed {
				t.Errorf("WasCommitted() = %v, want %v", tt.outcome.WasCommitted(), tt.committed)
			}
			if tt.outcome.Head() != head {
				t.Errorf("Head() = %v, want %v", tt.outcome.Head(), head)
			}
		})
	}
}
