package flow

// Status tags recorded in the sync history.
const (
	StatusInitialized        = "initialized"
	StatusAlreadyInitialized = "already_initialized"
	StatusOK                 = "ok"
	StatusAdded              = "added"
	StatusUpdated            = "updated"
	StatusCommittedLocalOnly = "committed_local_only"
	StatusSynced             = "synced"
	StatusConflict           = "conflict"
	StatusPartial            = "partial"
	StatusCloned             = "cloned"
	StatusError              = "error"
)

// SyncOutcome is the result of a Sync call. It is one of CommittedLocalOnly,
// Synced, Conflict or PartialSync; use a type switch to inspect it.
type SyncOutcome interface {
	// Status returns the history tag for the outcome.
	Status() string
	// WasCommitted reports whether the call created a local commit.
	WasCommitted() bool
	// Head returns the commit HEAD pointed at when the call finished.
	Head() *Commit

	isSyncOutcome()
}

// CommittedLocalOnly means no remote is configured; local changes were
// committed if there were any.
type CommittedLocalOnly struct {
	Committed bool
	Commit    *Commit
}

// Synced means the pull succeeded and a push was attempted. A failed push
// leaves Pushed false with the reason in PushError; the local commit is durable.
type Synced struct {
	Committed bool
	Pushed    bool
	PushError string
	Commit    *Commit
}

// Conflict means the pull could not be reconciled. The rebase was aborted and
// the local commit is still HEAD.
type Conflict struct {
	Committed bool
	Detail    string
	Commit    *Commit
}

// PartialSync means the pull failed for a reason other than a conflict or a
// missing remote branch. The push was skipped.
type PartialSync struct {
	Committed bool
	PullError string
	Commit    *Commit
}

func (CommittedLocalOnly) Status() string { return StatusCommittedLocalOnly }
func (Synced) Status() string             { return StatusSynced }
func (Conflict) Status() string           { return StatusConflict }
func (PartialSync) Status() string        { return StatusPartial }

func (o CommittedLocalOnly) WasCommitted() bool { return o.Committed }
func (o Synced) WasCommitted() bool             { return o.Committed }
func (o Conflict) WasCommitted() bool           { return o.Committed }
func (o PartialSync) WasCommitted() bool        { return o.Committed }

func (o CommittedLocalOnly) Head() *Commit { return o.Commit }
func (o Synced) Head() *Commit             { return o.Commit }
func (o Conflict) Head() *Commit           { return o.Commit }
func (o PartialSync) Head() *Commit        { return o.Commit }

func (CommittedLocalOnly) isSyncOutcome() {}
func (Synced) isSyncOutcome()             {}
func (Conflict) isSyncOutcome()           {}
func (PartialSync) isSyncOutcome()        {}
