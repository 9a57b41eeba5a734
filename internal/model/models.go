package model

import "time"

// Attachment is a file ingested into a project, either copied into the
// project's bundle or referenced at its original location.
type Attachment struct {
	ID          int64
	ProjectID   int64
	ComponentID *int64
	ProblemID   *int64
	FileName    string
	// FilePath is relative to the data root for bundled files and absolute
	// for external ones.
	FilePath         string
	FileType         string  // lower-case extension without the dot
	FileSize         int64
	FileHash         *string // hex SHA-256; nil when hashing failed
	IsExternal       bool
	UserDescription  *string
	Tags             []string
	AIDescription    *string
	AISummary        *string
	ContentExtracted bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	IndexedAt        *time.Time
}

// AttachmentUpdate carries the mutable attachment fields. Nil fields are left alone.
type AttachmentUpdate struct {
	UserDescription  *string
	Tags             *[]string
	AIDescription    *string
	AISummary        *string
	ContentExtracted *bool
}

// HasAIFields reports whether the update touches AI-derived fields.
func (u AttachmentUpdate) HasAIFields() bool {
	return u.AIDescription != nil || u.AISummary != nil
}

// AttachmentFilter narrows attachment listings. Nil fields match everything.
type AttachmentFilter struct {
	ProjectID   *int64
	ComponentID *int64
	ProblemID   *int64
}

// ContentLocation is a described span inside an attachment's content.
type ContentLocation struct {
	ID            int64
	AttachmentID  int64
	Description   string
	Category      *string
	LocationType  string // e.g. "line_range", "page", "byte_offset"
	StartLocation string
	EndLocation   *string
	Snippet       *string
	ProblemID     *int64
	SolutionID    *int64
	LearningID    *int64
	ComponentID   *int64
	CreatedAt     time.Time
}

// NewContentLocation is the input for recording a content location.
type NewContentLocation struct {
	AttachmentID  int64
	Description   string
	Category      *string
	LocationType  string
	StartLocation string
	EndLocation   *string
	Snippet       *string
	ProblemID     *int64
	SolutionID    *int64
	LearningID    *int64
	ComponentID   *int64
}

// ContentQuery searches indexed content locations.
type ContentQuery struct {
	Text      string
	ProjectID *int64
	FileTypes []string
	Limit     int
}

// ContentMatch is a content location joined with its attachment's file info.
type ContentMatch struct {
	Location  ContentLocation
	ProjectID int64
	FileName  string
	FilePath  string
	FileType  string
}

// Extraction links a derived domain record back to the attachment it was read from.
type Extraction struct {
	ID             int64
	AttachmentID   int64
	RecordType     string // "problem", "learning", "solution", ...
	RecordID       int64
	SourceLocation *string
	SourceSnippet  *string
	Confidence     *float64 // in [0,1]
	UserReviewed   bool
	UserApproved   *bool // nil = undecided
	CreatedAt      time.Time
	ReviewedAt     *time.Time
}

// NewExtraction is the input for recording an extraction.
type NewExtraction struct {
	AttachmentID   int64
	RecordType     string
	RecordID       int64
	SourceLocation *string
	SourceSnippet  *string
	Confidence     *float64
}

// SyncStatus is the per-install sync singleton.
type SyncStatus struct {
	ID             int64
	DeviceName     string
	DeviceID       string // UUID
	RemoteURL      *string
	LastSyncAt     *time.Time
	LastSyncCommit *string
	PendingChanges int
	HasConflicts   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncStatusUpdate carries the mutable sync status fields. Nil fields are left alone.
type SyncStatusUpdate struct {
	RemoteURL      *string
	LastSyncAt     *time.Time
	LastSyncCommit *string
	PendingChanges *int
	HasConflicts   *bool
	UpdatedAt      time.Time
}

// SyncHistory is one append-only entry in the sync operation log.
type SyncHistory struct {
	ID           int64
	DeviceID     string
	Operation    string // "init", "status", "sync", "clone", ...
	CommitHash   *string
	FilesChanged *int
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
}
