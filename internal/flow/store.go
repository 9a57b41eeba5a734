package flow

import (
	"time"

	"flowstate-go/internal/model"
)

// RecordStore provides the structured-record storage the flow services need.
// Implementations serialize all calls through a single lock and must not be
// held across version-control calls. Finders return (nil, nil) when a record
// does not exist.
type RecordStore interface {
	// Attachment operations

	// CreateAttachment inserts a new attachment and fills in its ID.
	CreateAttachment(a *model.Attachment) error

	// FindAttachment returns an attachment by ID.
	FindAttachment(id int64) (*model.Attachment, error)

	// ListAttachments returns attachments matching the filter, newest first.
	ListAttachments(filter model.AttachmentFilter) ([]*model.Attachment, error)

	// FindAttachmentsByHash returns every attachment whose content hash matches.
	FindAttachmentsByHash(hash string) ([]*model.Attachment, error)

	// UpdateAttachment applies the non-nil fields of upd and returns the updated row.
	// indexedAt is written only when non-nil.
	UpdateAttachment(id int64, upd model.AttachmentUpdate, updatedAt time.Time, indexedAt *time.Time) (*model.Attachment, error)

	// DeleteAttachment removes an attachment together with its content
	// locations and extractions in one transaction.
	DeleteAttachment(id int64) error

	// ContentLocation operations

	// CreateContentLocation inserts a content location and fills in its ID.
	CreateContentLocation(loc *model.ContentLocation) error

	// ListContentLocations returns an attachment's locations ordered by start location.
	ListContentLocations(attachmentID int64) ([]*model.ContentLocation, error)

	// SearchContentLocations finds locations whose description or snippet contains q.Text.
	SearchContentLocations(q model.ContentQuery) ([]*model.ContentMatch, error)

	// DeleteContentLocation removes a content location.
	DeleteContentLocation(id int64) error

	// Extraction operations

	// CreateExtraction inserts an extraction and fills in its ID.
	CreateExtraction(e *model.Extraction) error

	// FindExtraction returns an extraction by ID.
	FindExtraction(id int64) (*model.Extraction, error)

	// ListExtractions returns an attachment's extractions, oldest first.
	// When pendingOnly is set, reviewed extractions are skipped.
	ListExtractions(attachmentID int64, pendingOnly bool) ([]*model.Extraction, error)

	// ReviewExtraction records a review decision.
	ReviewExtraction(id int64, reviewed bool, approved *bool, reviewedAt time.Time) (*model.Extraction, error)

	// DeleteExtraction removes an extraction.
	DeleteExtraction(id int64) error

	SyncStore

	// Close closes the underlying connection.
	Close() error
}

// SyncStore persists the per-install sync status singleton and the sync
// history. It must not be tracked by the working tree it describes.
type SyncStore interface {
	// GetSyncStatus returns the sync singleton, or nil if it was never created.
	GetSyncStatus() (*model.SyncStatus, error)

	// CreateSyncStatus creates the sync singleton.
	CreateSyncStatus(deviceName, deviceID string, now time.Time) (*model.SyncStatus, error)

	// UpdateSyncStatus applies the non-nil fields of upd to the singleton.
	UpdateSyncStatus(upd model.SyncStatusUpdate) (*model.SyncStatus, error)

	// AppendSyncHistory appends an entry to the sync log and fills in its ID.
	AppendSyncHistory(h *model.SyncHistory) error

	// ListSyncHistory returns the most recent entries, newest first.
	ListSyncHistory(limit int) ([]*model.SyncHistory, error)
}
