package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/AlekSi/pointer"
	"golang.org/x/sync/errgroup"

	"flowstate-go/internal/model"
)

// ingestConcurrency caps parallel ingestion in IngestMany.
const ingestConcurrency = 4

// IngestOptions controls how a source file becomes an attachment.
type IngestOptions struct {
	ComponentID     *int64
	ProblemID       *int64
	UserDescription *string
	Tags            []string
	// CopyIntoBundle copies the file into the project's bundle. When false the
	// source path is recorded as-is and the attachment is external.
	CopyIntoBundle bool
}

// DefaultIngestOptions returns options that copy the file into the bundle.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{CopyIntoBundle: true}
}

// AttachmentStore ingests files into project bundles and tracks their metadata.
type AttachmentStore struct {
	store  RecordStore
	bundle Bundle
	fsmgr  FilesystemManager
	logger Logger
	clock  Clock
}

// NewAttachmentStore creates a new AttachmentStore with the provided dependencies.
func NewAttachmentStore(store RecordStore, bundle Bundle, fsmgr FilesystemManager, logger Logger, clock Clock) *AttachmentStore {
	return &AttachmentStore{
		store:  store,
		bundle: bundle,
		fsmgr:  fsmgr,
		logger: logger,
		clock:  clock,
	}
}

// Ingest records sourcePath as an attachment of projectID.
//
// Hashing failures are logged and leave FileHash nil. Copy failures abort the
// ingestion; if the record cannot be persisted after a copy, the copied file
// is removed again.
func (s *AttachmentStore) Ingest(sourcePath string, projectID int64, opts IngestOptions) (*model.Attachment, error) {
	absPath, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", sourcePath, err)
	}
	fileName := filepath.Base(absPath)

	info, err := s.fsmgr.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: source is a directory: %s", ErrInvalidInput, absPath)
	}

	var fileHash *string
	if h, err := HashFile(s.fsmgr, absPath); err != nil {
		s.logger.Warn("hash unavailable, ingesting without hash", "path", absPath, "error", err)
	} else {
		fileHash = pointer.ToString(h)
	}

	storedPath := absPath
	if opts.CopyIntoBundle {
		storedPath, err = s.copyIntoBundle(absPath, projectID, fileName)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	a := &model.Attachment{
		ProjectID:       projectID,
		ComponentID:     opts.ComponentID,
		ProblemID:       opts.ProblemID,
		FileName:        fileName,
		FilePath:        storedPath,
		FileType:        FileType(fileName),
		FileSize:        info.Size(),
		FileHash:        fileHash,
		IsExternal:      !opts.CopyIntoBundle,
		UserDescription: opts.UserDescription,
		Tags:            slices.Clone(opts.Tags),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateAttachment(a); err != nil {
		if opts.CopyIntoBundle {
			if rmErr := s.bundle.Remove(storedPath); rmErr != nil {
				s.logger.Warn("removing orphaned bundle file", "path", storedPath, "error", rmErr)
			}
		}
		return nil, fmt.Errorf("recording attachment: %w", err)
	}

	s.logger.Info("attachment ingested",
		"id", a.ID,
		"project", projectID,
		"file", fileName,
		"external", a.IsExternal)
	return a, nil
}

func (s *AttachmentStore) copyIntoBundle(sourcePath string, projectID int64, fileName string) (string, error) {
	src, err := s.fsmgr.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrIO, sourcePath, err)
	}
	defer src.Close()

	relPath, err := s.bundle.Put(projectID, fileName, src)
	if err != nil {
		if errors.Is(err, ErrIO) {
			return "", fmt.Errorf("copying into bundle: %w", err)
		}
		return "", fmt.Errorf("%w: copying into bundle: %v", ErrIO, err)
	}
	return relPath, nil
}

// IngestMany ingests several files with bounded concurrency. Results are
// returned in the order of paths. After the first failure no further files are started.
func (s *AttachmentStore) IngestMany(paths []string, projectID int64, opts IngestOptions) ([]*model.Attachment, error) {
	results := make([]*model.Attachment, len(paths))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(ingestConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := s.Ingest(p, projectID, opts)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", p, err)
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns an attachment by ID.
func (s *AttachmentStore) Get(id int64) (*model.Attachment, error) {
	a, err := s.store.FindAttachment(id)
	if err != nil {
		return nil, fmt.Errorf("finding attachment: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("attachment %d: %w", id, ErrNotFound)
	}
	return a, nil
}

// List returns attachments matching filter, newest first.
func (s *AttachmentStore) List(filter model.AttachmentFilter) ([]*model.Attachment, error) {
	attachments, err := s.store.ListAttachments(filter)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	return attachments, nil
}

// Duplicates returns every attachment whose content hashes to hash.
func (s *AttachmentStore) Duplicates(hash string) ([]*model.Attachment, error) {
	attachments, err := s.store.FindAttachmentsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("finding attachments by hash: %w", err)
	}
	return attachments, nil
}

// Update applies the supplied fields. Setting either AI field stamps IndexedAt.
func (s *AttachmentStore) Update(id int64, upd model.AttachmentUpdate) (*model.Attachment, error) {
	now := s.clock.Now()
	var indexedAt *time.Time
	if upd.HasAIFields() {
		indexedAt = pointer.ToTime(now)
	}

	a, err := s.store.UpdateAttachment(id, upd, now, indexedAt)
	if err != nil {
		return nil, fmt.Errorf("updating attachment %d: %w", id, err)
	}
	return a, nil
}

// Remove deletes an attachment with its content locations and extractions.
// When deleteFile is set, a bundled file is removed as well; failures to do so
// are logged only. External files are never deleted.
func (s *AttachmentStore) Remove(id int64, deleteFile bool) error {
	a, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAttachment(id); err != nil {
		return fmt.Errorf("deleting attachment %d: %w", id, err)
	}

	if deleteFile && !a.IsExternal {
		if err := s.bundle.Remove(a.FilePath); err != nil {
			s.logger.Warn("could not delete attachment file", "id", id, "path", a.FilePath, "error", err)
		}
	}

	s.logger.Info("attachment removed", "id", id, "file_deleted", deleteFile && !a.IsExternal)
	return nil
}

// ResolvePath returns the absolute path of an attachment's file.
func (s *AttachmentStore) ResolvePath(a *model.Attachment) string {
	if a.IsExternal {
		return a.FilePath
	}
	return filepath.Join(s.bundle.Root(), filepath.FromSlash(a.FilePath))
}

// ReadContent reads a file and classifies it by fileType.
func (s *AttachmentStore) ReadContent(path, fileType string) (*Content, error) {
	c, err := s.fsmgr.ReadContent(path, fileType)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	return c, nil
}

// ReadAttachment reads the content of a stored attachment.
func (s *AttachmentStore) ReadAttachment(id int64) (*Content, error) {
	a, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return s.ReadContent(s.ResolvePath(a), a.FileType)
}
