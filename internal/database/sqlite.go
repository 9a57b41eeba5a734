package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowstate-go/internal/database/migrations"
	"flowstate-go/internal/flow"
	"flowstate-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	attachmentColumns = `id, project_id, component_id, problem_id, file_name, file_path, file_type,
		file_size, file_hash, is_external, user_description, tags, ai_description, ai_summary,
		content_extracted, created_at, updated_at, indexed_at`

	locationColumns = `id, attachment_id, description, category, location_type, start_location,
		end_location, snippet, problem_id, solution_id, learning_id, component_id, created_at`

	extractionColumns = `id, attachment_id, record_type, record_id, source_location, source_snippet,
		confidence, user_reviewed, user_approved, created_at, reviewed_at`

	syncStatusColumns = `id, device_name, device_id, remote_url, last_sync_at, last_sync_commit,
		pending_changes, has_conflicts, created_at, updated_at`

	syncHistoryColumns = `id, device_id, operation, commit_hash, files_changed, status,
		error_message, created_at`
)

// SQLiteDatabase implements flow.RecordStore using SQLite.
// Every method holds mu for its whole duration, so all record reads and
// writes are serialized.
type SQLiteDatabase struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path, applies pending migrations
// and verifies the schema version. path can be ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	if err := migrations.Check(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking database schema: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection.
// The pool is limited to one connection: SQLite allows a single writer, and an
// in-memory database only exists on the connection that created it.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database file path ("" when wrapping a connection).
func (s *SQLiteDatabase) Path() string { return s.path }

type scanner interface {
	Scan(dest ...any) error
}

// Attachment operations

func scanAttachment(row scanner) (*model.Attachment, error) {
	var a model.Attachment
	var tags string
	err := row.Scan(&a.ID, &a.ProjectID, &a.ComponentID, &a.ProblemID, &a.FileName, &a.FilePath,
		&a.FileType, &a.FileSize, &a.FileHash, &a.IsExternal, &a.UserDescription, &tags,
		&a.AIDescription, &a.AISummary, &a.ContentExtracted, &a.CreatedAt, &a.UpdatedAt, &a.IndexedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of attachment %d: %w", a.ID, err)
	}
	return &a, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteDatabase) CreateAttachment(a *model.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := encodeTags(a.Tags)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`INSERT INTO attachments (project_id, component_id, problem_id, file_name,
		file_path, file_type, file_size, file_hash, is_external, user_description, tags,
		ai_description, ai_summary, content_extracted, created_at, updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ProjectID, a.ComponentID, a.ProblemID, a.FileName, a.FilePath, a.FileType, a.FileSize,
		a.FileHash, a.IsExternal, a.UserDescription, tags, a.AIDescription, a.AISummary,
		a.ContentExtracted, a.CreatedAt, a.UpdatedAt, a.IndexedAt)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading attachment id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindAttachment(id int64) (*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAttachment(id)
}

func (s *SQLiteDatabase) findAttachment(id int64) (*model.Attachment, error) {
	a, err := scanAttachment(s.db.QueryRow("SELECT "+attachmentColumns+" FROM attachments WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding attachment: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListAttachments(filter model.AttachmentFilter) ([]*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := newSelect("SELECT "+attachmentColumns+" FROM attachments").
		whereEqIfSet(colProjectID, filter.ProjectID).
		whereEqIfSet(colComponentID, filter.ComponentID).
		whereEqIfSet(colProblemID, filter.ProblemID).
		order("created_at DESC, id DESC").
		build()
	return s.queryAttachments(query, args...)
}

func (s *SQLiteDatabase) FindAttachmentsByHash(hash string) ([]*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := newSelect("SELECT "+attachmentColumns+" FROM attachments").
		whereEq(colFileHash, hash).
		order("id").
		build()
	return s.queryAttachments(query, args...)
}

func (s *SQLiteDatabase) queryAttachments(query string, args ...any) ([]*model.Attachment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer rows.Close()

	var result []*model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) UpdateAttachment(id int64, upd model.AttachmentUpdate, updatedAt time.Time, indexedAt *time.Time) (*model.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := newUpdate("attachments")
	if upd.UserDescription != nil {
		u.set(colUserDesc, *upd.UserDescription)
	}
	if upd.Tags != nil {
		tags, err := encodeTags(*upd.Tags)
		if err != nil {
			return nil, err
		}
		u.set(colTags, tags)
	}
	if upd.AIDescription != nil {
		u.set(colAIDescription, *upd.AIDescription)
	}
	if upd.AISummary != nil {
		u.set(colAISummary, *upd.AISummary)
	}
	if upd.ContentExtracted != nil {
		u.set(colExtracted, *upd.ContentExtracted)
	}
	if indexedAt != nil {
		u.set(colIndexedAt, *indexedAt)
	}
	u.set(colUpdatedAt, updatedAt)

	query, args := u.build(id)
	if err := execOne(s.db, query, args...); err != nil {
		return nil, fmt.Errorf("updating attachment %d: %w", id, err)
	}
	return s.findAttachment(id)
}

// DeleteAttachment removes the attachment and everything it owns. There is no
// cascading in the schema, so children are deleted explicitly first.
func (s *SQLiteDatabase) DeleteAttachment(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM content_locations WHERE attachment_id = ?", id); err != nil {
		return fmt.Errorf("deleting content locations: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM extractions WHERE attachment_id = ?", id); err != nil {
		return fmt.Errorf("deleting extractions: %w", err)
	}
	if err := execOne(tx, "DELETE FROM attachments WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting attachment %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ContentLocation operations

func scanLocation(row scanner, extra ...any) (*model.ContentLocation, error) {
	var l model.ContentLocation
	dest := []any{&l.ID, &l.AttachmentID, &l.Description, &l.Category, &l.LocationType,
		&l.StartLocation, &l.EndLocation, &l.Snippet, &l.ProblemID, &l.SolutionID, &l.LearningID,
		&l.ComponentID, &l.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *SQLiteDatabase) CreateContentLocation(l *model.ContentLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO content_locations (attachment_id, description, category,
		location_type, start_location, end_location, snippet, problem_id, solution_id, learning_id,
		component_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.AttachmentID, l.Description, l.Category, l.LocationType, l.StartLocation, l.EndLocation,
		l.Snippet, l.ProblemID, l.SolutionID, l.LearningID, l.ComponentID, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting content location: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading content location id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListContentLocations(attachmentID int64) ([]*model.ContentLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := newSelect("SELECT "+locationColumns+" FROM content_locations").
		whereEq(colAttachmentID, attachmentID).
		order("start_location COLLATE BINARY, id").
		build()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying content locations: %w", err)
	}
	defer rows.Close()

	var result []*model.ContentLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning content location: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) SearchContentLocations(q model.ContentQuery) ([]*model.ContentMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const base = `SELECT cl.id, cl.attachment_id, cl.description, cl.category, cl.location_type,
		cl.start_location, cl.end_location, cl.snippet, cl.problem_id, cl.solution_id,
		cl.learning_id, cl.component_id, cl.created_at,
		a.project_id, a.file_name, a.file_path, a.file_type
		FROM content_locations cl JOIN attachments a ON a.id = cl.attachment_id`

	query, args := newSelect(base).
		whereContains(q.Text, qualified("cl", colDescription), qualified("cl", colSnippet)).
		whereEqIfSet(qualified("a", colProjectID), q.ProjectID).
		whereIn(qualified("a", colFileType), q.FileTypes).
		order("cl.created_at DESC, cl.id DESC").
		limitTo(q.Limit).
		build()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching content locations: %w", err)
	}
	defer rows.Close()

	var result []*model.ContentMatch
	for rows.Next() {
		var m model.ContentMatch
		l, err := scanLocation(rows, &m.ProjectID, &m.FileName, &m.FilePath, &m.FileType)
		if err != nil {
			return nil, fmt.Errorf("scanning content match: %w", err)
		}
		m.Location = *l
		result = append(result, &m)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeleteContentLocation(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := execOne(s.db, "DELETE FROM content_locations WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting content location %d: %w", id, err)
	}
	return nil
}

// Extraction operations

func scanExtraction(row scanner) (*model.Extraction, error) {
	var e model.Extraction
	err := row.Scan(&e.ID, &e.AttachmentID, &e.RecordType, &e.RecordID, &e.SourceLocation,
		&e.SourceSnippet, &e.Confidence, &e.UserReviewed, &e.UserApproved, &e.CreatedAt, &e.ReviewedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteDatabase) CreateExtraction(e *model.Extraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO extractions (attachment_id, record_type, record_id,
		source_location, source_snippet, confidence, user_reviewed, user_approved, created_at,
		reviewed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AttachmentID, e.RecordType, e.RecordID, e.SourceLocation, e.SourceSnippet, e.Confidence,
		e.UserReviewed, e.UserApproved, e.CreatedAt, e.ReviewedAt)
	if err != nil {
		return fmt.Errorf("inserting extraction: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading extraction id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindExtraction(id int64) (*model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findExtraction(id)
}

func (s *SQLiteDatabase) findExtraction(id int64) (*model.Extraction, error) {
	e, err := scanExtraction(s.db.QueryRow("SELECT "+extractionColumns+" FROM extractions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding extraction: %w", err)
	}
	return e, nil
}

func (s *SQLiteDatabase) ListExtractions(attachmentID int64, pendingOnly bool) ([]*model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := newSelect("SELECT "+extractionColumns+" FROM extractions").
		whereEq(colAttachmentID, attachmentID)
	if pendingOnly {
		q.whereEq(colUserReviewed, false)
	}
	query, args := q.order("created_at, id").build()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying extractions: %w", err)
	}
	defer rows.Close()

	var result []*model.Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning extraction: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) ReviewExtraction(id int64, reviewed bool, approved *bool, reviewedAt time.Time) (*model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := execOne(s.db, "UPDATE extractions SET user_reviewed = ?, user_approved = ?, reviewed_at = ? WHERE id = ?",
		reviewed, approved, reviewedAt, id)
	if err != nil {
		return nil, fmt.Errorf("reviewing extraction %d: %w", id, err)
	}
	return s.findExtraction(id)
}

func (s *SQLiteDatabase) DeleteExtraction(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := execOne(s.db, "DELETE FROM extractions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting extraction %d: %w", id, err)
	}
	return nil
}

// Sync bookkeeping

func scanSyncStatus(row scanner) (*model.SyncStatus, error) {
	var st model.SyncStatus
	err := row.Scan(&st.ID, &st.DeviceName, &st.DeviceID, &st.RemoteURL, &st.LastSyncAt,
		&st.LastSyncCommit, &st.PendingChanges, &st.HasConflicts, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLiteDatabase) GetSyncStatus() (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSyncStatus()
}

func (s *SQLiteDatabase) getSyncStatus() (*model.SyncStatus, error) {
	st, err := scanSyncStatus(s.db.QueryRow("SELECT " + syncStatusColumns + " FROM sync_status WHERE id = 1"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not created yet
		}
		return nil, fmt.Errorf("reading sync status: %w", err)
	}
	return st, nil
}

func (s *SQLiteDatabase) CreateSyncStatus(deviceName, deviceID string, now time.Time) (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO sync_status (id, device_name, device_id, pending_changes,
		has_conflicts, created_at, updated_at) VALUES (1, ?, ?, 0, 0, ?, ?)`,
		deviceName, deviceID, now, now)
	if err != nil {
		return nil, fmt.Errorf("creating sync status: %w", err)
	}
	return s.getSyncStatus()
}

func (s *SQLiteDatabase) UpdateSyncStatus(upd model.SyncStatusUpdate) (*model.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := newUpdate("sync_status")
	if upd.RemoteURL != nil {
		u.set(colRemoteURL, *upd.RemoteURL)
	}
	if upd.LastSyncAt != nil {
		u.set(colLastSyncAt, *upd.LastSyncAt)
	}
	if upd.LastSyncCommit != nil {
		u.set(colLastSyncHash, *upd.LastSyncCommit)
	}
	if upd.PendingChanges != nil {
		u.set(colPending, *upd.PendingChanges)
	}
	if upd.HasConflicts != nil {
		u.set(colHasConflicts, *upd.HasConflicts)
	}
	u.set(colUpdatedAt, upd.UpdatedAt)

	query, args := u.build(1)
	if err := execOne(s.db, query, args...); err != nil {
		return nil, fmt.Errorf("updating sync status: %w", err)
	}
	return s.getSyncStatus()
}

func (s *SQLiteDatabase) AppendSyncHistory(h *model.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO sync_history (device_id, operation, commit_hash,
		files_changed, status, error_message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.DeviceID, h.Operation, h.CommitHash, h.FilesChanged, h.Status, h.ErrorMessage, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting sync history: %w", err)
	}
	h.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading sync history id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncHistory(limit int) ([]*model.SyncHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args := newSelect("SELECT "+syncHistoryColumns+" FROM sync_history").
		order("created_at DESC, id DESC").
		limitTo(limit).
		build()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sync history: %w", err)
	}
	defer rows.Close()

	var result []*model.SyncHistory
	for rows.Next() {
		var h model.SyncHistory
		err := rows.Scan(&h.ID, &h.DeviceID, &h.Operation, &h.CommitHash, &h.FilesChanged,
			&h.Status, &h.ErrorMessage, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning sync history: %w", err)
		}
		result = append(result, &h)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// execOne runs a statement that must affect exactly one row. Zero affected
// rows yields an error wrapping flow.ErrNotFound.
func execOne(e execer, query string, args ...any) error {
	res, err := e.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return flow.ErrNotFound
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements flow.RecordStore interface
var _ flow.RecordStore = (*SQLiteDatabase)(nil)
