package flow

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"flowstate-go/internal/model"
)

// defaultSearchLimit applies when a ContentQuery leaves Limit unset.
const defaultSearchLimit = 10

// ContentIndex maps spans of attachment content to domain records and keeps
// the review ledger for extracted records.
type ContentIndex struct {
	store  RecordStore
	logger Logger
	clock  Clock
}

// NewContentIndex creates a new ContentIndex with the provided dependencies.
func NewContentIndex(store RecordStore, logger Logger, clock Clock) *ContentIndex {
	return &ContentIndex{
		store:  store,
		logger: logger,
		clock:  clock,
	}
}

// AddLocation records a span inside an attachment's content.
func (c *ContentIndex) AddLocation(in model.NewContentLocation) (*model.ContentLocation, error) {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.AttachmentID, validation.Required),
		validation.Field(&in.Description, validation.Required),
		validation.Field(&in.LocationType, validation.Required),
		validation.Field(&in.StartLocation, validation.Required),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.requireAttachment(in.AttachmentID); err != nil {
		return nil, err
	}

	loc := &model.ContentLocation{
		AttachmentID:  in.AttachmentID,
		Description:   in.Description,
		Category:      in.Category,
		LocationType:  in.LocationType,
		StartLocation: in.StartLocation,
		EndLocation:   in.EndLocation,
		Snippet:       in.Snippet,
		ProblemID:     in.ProblemID,
		SolutionID:    in.SolutionID,
		LearningID:    in.LearningID,
		ComponentID:   in.ComponentID,
		CreatedAt:     c.clock.Now(),
	}
	if err := c.store.CreateContentLocation(loc); err != nil {
		return nil, fmt.Errorf("creating content location: %w", err)
	}

	c.logger.Debug("content location added", "id", loc.ID, "attachment", loc.AttachmentID, "start", loc.StartLocation)
	return loc, nil
}

// ListLocations returns an attachment's locations in byte-wise order of their
// start location.
func (c *ContentIndex) ListLocations(attachmentID int64) ([]*model.ContentLocation, error) {
	locs, err := c.store.ListContentLocations(attachmentID)
	if err != nil {
		return nil, fmt.Errorf("listing content locations: %w", err)
	}
	return locs, nil
}

// DeleteLocation removes a content location.
func (c *ContentIndex) DeleteLocation(id int64) error {
	if err := c.store.DeleteContentLocation(id); err != nil {
		return fmt.Errorf("deleting content location %d: %w", id, err)
	}
	return nil
}

// Search finds content locations whose description or snippet contains q.Text.
func (c *ContentIndex) Search(q model.ContentQuery) ([]*model.ContentMatch, error) {
	err := validation.ValidateStruct(&q,
		validation.Field(&q.Text, validation.Required),
		validation.Field(&q.Limit, validation.Min(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if q.Limit == 0 {
		q.Limit = defaultSearchLimit
	}

	matches, err := c.store.SearchContentLocations(q)
	if err != nil {
		return nil, fmt.Errorf("searching content: %w", err)
	}
	return matches, nil
}

// RecordExtraction records that a domain record was derived from an attachment.
func (c *ContentIndex) RecordExtraction(in model.NewExtraction) (*model.Extraction, error) {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.AttachmentID, validation.Required),
		validation.Field(&in.RecordType, validation.Required),
		validation.Field(&in.RecordID, validation.Required),
		validation.Field(&in.Confidence, validation.Min(0.0), validation.Max(1.0)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.requireAttachment(in.AttachmentID); err != nil {
		return nil, err
	}

	e := &model.Extraction{
		AttachmentID:   in.AttachmentID,
		RecordType:     in.RecordType,
		RecordID:       in.RecordID,
		SourceLocation: in.SourceLocation,
		SourceSnippet:  in.SourceSnippet,
		Confidence:     in.Confidence,
		CreatedAt:      c.clock.Now(),
	}
	if err := c.store.CreateExtraction(e); err != nil {
		return nil, fmt.Errorf("creating extraction: %w", err)
	}

	c.logger.Debug("extraction recorded", "id", e.ID, "attachment", e.AttachmentID, "record_type", e.RecordType)
	return e, nil
}

// ReviewExtraction records the user's review decision. A nil approved leaves
// the decision open.
func (c *ContentIndex) ReviewExtraction(id int64, reviewed bool, approved *bool) (*model.Extraction, error) {
	e, err := c.store.ReviewExtraction(id, reviewed, approved, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("reviewing extraction %d: %w", id, err)
	}
	c.logger.Info("extraction reviewed", "id", id, "reviewed", reviewed)
	return e, nil
}

// GetExtraction returns an extraction by ID.
func (c *ContentIndex) GetExtraction(id int64) (*model.Extraction, error) {
	e, err := c.store.FindExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("finding extraction: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("extraction %d: %w", id, ErrNotFound)
	}
	return e, nil
}

// ListExtractions returns an attachment's extractions. With pendingOnly set,
// only those not yet reviewed are returned.
func (c *ContentIndex) ListExtractions(attachmentID int64, pendingOnly bool) ([]*model.Extraction, error) {
	es, err := c.store.ListExtractions(attachmentID, pendingOnly)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return es, nil
}

// DeleteExtraction removes an extraction, e.g. after its derived record was discarded.
func (c *ContentIndex) DeleteExtraction(id int64) error {
	if err := c.store.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction %d: %w", id, err)
	}
	return nil
}

func (c *ContentIndex) requireAttachment(id int64) error {
	a, err := c.store.FindAttachment(id)
	if err != nil {
		return fmt.Errorf("finding attachment: %w", err)
	}
	if a == nil {
		return fmt.Errorf("attachment %d: %w", id, ErrNotFound)
	}
	return nil
}
