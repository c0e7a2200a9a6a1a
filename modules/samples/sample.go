// Package samples manages laboratory samples. Samples are tenant data:
// every row lives in the owning center's schema and all queries run on the
// request's schema-switched connection with unqualified table names.
package samples

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies the sample material.
type Type string

const (
	TypeBlood  Type = "blood"
	TypeUrine  Type = "urine"
	TypeTissue Type = "tissue"
	TypeSaliva Type = "saliva"
	TypeOther  Type = "other"
)

// Types lists all known sample types.
var Types = []Type{TypeBlood, TypeUrine, TypeTissue, TypeSaliva, TypeOther}

// Valid reports whether the type is one of the known values.
func (t Type) Valid() bool {
	switch t {
	case TypeBlood, TypeUrine, TypeTissue, TypeSaliva, TypeOther:
		return true
	}
	return false
}

// Status is the processing state of a sample.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusArchived   Status = "archived"
)

// Statuses lists all known statuses.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusRejected, StatusArchived}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected, StatusArchived:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no sample matches.
	ErrNotFound = errors.New("sample not found")

	// ErrInvalidTransition is returned when a processing action does not
	// apply to the sample's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation is returned when sample fields fail validation.
	ErrValidation = errors.New("sample validation failed")

	// ErrBarcodeTaken is returned when a barcode is already used within the
	// tenant.
	ErrBarcodeTaken = errors.New("barcode already taken")
)

// Sample is one laboratory sample within a center's schema.
type Sample struct {
	ID                  uuid.UUID      `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	Type                Type           `json:"sample_type"`
	Status              Status         `json:"status"`
	Barcode             string         `json:"barcode"`
	UserID              uuid.UUID      `json:"user_id"`
	Metadata            map[string]any `json:"metadata"`
	CollectionDate      *time.Time     `json:"collection_date,omitempty"`
	CollectionLocation  string         `json:"collection_location,omitempty"`
	ProcessingStarted   *time.Time     `json:"processing_started,omitempty"`
	ProcessingCompleted *time.Time     `json:"processing_completed,omitempty"`
	Results             map[string]any `json:"results"`
	Active              bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// NormalizeBarcode upper-cases and trims a barcode the way they are stored.
func NormalizeBarcode(barcode string) string {
	return strings.ToUpper(strings.TrimSpace(barcode))
}

// GenerateBarcode produces a YYYYMMDD-NNNN barcode candidate. Uniqueness is
// enforced per tenant at insert time; callers retry with a suffix on
// collision.
func GenerateBarcode(now time.Time) string {
	return now.Format("20060102") + fmt.Sprintf("-%04d", 1000+rand.IntN(9000))
}

// StartProcessing moves a pending sample into processing.
func (s *Sample) StartProcessing(now time.Time) error {
	if s.Status != StatusPending {
		return fmt.Errorf("%w: cannot start processing sample with status %q", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusProcessing
	s.ProcessingStarted = &now
	s.UpdatedAt = now
	return nil
}

// CompleteProcessing moves a processing sample to completed, recording the
// results if given.
func (s *Sample) CompleteProcessing(now time.Time, results map[string]any) error {
	if s.Status != StatusProcessing {
		return fmt.Errorf("%w: cannot complete sample with status %q", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusCompleted
	s.ProcessingCompleted = &now
	if results != nil {
		s.Results = results
	}
	s.UpdatedAt = now
	return nil
}

// Reject marks the sample rejected from any status, recording the reason in
// its metadata.
func (s *Sample) Reject(now time.Time, reason string) error {
	s.Status = StatusRejected
	if reason != "" {
		if s.Metadata == nil {
			s.Metadata = map[string]any{}
		}
		s.Metadata["rejection_reason"] = reason
	}
	s.UpdatedAt = now
	return nil
}

// Archive moves a completed or rejected sample to archived.
func (s *Sample) Archive(now time.Time) error {
	if s.Status != StatusCompleted && s.Status != StatusRejected {
		return fmt.Errorf("%w: cannot archive sample with status %q", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusArchived
	s.UpdatedAt = now
	return nil
}

// CreateParams carries the caller-supplied fields for a new sample.
type CreateParams struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Type               Type           `json:"sample_type"`
	Barcode            string         `json:"barcode"`
	UserID             uuid.UUID      `json:"user_id"`
	Metadata           map[string]any `json:"metadata"`
	CollectionDate     *time.Time     `json:"collection_date"`
	CollectionLocation string         `json:"collection_location"`
}

// Validate checks the caller-supplied fields. The barcode, when supplied,
// must already be normalized.
func (p CreateParams) Validate() error {
	if p.Name == "" || len(p.Name) > 100 {
		return fmt.Errorf("%w: name must be 1-100 characters", ErrValidation)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown sample type %q", ErrValidation, p.Type)
	}
	if p.Barcode != "" && len(p.Barcode) < 3 {
		return fmt.Errorf("%w: barcode must be at least 3 characters", ErrValidation)
	}
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	return nil
}

// UpdateParams carries the mutable fields of a sample. Status is not here:
// it only changes through processing actions.
type UpdateParams struct {
	Name               *string        `json:"name,omitempty"`
	Description        *string        `json:"description,omitempty"`
	Type               *Type          `json:"sample_type,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CollectionDate     *time.Time     `json:"collection_date,omitempty"`
	CollectionLocation *string        `json:"collection_location,omitempty"`
}

// Stats summarizes the samples of one tenant.
type Stats struct {
	Total              int64            `json:"total_samples"`
	ByStatus           map[Status]int64 `json:"samples_by_status"`
	ByType             map[Type]int64   `json:"samples_by_type"`
	AvgProcessingHours *float64         `json:"average_processing_time,omitempty"`
}
