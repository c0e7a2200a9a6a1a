// Package centers manages the tenant catalog: the public-schema records
// describing each laboratory center and the lifecycle of its isolated
// schema.
package centers

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no active center matches.
	ErrNotFound = errors.New("center not found")

	// ErrNameTaken is returned when a center name is already in use.
	ErrNameTaken = errors.New("center name already taken")

	// ErrInvalidName is returned when a center name fails validation.
	ErrInvalidName = errors.New("invalid center name")
)

// Center is one tenant of the system. The record lives in the public
// schema; the center's samples live in its own schema named by SchemaName.
type Center struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	SchemaName  string         `json:"schema_name"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings"`
	Active      bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateParams carries the caller-supplied fields for a new center.
type CreateParams struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Settings    map[string]any `json:"settings"`
}

// Validate checks the caller-supplied fields.
func (p CreateParams) Validate() error {
	if p.Name == "" || len(p.Name) > 100 {
		return ErrInvalidName
	}
	return nil
}

// UpdateParams carries the mutable fields of a center.
type UpdateParams struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// Stats is one center's catalog entry with live row counts. A count that
// cannot be taken, for example when the center's schema is missing, is
// reported as zero.
type Stats struct {
	CenterID    uuid.UUID      `json:"center_id"`
	CenterName  string         `json:"center_name"`
	SchemaName  string         `json:"schema_name"`
	SampleCount int            `json:"sample_count"`
	UserCount   int            `json:"user_count"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
	Active      bool           `json:"is_active"`
	Settings    map[string]any `json:"settings"`
}

// Summary aggregates counts across the whole installation. Per-center
// entries and the sample and user totals cover active centers only.
type Summary struct {
	TotalCenters            int            `json:"total_centers"`
	ActiveCenters           int            `json:"active_centers"`
	InactiveCenters         int            `json:"inactive_centers"`
	TotalSamples            int            `json:"total_samples"`
	AverageSamplesPerCenter float64        `json:"average_samples_per_center"`
	TotalUsers              int            `json:"total_users"`
	Centers                 []SummaryEntry `json:"centers"`
}

// SummaryEntry is the per-center line of a Summary.
type SummaryEntry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	UserCount   int       `json:"user_count"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"is_active"`
}
