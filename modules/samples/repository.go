package samples

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openlims/openlims/pkg/pg"
	"github.com/openlims/openlims/pkg/tenant"
)

// Repository persists samples in the current tenant's schema. It never holds
// a database handle of its own: every call takes the request-pinned,
// schema-switched connection from the context. Table names are unqualified
// so the connection's search path decides which center's samples are
// touched. Calls outside a tenant-scoped request fail rather than silently
// running against the public schema.
type Repository struct{}

// NewRepository creates a tenant-scoped sample repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) querier(ctx context.Context) (tenant.Querier, error) {
	q, ok := tenant.QuerierFromContext(ctx)
	if !ok {
		return nil, tenant.ErrNoSessionInContext
	}
	return q, nil
}

const sampleColumns = `id, name, description, sample_type, status, barcode, user_id, metadata,
	collection_date, collection_location, processing_started, processing_completed, results,
	is_active, created_at, updated_at`

func scanSample(row pgx.Row) (*Sample, error) {
	var (
		s    Sample
		desc *string
		loc  *string
	)
	err := row.Scan(&s.ID, &s.Name, &desc, &s.Type, &s.Status, &s.Barcode, &s.UserID, &s.Metadata,
		&s.CollectionDate, &loc, &s.ProcessingStarted, &s.ProcessingCompleted, &s.Results,
		&s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan sample: %w", err)
	}
	if desc != nil {
		s.Description = *desc
	}
	if loc != nil {
		s.CollectionLocation = *loc
	}
	return &s, nil
}

// Create inserts a sample. An empty barcode gets a generated one; on a
// barcode collision a two-digit suffix is appended, a few times, before
// giving up with ErrBarcodeTaken.
func (r *Repository) Create(ctx context.Context, s *Sample) error {
	q, err := r.querier(ctx)
	if err != nil {
		return err
	}

	generated := s.Barcode == ""
	if generated {
		s.Barcode = GenerateBarcode(time.Now())
	}

	base := s.Barcode
	for attempt := 0; ; attempt++ {
		_, err = q.Exec(ctx, `
			INSERT INTO samples (id, name, description, sample_type, status, barcode, user_id, metadata,
				collection_date, collection_location, results, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			s.ID, s.Name, s.Description, s.Type, s.Status, s.Barcode, s.UserID, s.Metadata,
			s.CollectionDate, s.CollectionLocation, s.Results, s.Active, s.CreatedAt, s.UpdatedAt,
		)
		if err == nil {
			return nil
		}
		if !pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert sample: %w", err)
		}
		if !generated || attempt >= 99 {
			return ErrBarcodeTaken
		}
		s.Barcode = fmt.Sprintf("%s-%02d", base, attempt+1)
	}
}

// GetByID returns a sample by ID, active or not.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Sample, error) {
	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}
	return scanSample(q.QueryRow(ctx, "SELECT "+sampleColumns+" FROM samples WHERE id = $1", id))
}

// GetByBarcode returns an active sample by its normalized barcode.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (*Sample, error) {
	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}
	return scanSample(q.QueryRow(ctx,
		"SELECT "+sampleColumns+" FROM samples WHERE barcode = $1 AND is_active",
		NormalizeBarcode(barcode)))
}

// Filter narrows a sample listing.
type Filter struct {
	Status          Status
	Type            Type
	UserID          uuid.UUID
	IncludeInactive bool
	Limit           int
	Offset          int
}

// List returns samples matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Sample, error) {
	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, "sample_type = $"+strconv.Itoa(len(args)))
	}
	if f.UserID != uuid.Nil {
		args = append(args, f.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}

	sql := "SELECT " + sampleColumns + " FROM samples"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	args = append(args, f.Limit)
	sql += " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	sql += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var (
			s    Sample
			desc *string
			loc  *string
		)
		if err := rows.Scan(&s.ID, &s.Name, &desc, &s.Type, &s.Status, &s.Barcode, &s.UserID, &s.Metadata,
			&s.CollectionDate, &loc, &s.ProcessingStarted, &s.ProcessingCompleted, &s.Results,
			&s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if desc != nil {
			s.Description = *desc
		}
		if loc != nil {
			s.CollectionLocation = *loc
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Update rewrites the full sample row. Used by both field updates and
// processing transitions, which mutate the entity first.
func (r *Repository) Update(ctx context.Context, s *Sample) error {
	q, err := r.querier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE samples
		SET name = $2, description = $3, sample_type = $4, status = $5, metadata = $6,
			collection_date = $7, collection_location = $8,
			processing_started = $9, processing_completed = $10, results = $11, updated_at = $12
		WHERE id = $1`,
		s.ID, s.Name, s.Description, s.Type, s.Status, s.Metadata,
		s.CollectionDate, s.CollectionLocation,
		s.ProcessingStarted, s.ProcessingCompleted, s.Results, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update sample: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	q, err := r.querier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx,
		"UPDATE samples SET is_active = $2, updated_at = $3 WHERE id = $1 AND is_active <> $2",
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set sample active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates the tenant's active samples.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus: make(map[Status]int64, len(Statuses)),
		ByType:   make(map[Type]int64, len(Types)),
	}
	for _, s := range Statuses {
		stats.ByStatus[s] = 0
	}
	for _, t := range Types {
		stats.ByType[t] = 0
	}

	rows, err := q.Query(ctx, "SELECT status, count(*) FROM samples WHERE is_active GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("sample stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s Status
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan sample stats: %w", err)
		}
		stats.ByStatus[s] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, "SELECT sample_type, count(*) FROM samples WHERE is_active GROUP BY sample_type")
	if err != nil {
		return nil, fmt.Errorf("sample stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t Type
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan sample stats: %w", err)
		}
		stats.ByType[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avgHours *float64
	err = q.QueryRow(ctx, `
		SELECT avg(extract(epoch FROM processing_completed - processing_started)) / 3600
		FROM samples
		WHERE status = 'completed' AND processing_started IS NOT NULL AND processing_completed IS NOT NULL`,
	).Scan(&avgHours)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sample stats processing time: %w", err)
	}
	stats.AvgProcessingHours = avgHours

	return stats, nil
}
