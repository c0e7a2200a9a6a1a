package centers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openlims/openlims/pkg/pg"
	"github.com/openlims/openlims/pkg/tenant"
)

// Repository persists Center records in the public schema.
//
// Every query names public.centers explicitly so the repository behaves
// the same regardless of the search_path of the connection it runs on.
type Repository struct {
	db tenant.Querier
}

// NewRepository returns a Repository backed by db, typically the pgx pool.
func NewRepository(db tenant.Querier) *Repository {
	return &Repository{db: db}
}

const centerColumns = "id, name, schema_name, description, settings, is_active, created_at, updated_at"

func scanCenter(row pgx.Row) (*Center, error) {
	var c Center
	err := row.Scan(&c.ID, &c.Name, &c.SchemaName, &c.Description, &c.Settings, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan center: %w", err)
	}
	return &c, nil
}

// Create inserts a new center row.
func (r *Repository) Create(ctx context.Context, c *Center) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO public.centers (id, name, schema_name, description, settings, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.SchemaName, c.Description, c.Settings, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("insert center: %w", err)
	}
	return nil
}

// GetByID returns an active center by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Center, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+centerColumns+" FROM public.centers WHERE id = $1 AND is_active", id)
	return scanCenter(row)
}

// GetAnyByID returns a center by its ID regardless of its active flag.
func (r *Repository) GetAnyByID(ctx context.Context, id uuid.UUID) (*Center, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+centerColumns+" FROM public.centers WHERE id = $1", id)
	return scanCenter(row)
}

// GetBySchemaName returns an active center by its schema name.
func (r *Repository) GetBySchemaName(ctx context.Context, schemaName string) (*Center, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+centerColumns+" FROM public.centers WHERE schema_name = $1 AND is_active", schemaName)
	return scanCenter(row)
}

// List returns active centers ordered by name.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Center, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+centerColumns+" FROM public.centers WHERE is_active ORDER BY name LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	defer rows.Close()

	centers := make([]Center, 0)
	for rows.Next() {
		var c Center
		if err := rows.Scan(&c.ID, &c.Name, &c.SchemaName, &c.Description, &c.Settings, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan center: %w", err)
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

// Update rewrites the mutable fields of a center row.
func (r *Repository) Update(ctx context.Context, c *Center) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE public.centers
		SET name = $2, description = $3, settings = $4, updated_at = $5
		WHERE id = $1 AND is_active`,
		c.ID, c.Name, c.Description, c.Settings, c.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("update center: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the soft-delete flag on a center row.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE public.centers SET is_active = $2, updated_at = $3 WHERE id = $1 AND is_active <> $2",
		id, active, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set center active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns every active center ordered by name. Used by the
// installation summary, which aggregates over all of them.
func (r *Repository) ListActive(ctx context.Context) ([]Center, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+centerColumns+" FROM public.centers WHERE is_active ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list centers: %w", err)
	}
	defer rows.Close()

	centers := make([]Center, 0)
	for rows.Next() {
		var c Center
		if err := rows.Scan(&c.ID, &c.Name, &c.SchemaName, &c.Description, &c.Settings, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan center: %w", err)
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

// CenterCounts returns the total and active center counts.
func (r *Repository) CenterCounts(ctx context.Context) (total, active int, err error) {
	err = r.db.QueryRow(ctx,
		"SELECT count(*), count(*) FILTER (WHERE is_active) FROM public.centers").
		Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("count centers: %w", err)
	}
	return total, active, nil
}

// UserCount returns the number of active users assigned to a center.
func (r *Repository) UserCount(ctx context.Context, centerID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM public.users WHERE center_id = $1 AND is_active", centerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SampleCount returns the number of rows in a center's samples table. The
// schema name is sanitized into a quoted identifier; it cannot be a bind
// parameter.
func (r *Repository) SampleCount(ctx context.Context, schemaName string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT count(*) FROM "+pgx.Identifier{schemaName, "samples"}.Sanitize()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples in %s: %w", schemaName, err)
	}
	return n, nil
}

// Delete removes a center row permanently.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM public.centers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete center: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
