package users

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

// Repository persists User records in the public schema. All queries name
// public.users explicitly so they are search_path independent.
type Repository struct {
	db tenant.Querier
}

// NewRepository returns a Repository backed by db, typically the pgx pool.
func NewRepository(db tenant.Querier) *Repository {
	return &Repository{db: db}
}

const userColumns = "id, username, email, first_name, last_name, phone, center_id, role, is_active, created_at, updated_at"

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone,
		&u.CenterID, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *Repository) Create(ctx context.Context, u *User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO public.users (id, username, email, first_name, last_name, phone, center_id, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.Phone,
		u.CenterID, u.Role, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns an active user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM public.users WHERE id = $1 AND is_active", id)
	return scanUser(row)
}

// GetByEmail returns an active user by normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM public.users WHERE email = $1 AND is_active", email)
	return scanUser(row)
}

// ListByCenter returns the active users of one center ordered by username.
func (r *Repository) ListByCenter(ctx context.Context, centerID uuid.UUID, limit, offset int) ([]User, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+userColumns+" FROM public.users WHERE center_id = $1 AND is_active ORDER BY username LIMIT $2 OFFSET $3",
		centerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone,
			&u.CenterID, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update rewrites the mutable fields of a user row.
func (r *Repository) Update(ctx context.Context, u *User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE public.users
		SET first_name = $2, last_name = $3, phone = $4, role = $5, updated_at = $6
		WHERE id = $1 AND is_active`,
		u.ID, u.FirstName, u.LastName, u.Phone, u.Role, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a user.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.SetActive(ctx, id, false)
}

// SetActive flips the soft-delete flag. Deactivating an inactive user or
// restoring an active one reports ErrNotFound.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE public.users SET is_active = $2, updated_at = $3 WHERE id = $1 AND is_active <> $2",
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangeCenter reassigns an active user to another center and returns the
// updated row.
func (r *Repository) ChangeCenter(ctx context.Context, id, centerID uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE public.users
		SET center_id = $2, updated_at = $3
		WHERE id = $1 AND is_active
		RETURNING `+userColumns,
		id, centerID, time.Now().UTC())
	return scanUser(row)
}

// Summary aggregates user counts across all centers.
func (r *Repository) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{
		UsersByRole:   map[string]int{string(RoleAdmin): 0, string(RoleUser): 0, string(RoleViewer): 0},
		UsersByCenter: map[string]int{},
	}

	err := r.db.QueryRow(ctx,
		"SELECT count(*), count(*) FILTER (WHERE is_active) FROM public.users").
		Scan(&s.TotalUsers, &s.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	s.InactiveUsers = s.TotalUsers - s.ActiveUsers

	rows, err := r.db.Query(ctx,
		"SELECT role, count(*) FROM public.users WHERE is_active GROUP BY role")
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		s.UsersByRole[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
		SELECT c.name, count(*)
		FROM public.users u
		JOIN public.centers c ON c.id = u.center_id
		WHERE u.is_active
		GROUP BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("count users by center: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan center count: %w", err)
		}
		s.UsersByCenter[name] = n
	}
	return s, rows.Err()
}
