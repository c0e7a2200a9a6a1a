package tenant

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// querierKey carries the request-pinned database connection.
type querierKey struct{}

// WithContext attaches a tenant to the context.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the tenant from the context.
// Returns nil, false for public (non-tenant) requests.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}

// IDFromContext retrieves just the tenant ID from the context.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	tc, ok := FromContext(ctx)
	if !ok {
		return uuid.UUID{}, false
	}
	return tc.ID, true
}

// MustFromContext retrieves the tenant from the context and panics if none
// is present. Use only in handlers mounted behind RequireTenant.
func MustFromContext(ctx context.Context) *Context {
	tc, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no tenant in context")
	}
	return tc
}

// Querier is the subset of pgx operations shared by *pgxpool.Pool and
// *pgxpool.Conn. Repositories accept it so they run transparently on either
// the shared pool or the request-pinned connection.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithQuerier binds the request-pinned connection to the context. Done by
// Session.Bind; application code should not need to call it directly.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey{}, q)
}

// QuerierFromContext retrieves the request-pinned connection. Repositories
// for tenant-schema tables must refuse to run without one: falling back to
// the shared pool would silently query the public schema.
func QuerierFromContext(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(querierKey{}).(Querier)
	return q, ok && q != nil
}

// LoggerExtractor returns a logger context extractor that annotates log
// records with the tenant ID when one is present.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := IDFromContext(ctx); ok {
			return slog.String("tenant_id", id.String()), true
		}
		return slog.Attr{}, false
	}
}
