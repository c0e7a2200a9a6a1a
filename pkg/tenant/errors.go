package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when a well-formed center identifier
	// has no matching active center. Surfaced to callers as HTTP 404.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNoTenantInContext is returned when a tenant-only route is reached
	// without a tenant in the request context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrNoSessionInContext is returned when a repository needs the
	// request-pinned database connection but none was bound.
	ErrNoSessionInContext = errors.New("no database session in context")

	// ErrSessionAcquire is returned when a connection cannot be drawn from
	// the pool for the request.
	ErrSessionAcquire = errors.New("failed to acquire database session")

	// ErrSchemaActivate is returned when the connection rejects the
	// search_path change. Fatal for the current request, never retried.
	ErrSchemaActivate = errors.New("failed to activate schema")
)
