package tenant

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Resolver maps an incoming request to a tenant.
type Resolver interface {
	// Resolve returns the tenant for the request, or nil for public
	// routes. ErrTenantNotFound means the path named a well-formed center
	// ID with no matching active center.
	Resolve(r *http.Request) (*Context, error)
}

// tenantPathPattern recognizes /api/centers/{id}/... where {id} is a
// canonical hyphenated UUID (8-4-4-4-12 hex digits). Segments that merely
// resemble a UUID but fail this shape simply do not match, making the route
// public rather than an error.
var tenantPathPattern = regexp.MustCompile(
	`^/api/centers/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(?:/|$)`)

// PathResolver extracts the center ID from the request path and validates
// its existence through a Checker.
type PathResolver struct {
	checker Checker
	prefix  string
}

// NewPathResolver creates a resolver for the /api/centers/{id}/... path
// convention. prefix is the tenant schema name prefix; empty falls back to
// DefaultSchemaPrefix.
func NewPathResolver(checker Checker, prefix string) *PathResolver {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return &PathResolver{checker: checker, prefix: prefix}
}

// Resolve implements Resolver.
func (pr *PathResolver) Resolve(r *http.Request) (*Context, error) {
	m := tenantPathPattern.FindStringSubmatch(r.URL.Path)
	if m == nil {
		return nil, nil
	}

	id, err := uuid.Parse(m[1])
	if err != nil {
		// Matched the shape but is not a parseable UUID; treat as a
		// public route, same as any other non-matching path.
		return nil, nil
	}

	if !pr.checker.Exists(r.Context(), id) {
		return nil, ErrTenantNotFound
	}

	return &Context{ID: id, SchemaName: SchemaName(pr.prefix, id)}, nil
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(r *http.Request) (*Context, error)

// Resolve calls the function.
func (f ResolverFunc) Resolve(r *http.Request) (*Context, error) {
	return f(r)
}
