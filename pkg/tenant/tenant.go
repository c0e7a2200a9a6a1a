package tenant

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// PublicSchema is the shared namespace holding cross-tenant catalog
	// data (centers, users).
	PublicSchema = "public"

	// DefaultSchemaPrefix is prepended to a center's identifier to form
	// its schema name.
	DefaultSchemaPrefix = "center_"
)

// Context identifies the tenant a request is scoped to. It is created once
// per request by the resolver, attached to the request context by the
// middleware, and never persisted. Public (non-tenant) requests carry no
// Context at all.
type Context struct {
	// ID is the center's primary key in the public catalog.
	ID uuid.UUID

	// SchemaName is the database schema holding the tenant's tables.
	SchemaName string
}

// SchemaName derives the schema name for a center identifier. The mapping is
// a pure naming convention: the hyphen-less UUID prefixed with a fixed
// string, e.g. "center_123e4567e89b12d3a456426614174000". One schema per
// center, no stored relation required.
func SchemaName(prefix string, id uuid.UUID) string {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}
