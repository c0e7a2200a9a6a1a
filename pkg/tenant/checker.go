package tenant

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultCacheTTL bounds how long an existence flag may be served without
// re-checking the catalog.
const DefaultCacheTTL = 5 * time.Minute

// Checker answers whether a center exists and is active.
type Checker interface {
	Exists(ctx context.Context, id uuid.UUID) bool
}

// CatalogChecker is the production Checker: a cached lookup against the
// centers table in the public schema.
type CatalogChecker struct {
	db    Querier
	cache ExistenceCache
	ttl   time.Duration
	log   *slog.Logger
}

// NewCatalogChecker creates a checker that consults cache first and falls
// back to the catalog. The db handle should be the shared pool, not a
// request-pinned connection: the lookup must not depend on, or disturb, any
// request's active schema. TTL <= 0 falls back to DefaultCacheTTL; a nil
// logger discards.
func NewCatalogChecker(db Querier, cache ExistenceCache, ttl time.Duration, log *slog.Logger) *CatalogChecker {
	if cache == nil {
		cache = NewNoopCache()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CatalogChecker{db: db, cache: cache, ttl: ttl, log: log}
}

// Exists reports whether an active center with the given ID exists. A live
// cache entry is returned without touching the database. On miss or expiry
// the catalog is queried; the query names public.centers explicitly so it is
// correct even when the calling goroutine's connection has a tenant
// search_path active. Lookup errors fail closed: an unreachable catalog is
// never treated as "assume the tenant exists".
func (c *CatalogChecker) Exists(ctx context.Context, id uuid.UUID) bool {
	key := id.String()
	if exists, ok := c.cache.Get(ctx, key); ok {
		return exists
	}

	var exists bool
	err := c.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.centers WHERE id = $1 AND is_active)`,
		id,
	).Scan(&exists)
	if err != nil {
		c.log.ErrorContext(ctx, "tenant existence lookup failed",
			slog.String("tenant_id", key),
			slog.Any("error", err))
		return false
	}

	c.cache.Set(ctx, key, exists, c.ttl)
	return exists
}

// Invalidate drops the cached flag for a center. Called synchronously from
// every center lifecycle mutation (create, soft-delete, restore, hard-delete)
// so the next Exists reflects the new state immediately.
func (c *CatalogChecker) Invalidate(ctx context.Context, id uuid.UUID) {
	c.cache.Delete(ctx, id.String())
}
