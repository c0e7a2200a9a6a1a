// Package tenant implements schema-per-tenant isolation for the laboratory
// backend: every center owns one PostgreSQL schema, and every request runs
// with exactly one of those schemas (or the shared public schema) on its
// connection's search path.
//
// # Architecture
//
// The package is built from small cooperating pieces:
//
//   - PathResolver extracts the center ID from /api/centers/{id}/... paths.
//     Segments that are not canonical hyphenated UUIDs make the route public,
//     not an error.
//
//   - CatalogChecker validates that the center exists and is active through
//     an ExistenceCache (in-memory or Redis) with a TTL, falling back to an
//     explicitly public-qualified catalog query. Lookup failures fail closed
//     to "not found".
//
//   - Switcher/Session pin one pooled connection per request and own its
//     search_path: activate on entry, reset to public on release, on every
//     exit path. The pool never sees a connection with a tenant search_path
//     that it can hand to another request.
//
//   - Middleware orchestrates the above around the downstream handler and
//     attaches the tenant Context plus the pinned connection to the request
//     context.
//
//   - LifecycleManager provisions and destroys the physical schemas when
//     centers are created or hard-deleted, and keeps the existence cache
//     coherent.
//
// # Usage
//
//	pool, _ := pg.Connect(ctx, pgCfg)
//	cache := tenant.NewMemoryCache()
//	checker := tenant.NewCatalogChecker(pool, cache, cfg.CacheTTL, log)
//	resolver := tenant.NewPathResolver(checker, cfg.SchemaPrefix)
//	switcher := tenant.NewPoolSwitcher(pool, cfg.PublicSchema)
//
//	r := chi.NewRouter()
//	r.Use(tenant.Middleware(resolver, switcher, tenant.WithLogger(log)))
//
// Downstream handlers read the tenant with FromContext and run queries
// through the pinned connection returned by QuerierFromContext; they never
// switch schemas themselves.
package tenant
