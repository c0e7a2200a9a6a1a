// Package pg bootstraps the PostgreSQL layer: a pgx/v5 connection pool with
// retry, goose migrations for the public schema, health checks, and error
// classification helpers.
//
// The one multi-tenancy-specific piece lives here rather than in the tenant
// package: the pool's AfterRelease hook resets every connection's
// search_path before it can be checked out again. Schema switching is
// performed per request by the tenant middleware, but the pool boundary is
// treated as a trust boundary of its own, so even a code path that somehow
// skips the middleware's reset cannot leak a tenant schema into an unrelated
// request.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		// terminate: the database is required
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		// terminate: serving with a stale catalog schema is worse
//	}
package pg
