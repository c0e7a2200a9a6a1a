package tenant

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lifecycle is the surface the center CRUD layer depends on. Satisfied by
// LifecycleManager.
type Lifecycle interface {
	Create(ctx context.Context, id uuid.UUID) bool
	Drop(ctx context.Context, id uuid.UUID) bool
}

// LifecycleManager creates, migrates, and drops per-tenant schemas. All
// operations report success as a boolean and log the cause on failure: the
// center catalog mutation that triggered them proceeds either way, so a
// center row can exist without a backing schema. That gap is deliberate and
// visible in the logs rather than papered over with a rollback the original
// flow never had.
type LifecycleManager struct {
	pool   *pgxpool.Pool
	cache  ExistenceCache
	ddl    string
	prefix string
	public string
	log    *slog.Logger
}

// NewLifecycleManager creates a manager applying the given DDL to new
// tenant schemas. ddl may contain multiple statements; it is executed with
// the tenant schema first on the search path, so unqualified CREATE TABLE
// statements land in the tenant schema.
func NewLifecycleManager(pool *pgxpool.Pool, cache ExistenceCache, ddl string, cfg Config, log *slog.Logger) *LifecycleManager {
	if cache == nil {
		cache = NewNoopCache()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	prefix := cfg.SchemaPrefix
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	public := cfg.PublicSchema
	if public == "" {
		public = PublicSchema
	}
	return &LifecycleManager{
		pool:   pool,
		cache:  cache,
		ddl:    ddl,
		prefix: prefix,
		public: public,
		log:    log,
	}
}

// Create provisions the schema for a center: creates it, grants the minimum
// required privileges, materializes the tenant tables, and invalidates the
// existence cache so the next request sees the center immediately.
func (m *LifecycleManager) Create(ctx context.Context, id uuid.UUID) bool {
	schema := SchemaName(m.prefix, id)
	ident := pgx.Identifier{schema}.Sanitize()

	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + ident,
		"GRANT USAGE ON SCHEMA " + ident + " TO public",
		"GRANT CREATE ON SCHEMA " + ident + " TO public",
	}
	for _, stmt := range stmts {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			m.log.ErrorContext(ctx, "failed to create tenant schema",
				slog.String("schema", schema),
				slog.Any("error", err))
			return false
		}
	}

	if !m.Migrate(ctx, id) {
		return false
	}

	m.cache.Delete(ctx, id.String())
	m.log.InfoContext(ctx, "created tenant schema", slog.String("schema", schema))
	return true
}

// Drop removes a tenant's schema and everything in it. Irreversible: the
// tenant's data is gone. Callers gate this behind an explicit destructive
// operation, never ordinary soft-delete.
func (m *LifecycleManager) Drop(ctx context.Context, id uuid.UUID) bool {
	schema := SchemaName(m.prefix, id)
	ident := pgx.Identifier{schema}.Sanitize()

	if _, err := m.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE"); err != nil {
		m.log.ErrorContext(ctx, "failed to drop tenant schema",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}

	m.cache.Delete(ctx, id.String())
	m.log.InfoContext(ctx, "dropped tenant schema", slog.String("schema", schema))
	return true
}

// Migrate applies the tenant DDL inside the tenant's schema. The connection's
// previous search_path is captured first and restored afterwards whatever it
// was; Migrate may be called mid-request from an already-switched session.
func (m *LifecycleManager) Migrate(ctx context.Context, id uuid.UUID) bool {
	schema := SchemaName(m.prefix, id)

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to acquire connection for tenant migration",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}
	defer conn.Release()

	var prev string
	if err := conn.QueryRow(ctx, "SHOW search_path").Scan(&prev); err != nil {
		m.log.ErrorContext(ctx, "failed to read search_path",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}

	sql := "SET search_path TO " + pgx.Identifier{schema}.Sanitize() +
		", " + pgx.Identifier{m.public}.Sanitize()
	if _, err := conn.Exec(ctx, sql); err != nil {
		m.log.ErrorContext(ctx, "failed to activate tenant schema for migration",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
		defer cancel()
		if _, err := conn.Exec(rctx, "SET search_path TO "+prev); err != nil {
			// Poisoned connection; make the pool discard it.
			_ = conn.Conn().Close(rctx)
		}
	}()

	// Simple protocol so the DDL can carry multiple statements.
	if _, err := conn.Conn().PgConn().Exec(ctx, m.ddl).ReadAll(); err != nil {
		m.log.ErrorContext(ctx, "failed to migrate tenant schema",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}

	m.log.InfoContext(ctx, "migrated tenant schema", slog.String("schema", schema))
	return true
}

// MigrateAll runs Migrate against every existing tenant schema and reports
// the per-schema outcome. Used by operational tooling after the tenant table
// definitions change.
func (m *LifecycleManager) MigrateAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool)

	schemas, err := m.ListSchemas(ctx)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to list tenant schemas", slog.Any("error", err))
		return results
	}

	for _, schema := range schemas {
		id, ok := m.idFromSchema(schema)
		if !ok {
			m.log.WarnContext(ctx, "schema name does not map to a center id",
				slog.String("schema", schema))
			results[schema] = false
			continue
		}
		results[schema] = m.Migrate(ctx, id)
	}
	return results
}

// ListSchemas returns the names of all tenant schemas currently in the
// database.
func (m *LifecycleManager) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE $1 || '%'`,
		m.prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

// SchemaExists reports whether the physical schema for a center exists,
// independently of the catalog row. Useful for detecting centers whose
// provisioning failed.
func (m *LifecycleManager) SchemaExists(ctx context.Context, id uuid.UUID) bool {
	schema := SchemaName(m.prefix, id)
	var exists bool
	err := m.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		schema,
	).Scan(&exists)
	if err != nil {
		m.log.ErrorContext(ctx, "failed to check schema existence",
			slog.String("schema", schema),
			slog.Any("error", err))
		return false
	}
	return exists
}

// idFromSchema recovers the center UUID from a schema name by stripping the
// prefix and re-inserting the canonical hyphens.
func (m *LifecycleManager) idFromSchema(schema string) (uuid.UUID, bool) {
	if len(schema) != len(m.prefix)+32 || schema[:len(m.prefix)] != m.prefix {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(schema[len(m.prefix):])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
