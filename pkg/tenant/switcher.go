package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// resetTimeout bounds the search_path reset that runs after the request
// context may already be cancelled.
const resetTimeout = 3 * time.Second

// Session is one request's hold on a single database connection. The active
// search_path is connection state, not request state, so the session owns
// both: activate on entry, reset on release, no exceptions.
type Session interface {
	// Activate sets the connection's search order to [schemaName, public]
	// so tenant tables resolve first while shared public references still
	// work unqualified.
	Activate(ctx context.Context, schemaName string) error

	// ActivatePublic sets the search order to [public] only.
	ActivatePublic(ctx context.Context) error

	// Bind exposes the pinned connection to downstream repositories via
	// the returned context.
	Bind(ctx context.Context) context.Context

	// Release resets the connection to the public schema and returns it
	// to the pool. It must run on every exit path, including handler
	// panics and request cancellation, and is safe to call twice. A
	// connection whose reset fails is destroyed, never pooled.
	Release(ctx context.Context)
}

// Switcher hands out sessions. One session per request, held for the
// request's full lifetime.
type Switcher interface {
	Acquire(ctx context.Context) (Session, error)
}

// PoolSwitcher is the production Switcher backed by a pgx connection pool.
type PoolSwitcher struct {
	pool   *pgxpool.Pool
	public string
}

// NewPoolSwitcher creates a switcher over the given pool. publicSchema
// defaults to PublicSchema when empty.
func NewPoolSwitcher(pool *pgxpool.Pool, publicSchema string) *PoolSwitcher {
	if publicSchema == "" {
		publicSchema = PublicSchema
	}
	return &PoolSwitcher{pool: pool, public: publicSchema}
}

// Acquire pins one pooled connection for the duration of a request.
func (s *PoolSwitcher) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Join(ErrSessionAcquire, err)
	}
	return &poolSession{conn: conn, public: s.public}, nil
}

type poolSession struct {
	conn     *pgxpool.Conn
	public   string
	released bool
}

func (s *poolSession) Activate(ctx context.Context, schemaName string) error {
	sql := "SET search_path TO " + pgx.Identifier{schemaName}.Sanitize() +
		", " + pgx.Identifier{s.public}.Sanitize()
	if _, err := s.conn.Exec(ctx, sql); err != nil {
		return errors.Join(ErrSchemaActivate, err)
	}
	return nil
}

func (s *poolSession) ActivatePublic(ctx context.Context) error {
	sql := "SET search_path TO " + pgx.Identifier{s.public}.Sanitize()
	if _, err := s.conn.Exec(ctx, sql); err != nil {
		return errors.Join(ErrSchemaActivate, err)
	}
	return nil
}

func (s *poolSession) Bind(ctx context.Context) context.Context {
	return WithQuerier(ctx, s.conn)
}

func (s *poolSession) Release(ctx context.Context) {
	if s.released {
		return
	}
	s.released = true

	// The reset must run even when the request context is already
	// cancelled or timed out; otherwise the next request drawing this
	// connection would inherit a tenant search_path.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetTimeout)
	defer cancel()

	sql := "SET search_path TO " + pgx.Identifier{s.public}.Sanitize()
	if _, err := s.conn.Exec(rctx, sql); err != nil {
		// Connection state can no longer be trusted; closing the
		// underlying conn makes the pool discard it on release.
		_ = s.conn.Conn().Close(rctx)
	}
	s.conn.Release()
}
