package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware creates HTTP middleware that scopes each request to its
// tenant's schema.
//
// For every request it resolves the tenant from the path, pins one pooled
// connection, activates the tenant schema (or the public schema for
// non-tenant routes), binds the connection and tenant to the request
// context, and dispatches downstream. The connection is reset to the public
// schema and released on every exit path, whether the handler returns,
// panics, or the request is cancelled. Handler errors pass through
// untouched; the middleware only guarantees the reset.
func Middleware(resolver Resolver, switcher Switcher, opts ...Option) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		errorHandler: defaultErrorHandler,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if skipsPath(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			tc, err := resolver.Resolve(r)
			if err != nil {
				// Well-formed center ID with no active center.
				// No schema was activated, so there is nothing
				// to reset yet.
				if !errors.Is(err, ErrTenantNotFound) {
					cfg.logger.ErrorContext(r.Context(), "tenant resolution failed",
						slog.Any("error", err))
				}
				cfg.errorHandler(w, r, err)
				return
			}

			sess, err := switcher.Acquire(r.Context())
			if err != nil {
				cfg.logger.ErrorContext(r.Context(), "failed to pin database connection",
					slog.Any("error", err))
				cfg.errorHandler(w, r, err)
				return
			}
			// Deferred so the reset survives handler panics and
			// request cancellation alike.
			defer sess.Release(r.Context())

			ctx := r.Context()
			if tc != nil {
				if err := sess.Activate(ctx, tc.SchemaName); err != nil {
					cfg.logger.ErrorContext(ctx, "schema activation failed",
						slog.String("schema", tc.SchemaName),
						slog.Any("error", err))
					cfg.errorHandler(w, r, err)
					return
				}
				ctx = WithContext(ctx, tc)
			} else {
				if err := sess.ActivatePublic(ctx); err != nil {
					cfg.logger.ErrorContext(ctx, "schema activation failed",
						slog.String("schema", PublicSchema),
						slog.Any("error", err))
					cfg.errorHandler(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(sess.Bind(ctx)))
		})
	}
}

// skipsPath reports whether the request path equals the skip entry or lives
// under it as a path segment. "/healthz" covers "/healthz" and
// "/healthz/live" but not "/healthz-extra".
func skipsPath(path, skip string) bool {
	skip = strings.TrimSuffix(skip, "/")
	if skip == "" {
		return false
	}
	return path == skip || strings.HasPrefix(path, skip+"/")
}

// RequireTenant ensures a tenant is present in the request context. Mount it
// in front of routes that only make sense inside a tenant schema.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
