package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrorHandler renders tenant resolution and schema switching failures.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// middlewareConfig holds middleware configuration.
type middlewareConfig struct {
	errorHandler ErrorHandler
	skipPaths    []string
	logger       *slog.Logger
}

// Option configures the middleware.
type Option func(*middlewareConfig)

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *middlewareConfig) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithSkipPaths sets paths that bypass tenant handling entirely. A path
// matches itself and anything below it ("/healthz" covers "/healthz" and
// "/healthz/live", not "/healthz-extra"). Matched requests get no pinned
// connection and no schema switch.
func WithSkipPaths(paths ...string) Option {
	return func(c *middlewareConfig) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithLogger sets the middleware logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *middlewareConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTenantNotFound), errors.Is(err, ErrNoTenantInContext):
		// Same surface as an unknown route; internal distinctions
		// (cache miss vs authoritative miss) stay in the logs.
		writeJSONError(w, http.StatusNotFound, "Tenant not found")
	default:
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSONError keeps the middleware's error shape aligned with the rest of
// the JSON API without depending on the application's response helpers.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
