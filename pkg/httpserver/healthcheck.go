package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openlims/openlims/pkg/logger"
)

// HealthCheckHandler serves liveness and readiness probes.
//
// With no dependency probes it answers 200 "ALIVE". With probes it runs each
// one and answers 200 "READY" only when all succeed, 500 "NOT_READY"
// otherwise.
func HealthCheckHandler(log *slog.Logger, probes ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, probe := range probes {
			if err := probe(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
