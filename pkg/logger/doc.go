// Package logger builds configured slog.Logger instances with context-aware
// attribute injection.
//
// The factory wires a JSON or text handler behind a ContextHandler that runs
// registered extractors on every record, so request-scoped values like the
// request ID and tenant ID appear on all log lines without every call site
// passing them:
//
//	log := logger.New(
//		logger.WithService("openlims", cfg.Env),
//		logger.WithContextExtractors(
//			requestid.LoggerExtractor(),
//			tenant.LoggerExtractor(),
//		),
//	)
package logger
