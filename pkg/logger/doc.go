// Package logger builds log/slog loggers for the tenancy services.
//
// New returns a JSON or text logger whose handler is wrapped in a
// LogHandlerDecorator. The decorator runs ContextExtractor functions on every
// record, which is how request ids and the tenant bound to a request end up in
// log lines without being threaded through every call:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "tenancyd"),
//		logger.WithContextExtractors(
//			requestid.LoggerExtractor(),
//			tenant.LoggerExtractor(),
//		),
//	)
//	log.InfoContext(ctx, "tenant bound", logger.TenantKey(key))
//
// The attribute helpers (Error, TenantID, TenantKey, Reason, State, Component)
// keep key names consistent across packages.
package logger
