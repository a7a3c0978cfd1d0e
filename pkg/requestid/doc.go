// Package requestid attaches a correlation id to every request.
//
// Middleware reuses a valid X-Request-ID header (letters, digits, '-' and
// '_', at most 128 bytes) or generates a UUID, stores it in the request
// context and echoes it in the response. LoggerExtractor plugs the id into
// logger.WithContextExtractors so every record logged with the request
// context carries request_id next to the tenant group.
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware())
//	log := logger.New(logger.WithContextExtractors(
//		requestid.LoggerExtractor(),
//		tenant.LoggerExtractor(),
//	))
package requestid
