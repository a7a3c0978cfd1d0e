// Package httpserver runs the service HTTP listener with graceful shutdown.
//
// Run blocks until the context is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests within the shutdown timeout and runs the stop
// hooks in order. Stop hooks are where tenant pools, the directory cache and
// the central database are closed, after the last request released its
// tenant binding.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(func(context.Context) error { return router.Close() }),
//	)
//	if err := srv.Run(ctx, handler); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Liveness and Readiness provide JSON health endpoints; readiness checks run
// with the request context and a per-check timeout.
package httpserver
