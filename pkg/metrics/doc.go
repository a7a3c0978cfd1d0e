// Package metrics exposes the tenancy pipeline as Prometheus collectors.
//
// A *Metrics value implements tenant.Recorder and tenantdb.Recorder, so one
// instance is handed to both the middleware and the connection router:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	router := tenantdb.NewRouter(central, connector, creds, tenantdb.WithRecorder(m))
//	mw := tenant.Middleware(directory, tenant.WithBinder(router), tenant.WithRecorder(m))
package metrics
