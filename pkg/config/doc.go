// Package config loads service configuration from the environment.
//
// Load parses any struct annotated with `env` tags (github.com/caarlos0/env)
// after loading an optional .env file (github.com/joho/godotenv). Each type is
// parsed once per process and served from a cache afterwards; Reset clears the
// cache in tests.
//
// The package also defines the service settings:
//
//   - App: environment name, service name and log level
//   - Tenancy: tenant identification, directory cache and tenant database routing
//
// and LoadPlans, which overlays a YAML plan catalog on the built-in plans.
//
//	var cfg config.Tenancy
//	config.MustLoad(&cfg)
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	plans, err := config.LoadPlans(cfg.PlansFile)
package config
