package pg

import (
	"context"
	"errors"
)

// Pinger is satisfied by *pgxpool.Pool and by tenant database pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthcheck returns a readiness probe for db.
func Healthcheck(db Pinger) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
