package limits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CounterFunc reports the current usage of a resource. With database-per-tenant
// storage the count comes from the database bound to ctx; tenantID is passed
// for counters that aggregate centrally.
type CounterFunc func(ctx context.Context, tenantID uuid.UUID) (int64, error)

// CounterRegistry maps a Resource to its CounterFunc. Register everything
// during startup; the map is read concurrently afterwards.
type CounterRegistry map[Resource]CounterFunc

func NewRegistry() CounterRegistry {
	return make(CounterRegistry)
}

// Register sets the counter of res, replacing any previous one. Panics on a
// nil fn.
func (r CounterRegistry) Register(res Resource, fn CounterFunc) {
	if fn == nil {
		panic(fmt.Sprintf("limits: nil counter for resource %q", res))
	}
	r[res] = fn
}

// count runs the counter of res. ok is false when none is registered.
func (r CounterRegistry) count(ctx context.Context, res Resource, tenantID uuid.UUID) (n int64, ok bool, err error) {
	fn, ok := r[res]
	if !ok {
		return 0, false, nil
	}
	n, err = fn(ctx, tenantID)
	if err != nil {
		return 0, true, errors.Join(ErrFailedToCountResourceUsage, err)
	}
	return n, true, nil
}
