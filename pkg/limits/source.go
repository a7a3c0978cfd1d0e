package limits

import (
	"context"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Source defines how plans are loaded into the limits service.
type Source interface {
	Load(ctx context.Context) (map[tenant.Plan]Plan, error)
}

// inMemSource implements the Source interface using an in-memory plan map.
type inMemSource struct {
	plans map[tenant.Plan]Plan
}

// NewInMemSource returns an in-memory Source with a deep copy of the given plans.
func NewInMemSource(plans map[tenant.Plan]Plan) Source {
	return &inMemSource{plans: clonePlans(plans)}
}

// Load returns a copy of all available plans.
func (s *inMemSource) Load(context.Context) (map[tenant.Plan]Plan, error) {
	return clonePlans(s.plans), nil
}

func clonePlans(plans map[tenant.Plan]Plan) map[tenant.Plan]Plan {
	out := make(map[tenant.Plan]Plan, len(plans))
	for id, plan := range plans {
		out[id] = plan.clone()
	}
	return out
}
