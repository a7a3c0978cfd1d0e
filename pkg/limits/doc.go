// Package limits provides plan-based resource limits and feature flags for tenants.
//
// Every tenant is on one of the built-in plans (basic, professional,
// enterprise). A plan caps countable resources (users, organizations, storage)
// and enables feature flags. A tenant record may carry its own limits which take
// precedence over the plan values; -1 means unlimited.
//
// Basic usage:
//
//	counters := limits.NewRegistry()
//	counters.Register(limits.ResourceOrganizations, orgs.Count)
//
//	svc, err := limits.NewService(ctx, limits.NewInMemSource(limits.DefaultPlans()), counters)
//
//	if err := svc.CanCreate(ctx, t, limits.ResourceOrganizations); err != nil {
//	    // errors.Is(err, limits.ErrLimitExceeded)
//	}
//
//	if svc.HasFeature(t, limits.FeatureAPIAccess) {
//	    // ...
//	}
package limits
