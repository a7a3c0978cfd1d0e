package limits

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Service enforces plan limits and features for tenants. The plan catalog and
// counters are fixed after construction, so a Service is safe for concurrent use.
type Service struct {
	plans    map[tenant.Plan]Plan
	counters CounterRegistry
}

// NewService loads the plan catalog from src and validates it.
func NewService(ctx context.Context, src Source, counters CounterRegistry) (*Service, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	if counters == nil {
		counters = NewRegistry()
	}
	return &Service{plans: plans, counters: counters}, nil
}

// Plan returns the definition of a plan.
func (s *Service) Plan(id tenant.Plan) (Plan, error) {
	plan, ok := s.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan.clone(), nil
}

// VerifyPlan checks if a plan ID is valid.
func (s *Service) VerifyPlan(id tenant.Plan) error {
	if _, ok := s.plans[id]; !ok {
		return ErrPlanNotFound
	}
	return nil
}

// DefaultLimits returns the record limits a new tenant on plan id starts with.
func (s *Service) DefaultLimits(id tenant.Plan) (tenant.Limits, error) {
	plan, ok := s.plans[id]
	if !ok {
		return tenant.Limits{}, ErrPlanNotFound
	}
	return plan.TenantLimits(), nil
}

// Limit returns the effective limit of res for t: the tenant record value when
// set, the plan value otherwise.
func (s *Service) Limit(t *tenant.Tenant, res Resource) (int64, error) {
	if override := recordLimit(t.Limits, res); override != 0 {
		return override, nil
	}

	plan, ok := s.plans[t.Plan]
	if !ok {
		return 0, ErrPlanNotFound
	}
	limit, ok := plan.Limits[res]
	if !ok {
		return 0, ErrInvalidResource
	}
	return limit, nil
}

func recordLimit(l tenant.Limits, res Resource) int64 {
	switch res {
	case ResourceUsers:
		return l.MaxUsers
	case ResourceOrganizations:
		return l.MaxOrganizations
	case ResourceStorageMB:
		return l.MaxStorageMB
	default:
		return 0
	}
}

// CanCreate checks if a tenant can create a new resource instance.
func (s *Service) CanCreate(ctx context.Context, t *tenant.Tenant, res Resource) error {
	usage, err := s.Usage(ctx, t, res)
	if err != nil {
		return err
	}
	if usage.Limit == Unlimited {
		return nil
	}
	if usage.Current >= usage.Limit {
		return fmt.Errorf("%w: %s %d/%d", ErrLimitExceeded, res, usage.Current, usage.Limit)
	}
	return nil
}

// Usage returns the current usage and the effective limit of res for t.
func (s *Service) Usage(ctx context.Context, t *tenant.Tenant, res Resource) (UsageInfo, error) {
	limit, err := s.Limit(t, res)
	if err != nil {
		return UsageInfo{}, err
	}

	current, ok, err := s.counters.count(ctx, res, t.ID)
	switch {
	case err != nil:
		return UsageInfo{}, err
	case !ok:
		return UsageInfo{}, ErrNoCounterRegistered
	}

	return UsageInfo{Current: current, Limit: limit}, nil
}

// HasFeature quickly tells whether a feature is available for the tenant's plan.
func (s *Service) HasFeature(t *tenant.Tenant, feature Feature) bool {
	plan, ok := s.plans[t.Plan]
	return ok && plan.HasFeature(feature)
}

// CanDowngrade checks if current usage fits the limits of the target plan.
// Resources without a registered counter are not checked.
func (s *Service) CanDowngrade(ctx context.Context, t *tenant.Tenant, target tenant.Plan) error {
	targetPlan, ok := s.plans[target]
	if !ok {
		return ErrPlanNotFound
	}

	for res, limit := range targetPlan.Limits {
		if limit == Unlimited {
			continue
		}
		current, ok, err := s.counters.count(ctx, res, t.ID)
		if err != nil {
			return err
		}
		if ok && current > limit {
			return fmt.Errorf("%w: %s %d exceeds %d", ErrDowngradeNotPossible, res, current, limit)
		}
	}
	return nil
}

// validatePlans checks plan configurations for validity.
func validatePlans(plans map[tenant.Plan]Plan) error {
	for id, plan := range plans {
		if _, err := tenant.ParsePlan(string(id)); err != nil {
			return errors.Join(ErrInvalidPlanConfiguration, err)
		}
		for res, limit := range plan.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid %s limit: %d", id, res, limit))
			}
		}
	}
	return nil
}
