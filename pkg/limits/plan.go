package limits

import (
	"maps"
	"slices"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Plan describes a subscription plan and its resource/feature constraints.
type Plan struct {
	ID       tenant.Plan
	Name     string
	Limits   map[Resource]int64 // Resource limits
	Features []Feature          // Feature flags enabled for this plan
}

// DefaultPlans returns the built-in plan catalog.
func DefaultPlans() map[tenant.Plan]Plan {
	return map[tenant.Plan]Plan{
		tenant.PlanBasic: {
			ID:   tenant.PlanBasic,
			Name: "Basic",
			Limits: map[Resource]int64{
				ResourceUsers:         10,
				ResourceOrganizations: 1,
				ResourceStorageMB:     1024,
			},
			Features: []Feature{FeatureCoreModules},
		},
		tenant.PlanProfessional: {
			ID:   tenant.PlanProfessional,
			Name: "Professional",
			Limits: map[Resource]int64{
				ResourceUsers:         50,
				ResourceOrganizations: 5,
				ResourceStorageMB:     10240,
			},
			Features: []Feature{FeatureCoreModules, FeatureAdvancedReporting, FeatureAPIAccess},
		},
		tenant.PlanEnterprise: {
			ID:   tenant.PlanEnterprise,
			Name: "Enterprise",
			Limits: map[Resource]int64{
				ResourceUsers:         Unlimited,
				ResourceOrganizations: Unlimited,
				ResourceStorageMB:     Unlimited,
			},
			Features: []Feature{
				FeatureCoreModules, FeatureAdvancedReporting, FeatureAPIAccess,
				FeatureCustomIntegrations, FeaturePrioritySupport,
			},
		},
	}
}

// HasFeature reports whether the plan enables feature.
func (p Plan) HasFeature(feature Feature) bool {
	return slices.Contains(p.Features, feature)
}

// TenantLimits converts the plan limits into the per-tenant record form.
func (p Plan) TenantLimits() tenant.Limits {
	return tenant.Limits{
		MaxUsers:         p.Limits[ResourceUsers],
		MaxOrganizations: p.Limits[ResourceOrganizations],
		MaxStorageMB:     p.Limits[ResourceStorageMB],
	}
}

func (p Plan) clone() Plan {
	p.Limits = maps.Clone(p.Limits)
	p.Features = slices.Clone(p.Features)
	return p
}

// ResourceChange represents a change in resource limit.
type ResourceChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// PlanComparison contains the differences between two plans.
type PlanComparison struct {
	NewFeatures     []Feature
	LostFeatures    []Feature
	IncreasedLimits map[Resource]ResourceChange
	DecreasedLimits map[Resource]ResourceChange
}

// HasResourceDecreases returns true if any resources have decreased limits.
func (c *PlanComparison) HasResourceDecreases() bool {
	return len(c.DecreasedLimits) > 0
}

// ComparePlans returns the differences between current and target plans.
// A resource missing from one side is treated as a zero limit.
func ComparePlans(current, target Plan) *PlanComparison {
	cmp := &PlanComparison{
		IncreasedLimits: make(map[Resource]ResourceChange),
		DecreasedLimits: make(map[Resource]ResourceChange),
	}

	for _, f := range target.Features {
		if !current.HasFeature(f) {
			cmp.NewFeatures = append(cmp.NewFeatures, f)
		}
	}
	for _, f := range current.Features {
		if !target.HasFeature(f) {
			cmp.LostFeatures = append(cmp.LostFeatures, f)
		}
	}

	seen := make(map[Resource]struct{}, len(current.Limits))
	for res := range current.Limits {
		seen[res] = struct{}{}
	}
	for res := range target.Limits {
		seen[res] = struct{}{}
	}

	for res := range seen {
		from, to := current.Limits[res], target.Limits[res]
		if from == to {
			continue
		}
		change := ResourceChange{From: from, To: to}
		if exceeds(to, from) {
			cmp.IncreasedLimits[res] = change
		} else {
			cmp.DecreasedLimits[res] = change
		}
	}

	return cmp
}

// exceeds reports whether limit a allows more than limit b.
func exceeds(a, b int64) bool {
	switch {
	case a == Unlimited:
		return b != Unlimited
	case b == Unlimited:
		return false
	default:
		return a > b
	}
}
