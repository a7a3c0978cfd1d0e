package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type plansFile struct {
	Plans map[string]planEntry `yaml:"plans"`
}

type planEntry struct {
	Name             string   `yaml:"name"`
	MaxUsers         *int64   `yaml:"max_users"`
	MaxOrganizations *int64   `yaml:"max_organizations"`
	MaxStorageMB     *int64   `yaml:"max_storage_mb"`
	Features         []string `yaml:"features"`
}

// LoadPlans returns the built-in plan catalog with the plans of the YAML file
// at path laid over it. An empty path returns the built-in catalog.
//
//	plans:
//	  professional:
//	    name: Professional
//	    max_users: 75
//	    features: [core_modules, api_access]
func LoadPlans(path string) (map[tenant.Plan]limits.Plan, error) {
	plans := limits.DefaultPlans()
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrPlansFile, err)
	}
	return mergePlans(plans, data)
}

func mergePlans(plans map[tenant.Plan]limits.Plan, data []byte) (map[tenant.Plan]limits.Plan, error) {
	var file plansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Join(ErrPlansFile, err)
	}

	for id, entry := range file.Plans {
		planID, err := tenant.ParsePlan(id)
		if err != nil {
			return nil, errors.Join(ErrPlansFile, err)
		}

		plan, ok := plans[planID]
		if !ok {
			plan = limits.Plan{ID: planID, Limits: map[limits.Resource]int64{}}
		}
		if entry.Name != "" {
			plan.Name = entry.Name
		}
		setLimit(plan.Limits, limits.ResourceUsers, entry.MaxUsers)
		setLimit(plan.Limits, limits.ResourceOrganizations, entry.MaxOrganizations)
		setLimit(plan.Limits, limits.ResourceStorageMB, entry.MaxStorageMB)
		if entry.Features != nil {
			plan.Features = make([]limits.Feature, 0, len(entry.Features))
			for _, f := range entry.Features {
				plan.Features = append(plan.Features, limits.Feature(f))
			}
		}
		for res, v := range plan.Limits {
			if v < limits.Unlimited {
				return nil, errors.Join(ErrPlansFile, fmt.Errorf("plan %s: invalid %s limit %d", id, res, v))
			}
		}

		plans[planID] = plan
	}
	return plans, nil
}

func setLimit(m map[limits.Resource]int64, res limits.Resource, v *int64) {
	if v != nil {
		m[res] = *v
	}
}
