package limits

// Resource represents a countable tenant resource type.
type Resource string

// Predefined resource types.
const (
	ResourceUsers         Resource = "users"
	ResourceOrganizations Resource = "organizations"
	ResourceStorageMB     Resource = "storage_mb"
)

// Unlimited represents a resource with no limit.
const Unlimited int64 = -1

// Feature is a plan-specific feature flag.
type Feature string

// Feature flags of the built-in plans.
const (
	FeatureCoreModules        Feature = "core_modules"
	FeatureAdvancedReporting  Feature = "advanced_reporting"
	FeatureAPIAccess          Feature = "api_access"
	FeatureCustomIntegrations Feature = "custom_integrations"
	FeaturePrioritySupport    Feature = "priority_support"
)

// Features returns every known feature flag.
func Features() []Feature {
	return []Feature{
		FeatureCoreModules, FeatureAdvancedReporting, FeatureAPIAccess,
		FeatureCustomIntegrations, FeaturePrioritySupport,
	}
}

// UsageInfo contains the current usage and limit for a resource.
type UsageInfo struct {
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}
