package api

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// UsageReader reports resource usage against plan limits.
// *limits.Service implements it.
type UsageReader interface {
	Usage(ctx context.Context, t *tenant.Tenant, res limits.Resource) (limits.UsageInfo, error)
}

// FeatureChecker reports plan features. When the UsageReader passed to
// CurrentTenant implements it, the enabled features are listed in the meta.
type FeatureChecker interface {
	HasFeature(t *tenant.Tenant, feature limits.Feature) bool
}

// CurrentTenant serves the tenant bound to the request together with its
// organization usage.
func CurrentTenant(usage UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := tenant.Current(r.Context())
		if err != nil {
			Error(w, r, err)
			return
		}

		if usage == nil {
			JSON(w, http.StatusOK, t)
			return
		}
		info, err := usage.Usage(r.Context(), t, limits.ResourceOrganizations)
		if err != nil {
			Error(w, r, err)
			return
		}
		meta := map[string]any{string(limits.ResourceOrganizations): info}
		if fc, ok := usage.(FeatureChecker); ok {
			meta["features"] = enabledFeatures(fc, t)
		}
		JSONWithMeta(w, http.StatusOK, t, meta)
	}
}

func enabledFeatures(fc FeatureChecker, t *tenant.Tenant) []limits.Feature {
	out := []limits.Feature{}
	for _, f := range limits.Features() {
		if fc.HasFeature(t, f) {
			out = append(out, f)
		}
	}
	return out
}
