package tenant

import "strings"

// CentralRoutes is a set of path prefixes served from the central database
// without tenant resolution.
type CentralRoutes struct {
	prefixes []string
}

// NewCentralRoutes normalises patterns like "/api/v1/central/*" or "healthz".
// A trailing "*" marks a prefix; patterns without it still match by prefix.
func NewCentralRoutes(patterns ...string) CentralRoutes {
	prefixes := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "/")
		p = strings.TrimSuffix(p, "*")
		if p == "" {
			continue
		}
		prefixes = append(prefixes, p)
	}
	return CentralRoutes{prefixes: prefixes}
}

// Match reports whether the path bypasses tenant resolution.
func (c CentralRoutes) Match(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, p := range c.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Prefixes returns the normalised prefixes.
func (c CentralRoutes) Prefixes() []string {
	return append([]string(nil), c.prefixes...)
}
