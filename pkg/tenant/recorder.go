package tenant

// Resolution outcomes reported to a Recorder.
const (
	OutcomeBypass              = "bypass"
	OutcomeBound               = "bound"
	OutcomeNotFound            = "not_found"
	OutcomeNotActive           = "not_active"
	OutcomeRegistryUnavailable = "registry_unavailable"
	OutcomeConnectionFailed    = "connection_failed"
	OutcomeError               = "error"
)

// Cache lookup results reported to a Recorder.
const (
	CacheHit         = "hit"
	CacheNegativeHit = "negative_hit"
	CacheMiss        = "miss"
	CacheError       = "error"
)

// Recorder receives pipeline events, typically to update metrics.
type Recorder interface {
	Resolution(outcome string)
	CacheLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) Resolution(string)  {}
func (nopRecorder) CacheLookup(string) {}
