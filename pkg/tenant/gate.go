package tenant

import (
	"time"
)

// Reason is a machine-readable rejection reason.
type Reason string

const (
	ReasonSuspended Reason = "suspended"
	ReasonExpired   Reason = "expired"
	ReasonTrial     Reason = "trial"
	ReasonNotActive Reason = "not_active"
)

const (
	msgSuspended = "This tenant has been suspended. Please contact support."
	msgExpired   = "This tenant subscription has expired. Please renew your subscription."
	msgTrial     = "This tenant is in trial mode."
	msgNotActive = "This tenant is not currently active."
)

// Decision is the outcome of the status gate.
type Decision struct {
	Allowed bool
	Reason  Reason
	Message string
	// Advisory is a notice for accepted tenants, set for trial tenants.
	Advisory string
}

// Err returns the rejection as a *NotActiveError, or nil when allowed.
func (d Decision) Err(t *Tenant) error {
	if d.Allowed {
		return nil
	}
	return &NotActiveError{TenantID: t.ID, Reason: d.Reason, Message: d.Message}
}

// Gate decides whether a resolved tenant may be served.
type Gate struct {
	now        func() time.Time
	allowTrial bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock overrides the time source used for subscription expiry.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithTrialAccess controls whether trial tenants are served. Enabled by default.
func WithTrialAccess(allow bool) GateOption {
	return func(g *Gate) {
		g.allowTrial = allow
	}
}

// NewGate creates a status gate.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{now: time.Now, allowTrial: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate checks, in order: suspension, effective expiry, then the stored status.
func (g *Gate) Evaluate(t *Tenant) Decision {
	if t.IsSuspended() {
		return reject(ReasonSuspended, msgSuspended)
	}
	if t.IsExpired(g.now()) {
		return reject(ReasonExpired, msgExpired)
	}

	switch t.Status {
	case StatusActive:
		return Decision{Allowed: true}
	case StatusTrial:
		if !g.allowTrial {
			return reject(ReasonTrial, msgTrial)
		}
		return Decision{Allowed: true, Advisory: msgTrial}
	case StatusSuspended:
		return reject(ReasonSuspended, msgSuspended)
	case StatusExpired:
		return reject(ReasonExpired, msgExpired)
	default:
		return reject(ReasonNotActive, msgNotActive)
	}
}

func reject(reason Reason, msg string) Decision {
	return Decision{Reason: reason, Message: msg}
}
