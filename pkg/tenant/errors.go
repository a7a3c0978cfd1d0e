package tenant

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the resolved key.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotActive is returned when the status gate rejects a tenant.
	ErrTenantNotActive = errors.New("tenant is not active")

	// ErrRegistryUnavailable is returned when the tenant registry cannot be queried.
	ErrRegistryUnavailable = errors.New("tenant registry unavailable")

	// ErrConnectionSwitch is returned when the tenant database cannot be bound.
	ErrConnectionSwitch = errors.New("tenant database connection failed")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrInvalidMethod is returned for an unknown identification method.
	ErrInvalidMethod = errors.New("invalid tenant identification method")
)

// NotActiveError carries the gate decision that rejected a tenant.
type NotActiveError struct {
	TenantID uuid.UUID
	Reason   Reason
	Message  string
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("tenant %s is not active: %s", e.TenantID, e.Reason)
}

func (e *NotActiveError) Unwrap() error { return ErrTenantNotActive }
