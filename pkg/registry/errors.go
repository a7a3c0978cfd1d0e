package registry

import "errors"

var (
	ErrDuplicate          = errors.New("tenant domain, subdomain or database already exists")
	ErrInvalidTenant      = errors.New("invalid tenant")
	ErrInvalidTransition  = errors.New("tenant status transition not allowed")
	ErrInvalidRenewal     = errors.New("subscription end must be in the future")
	ErrProvisioningFailed = errors.New("tenant provisioning failed")
	ErrUnknownPlan        = errors.New("unknown tenant plan")
)
