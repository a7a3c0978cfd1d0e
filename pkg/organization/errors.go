package organization

import "errors"

var (
	ErrNotFound            = errors.New("organization.errors.not_found")
	ErrParentNotFound      = errors.New("organization.errors.parent_not_found")
	ErrCycle               = errors.New("organization.errors.cycle")
	ErrHasChildren         = errors.New("organization.errors.has_children")
	ErrDuplicateCode       = errors.New("organization.errors.duplicate_code")
	ErrInvalidOrganization = errors.New("organization.errors.invalid")
)
