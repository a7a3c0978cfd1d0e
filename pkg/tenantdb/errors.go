package tenantdb

import "errors"

var (
	// ErrRouterClosed is returned by Bind after Close.
	ErrRouterClosed = errors.New("tenantdb: router closed")

	// ErrNotBound is returned when tenant-scoped access is attempted without an
	// active binding.
	ErrNotBound = errors.New("tenantdb: no tenant database bound to context")
)
