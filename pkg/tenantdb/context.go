package tenantdb

import "context"

type bindingKey struct{}

// WithBinding returns a context carrying b.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// BindingFromContext returns the binding attached to ctx.
func BindingFromContext(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	return b, ok && b != nil
}

// Conn returns the database for ctx: the tenant database when a binding is
// attached, the central database otherwise. A released binding yields
// ErrNotBound rather than the central database.
func (r *Router) Conn(ctx context.Context) (DB, error) {
	if b, ok := BindingFromContext(ctx); ok {
		return b.DB()
	}
	return r.central, nil
}

// TenantConn returns the tenant database bound to ctx or ErrNotBound. Use it
// in tenant-scoped stores so that a missing binding never falls back to the
// central database.
func TenantConn(ctx context.Context) (DB, error) {
	b, ok := BindingFromContext(ctx)
	if !ok {
		return nil, ErrNotBound
	}
	return b.DB()
}
