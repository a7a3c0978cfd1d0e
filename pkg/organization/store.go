package organization

import (
	"context"

	"github.com/google/uuid"
)

// Store persists organizations of the tenant bound to the context. Every
// method is scoped to that tenant; implementations fail when no tenant is
// bound rather than reading another database.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetByCode(ctx context.Context, code string) (*Organization, error)
	List(ctx context.Context, f Filter) ([]*Organization, error)
	Create(ctx context.Context, o *Organization) error
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
}
