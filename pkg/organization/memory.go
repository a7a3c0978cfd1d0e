package organization

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// MemoryStore keeps organizations in memory, partitioned by the tenant bound
// to the context.
type MemoryStore struct {
	mu   sync.RWMutex
	orgs map[uuid.UUID]map[uuid.UUID]*Organization
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orgs: make(map[uuid.UUID]map[uuid.UUID]*Organization)}
}

func (s *MemoryStore) partition(ctx context.Context, create bool) (map[uuid.UUID]*Organization, error) {
	id, ok := tenant.IDFromContext(ctx)
	if !ok {
		return nil, tenant.ErrNoTenantInContext
	}
	p := s.orgs[id]
	if p == nil && create {
		p = make(map[uuid.UUID]*Organization)
		s.orgs[id] = p
	}
	return p, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return nil, err
	}
	o, ok := p[id]
	if !ok || o.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (s *MemoryStore) GetByCode(ctx context.Context, code string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, o := range p {
		if o.DeletedAt == nil && o.Code == code {
			return clone(o), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Organization, 0, len(p))
	for _, o := range p {
		if o.DeletedAt == nil && f.match(o) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, true)
	if err != nil {
		return err
	}
	for _, other := range p {
		if other.DeletedAt == nil && other.Code == o.Code {
			return ErrDuplicateCode
		}
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	p[o.ID] = clone(o)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return err
	}
	cur, ok := p[o.ID]
	if !ok || cur.DeletedAt != nil {
		return ErrNotFound
	}
	for _, other := range p {
		if other.ID != o.ID && other.DeletedAt == nil && other.Code == o.Code {
			return ErrDuplicateCode
		}
	}
	o.UpdatedAt = time.Now().UTC()
	p[o.ID] = clone(o)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return err
	}
	o, ok := p[id]
	if !ok || o.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	o.DeletedAt = &now
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(ctx, false)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, o := range p {
		if o.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func clone(o *Organization) *Organization {
	c := *o
	if o.ParentID != nil {
		id := *o.ParentID
		c.ParentID = &id
	}
	c.Settings = maps.Clone(o.Settings)
	return &c
}
