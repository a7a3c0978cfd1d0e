package organization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/limits"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// maxDepth bounds ancestor walks so corrupted data cannot loop forever.
const maxDepth = 64

// LimitChecker decides whether the tenant may create another resource.
// *limits.Service implements it.
type LimitChecker interface {
	CanCreate(ctx context.Context, t *tenant.Tenant, res limits.Resource) error
}

// CreateInput describes a new organization. Empty optional fields get the
// package defaults.
type CreateInput struct {
	ParentID    *uuid.UUID     `json:"parent_id"`
	Name        string         `json:"name"`
	Code        string         `json:"code"`
	Description string         `json:"description"`
	Type        Type           `json:"type"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	Address     string         `json:"address"`
	City        string         `json:"city"`
	State       string         `json:"state"`
	Country     string         `json:"country"`
	PostalCode  string         `json:"postal_code"`
	Currency    string         `json:"currency"`
	Timezone    string         `json:"timezone"`
	Locale      string         `json:"locale"`
	Settings    map[string]any `json:"settings"`
}

// UpdateInput changes the non-nil fields of an organization.
type UpdateInput struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Type        *Type          `json:"type"`
	Status      *Status        `json:"status"`
	Email       *string        `json:"email"`
	Phone       *string        `json:"phone"`
	Currency    *string        `json:"currency"`
	Timezone    *string        `json:"timezone"`
	Locale      *string        `json:"locale"`
	Settings    map[string]any `json:"settings"`
}

// Service manages the organization tree of the tenant bound to the context.
type Service struct {
	store  Store
	limits LimitChecker
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLimits enforces the organization limit of the tenant plan on Create.
func WithLimits(l LimitChecker) Option {
	return func(s *Service) { s.limits = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an organization to the current tenant.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Organization, error) {
	t, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}

	o := &Organization{
		ID:          uuid.New(),
		TenantID:    t.ID,
		ParentID:    in.ParentID,
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Description: in.Description,
		Type:        in.Type,
		Status:      StatusActive,
		Email:       in.Email,
		Phone:       in.Phone,
		Address:     in.Address,
		City:        in.City,
		State:       in.State,
		Country:     in.Country,
		PostalCode:  in.PostalCode,
		Currency:    strings.ToUpper(in.Currency),
		Timezone:    in.Timezone,
		Locale:      in.Locale,
		Settings:    in.Settings,
	}
	applyDefaults(o)
	if err := validate(o); err != nil {
		return nil, err
	}

	if o.ParentID != nil {
		if _, err := s.store.Get(ctx, *o.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
	}

	if s.limits != nil {
		if err := s.limits.CanCreate(ctx, t, limits.ResourceOrganizations); err != nil {
			return nil, err
		}
	}

	generated := in.Code == ""
	for attempt := 0; ; attempt++ {
		err = s.store.Create(ctx, o)
		if !errors.Is(err, ErrDuplicateCode) || !generated || attempt == 2 {
			break
		}
		o.Code = generateCode(o.Name)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "organization created",
		slog.String("organization_id", o.ID.String()),
		slog.String("code", o.Code),
	)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Organization, error) {
	return s.store.GetByCode(ctx, code)
}

// List returns organizations matching f ordered by name.
func (s *Service) List(ctx context.Context, f Filter) ([]*Organization, error) {
	return s.store.List(ctx, f)
}

// Roots returns organizations without a parent.
func (s *Service) Roots(ctx context.Context) ([]*Organization, error) {
	return s.store.List(ctx, Filter{RootsOnly: true})
}

// Children returns the direct children of id.
func (s *Service) Children(ctx context.Context, id uuid.UUID) ([]*Organization, error) {
	return s.store.List(ctx, Filter{ParentID: &id})
}

// Active returns organizations with status active.
func (s *Service) Active(ctx context.Context) ([]*Organization, error) {
	return s.store.List(ctx, Filter{Status: StatusActive})
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Counter adapts Count to the limits counter registry. The tenant id is
// implied by the database bound to ctx.
func (s *Service) Counter() limits.CounterFunc {
	return func(ctx context.Context, _ uuid.UUID) (int64, error) {
		return s.store.Count(ctx)
	}
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Organization, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setIf(&o.Name, in.Name)
	setIf(&o.Description, in.Description)
	setIf(&o.Type, in.Type)
	setIf(&o.Status, in.Status)
	setIf(&o.Email, in.Email)
	setIf(&o.Phone, in.Phone)
	setIf(&o.Currency, in.Currency)
	setIf(&o.Timezone, in.Timezone)
	setIf(&o.Locale, in.Locale)
	if in.Settings != nil {
		o.Settings = in.Settings
	}
	o.Name = strings.TrimSpace(o.Name)
	o.Currency = strings.ToUpper(o.Currency)

	if err := validate(o); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Move re-parents id under parentID, or makes it a root when parentID is nil.
// An organization can never become its own ancestor.
func (s *Service) Move(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) (*Organization, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if *parentID == id {
			return nil, ErrCycle
		}
		if err := s.checkAncestors(ctx, id, *parentID); err != nil {
			return nil, err
		}
	}

	o.ParentID = parentID
	if err := s.store.Update(ctx, o); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "organization moved", slog.String("organization_id", id.String()))
	return o, nil
}

// checkAncestors walks up from parentID and fails if id is on the path.
func (s *Service) checkAncestors(ctx context.Context, id, parentID uuid.UUID) error {
	cur := parentID
	for range maxDepth {
		p, err := s.store.Get(ctx, cur)
		if errors.Is(err, ErrNotFound) {
			if cur == parentID {
				return ErrParentNotFound
			}
			return nil
		}
		if err != nil {
			return err
		}
		if p.ParentID == nil {
			return nil
		}
		if *p.ParentID == id {
			return ErrCycle
		}
		cur = *p.ParentID
	}
	return fmt.Errorf("%w: hierarchy deeper than %d", ErrCycle, maxDepth)
}

// Delete soft-deletes an organization without children.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	children, err := s.store.List(ctx, Filter{ParentID: &id})
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return ErrHasChildren
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "organization deleted", slog.String("organization_id", id.String()))
	return nil
}

func applyDefaults(o *Organization) {
	if o.Type == "" {
		o.Type = TypeHeadquarters
		if o.ParentID != nil {
			o.Type = TypeBranch
		}
	}
	if o.Code == "" {
		o.Code = generateCode(o.Name)
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.Timezone == "" {
		o.Timezone = DefaultTimezone
	}
	if o.Locale == "" {
		o.Locale = DefaultLocale
	}
}

func validate(o *Organization) error {
	switch {
	case o.Name == "" || utf8.RuneCountInString(o.Name) > 255:
		return fmt.Errorf("%w: name must be 1-255 characters", ErrInvalidOrganization)
	case utf8.RuneCountInString(o.Code) > 50:
		return fmt.Errorf("%w: code longer than 50 characters", ErrInvalidOrganization)
	case !o.Type.valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOrganization, o.Type)
	case !o.Status.valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrganization, o.Status)
	case len(o.Currency) != 3:
		return fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidOrganization)
	}
	return nil
}

// generateCode builds the first three letters of the name, upper-cased, plus
// a short random suffix.
func generateCode(name string) string {
	var prefix []rune
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			prefix = append(prefix, unicode.ToUpper(r))
			if len(prefix) == 3 {
				break
			}
		}
	}
	if len(prefix) == 0 {
		prefix = []rune("ORG")
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return string(prefix) + suffix
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
