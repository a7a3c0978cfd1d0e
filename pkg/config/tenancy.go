package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Cache drivers for the tenant directory.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverNone   = "none"
)

// Tenancy configures tenant resolution, the directory cache and tenant
// database routing.
type Tenancy struct {
	Method        string   `env:"TENANCY_IDENTIFICATION_METHOD" envDefault:"domain"`
	Header        string   `env:"TENANCY_HEADER" envDefault:"X-Tenant-Domain"`
	CentralRoutes []string `env:"TENANCY_CENTRAL_ROUTES" envSeparator:"," envDefault:"api/v1/central/*,healthz,readyz,metrics"`
	Disabled      bool     `env:"TENANCY_DISABLED" envDefault:"false"`
	AllowTrial    bool     `env:"TENANCY_ALLOW_TRIAL" envDefault:"true"`

	CacheDriver string        `env:"TENANCY_CACHE_DRIVER" envDefault:"memory"`
	CacheTTL    time.Duration `env:"TENANCY_CACHE_TTL" envDefault:"1h"`
	NegativeTTL time.Duration `env:"TENANCY_CACHE_NEGATIVE_TTL" envDefault:"30s"`
	CachePrefix string        `env:"TENANCY_CACHE_PREFIX" envDefault:"tenant:"`
	CacheSize   int           `env:"TENANCY_CACHE_SIZE" envDefault:"1000"`

	MaxPools        int    `env:"TENANCY_MAX_POOLS" envDefault:"100"`
	DBUser          string `env:"TENANCY_DB_USER" envDefault:"postgres"`
	DBPassword      string `env:"TENANCY_DB_PASSWORD"`
	DBSSLMode       string `env:"TENANCY_DB_SSLMODE" envDefault:"disable"`
	DerivePasswords bool   `env:"TENANCY_DB_DERIVE_PASSWORDS" envDefault:"false"`
	PasswordSecret  string `env:"TENANCY_DB_PASSWORD_SECRET"`
	DefaultDBHost   string `env:"TENANCY_DEFAULT_DB_HOST" envDefault:"127.0.0.1"`
	DefaultDBPort   int    `env:"TENANCY_DEFAULT_DB_PORT" envDefault:"5432"`

	DefaultMaxUsers         int64 `env:"TENANCY_DEFAULT_MAX_USERS" envDefault:"10"`
	DefaultMaxOrganizations int64 `env:"TENANCY_DEFAULT_MAX_ORGANIZATIONS" envDefault:"1"`
	DefaultMaxStorageMB     int64 `env:"TENANCY_DEFAULT_MAX_STORAGE_MB" envDefault:"1024"`

	PlansFile string `env:"TENANCY_PLANS_FILE"`

	ExpireInterval time.Duration `env:"TENANCY_EXPIRE_INTERVAL" envDefault:"5m"`
}

// Validate checks values that env parsing cannot.
func (c Tenancy) Validate() error {
	var errs []error

	if _, err := tenant.ParseMethod(c.Method); err != nil {
		errs = append(errs, fmt.Errorf("TENANCY_IDENTIFICATION_METHOD %q: %w", c.Method, err))
	}
	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverRedis, CacheDriverNone:
	default:
		errs = append(errs, fmt.Errorf("TENANCY_CACHE_DRIVER %q: must be memory, redis or none", c.CacheDriver))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("TENANCY_CACHE_TTL must be positive"))
	}
	if c.NegativeTTL < 0 {
		errs = append(errs, errors.New("TENANCY_CACHE_NEGATIVE_TTL must not be negative"))
	}
	if c.MaxPools <= 0 {
		errs = append(errs, errors.New("TENANCY_MAX_POOLS must be positive"))
	}
	if c.DerivePasswords && c.PasswordSecret == "" {
		errs = append(errs, errors.New("TENANCY_DB_PASSWORD_SECRET is required when passwords are derived"))
	}
	if c.ExpireInterval < 0 {
		errs = append(errs, errors.New("TENANCY_EXPIRE_INTERVAL must not be negative"))
	}
	if c.DefaultDBPort <= 0 || c.DefaultDBPort > 65535 {
		errs = append(errs, fmt.Errorf("TENANCY_DEFAULT_DB_PORT %d out of range", c.DefaultDBPort))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// IdentificationMethod returns the parsed method, falling back to domain.
func (c Tenancy) IdentificationMethod() tenant.Method {
	m, err := tenant.ParseMethod(c.Method)
	if err != nil {
		return tenant.MethodDomain
	}
	return m
}

// DefaultLimits returns the limits given to tenants whose plan defines none.
func (c Tenancy) DefaultLimits() tenant.Limits {
	return tenant.Limits{
		MaxUsers:         c.DefaultMaxUsers,
		MaxOrganizations: c.DefaultMaxOrganizations,
		MaxStorageMB:     c.DefaultMaxStorageMB,
	}
}
