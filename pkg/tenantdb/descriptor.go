package tenantdb

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// ErrInvalidDescriptor is returned when a tenant record cannot produce a
// usable connection descriptor.
var ErrInvalidDescriptor = errors.New("invalid tenant database descriptor")

var databaseName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidDatabaseName reports whether name is safe to use as a database identifier.
func ValidDatabaseName(name string) bool {
	return len(name) <= 63 && databaseName.MatchString(name)
}

// Descriptor is everything needed to open a connection to one tenant database.
type Descriptor struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// ConnString returns a postgres URL for the descriptor.
func (d Descriptor) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// String returns the descriptor without its password, safe for logs.
func (d Descriptor) String() string {
	return fmt.Sprintf("postgres://%s@%s/%s", d.User, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.Database)
}

// Credentials is the template used to build descriptors from tenant records.
// User may contain the placeholders {database} and {tenant_id}. When
// PasswordSecret is set every tenant gets its own password derived from it.
type Credentials struct {
	User           string
	Password       string
	PasswordSecret []byte
	SSLMode        string
	DefaultHost    string
	DefaultPort    int
}

// Descriptor builds the connection descriptor of t.
func (c Credentials) Descriptor(t *tenant.Tenant) (Descriptor, error) {
	db := t.Database
	if !ValidDatabaseName(db.Name) {
		return Descriptor{}, fmt.Errorf("%w: database name %q", ErrInvalidDescriptor, db.Name)
	}

	d := Descriptor{
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Name,
		User:     c.user(t),
		Password: c.Password,
		SSLMode:  c.SSLMode,
	}
	if d.Host == "" {
		d.Host = c.DefaultHost
	}
	if d.Port == 0 {
		d.Port = c.DefaultPort
	}
	if d.Host == "" || d.Port <= 0 || d.Port > 65535 {
		return Descriptor{}, fmt.Errorf("%w: address %q:%d", ErrInvalidDescriptor, d.Host, d.Port)
	}

	if len(c.PasswordSecret) > 0 {
		pw, err := DerivePassword(c.PasswordSecret, db.Name)
		if err != nil {
			return Descriptor{}, err
		}
		d.Password = pw
	}
	return d, nil
}

func (c Credentials) user(t *tenant.Tenant) string {
	return strings.NewReplacer(
		"{database}", t.Database.Name,
		"{tenant_id}", t.ID.String(),
	).Replace(c.User)
}

// DerivePassword derives a stable per-database password from secret with HKDF-SHA256.
func DerivePassword(secret []byte, database string) (string, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("tenancy/database-password/"+database))
	buf := make([]byte, 24)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("derive password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
