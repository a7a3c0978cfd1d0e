package tenant

import (
	"net"
	"net/http"
	"strings"
)

// Method is a tenant identification strategy.
type Method string

const (
	MethodDomain    Method = "domain"
	MethodSubdomain Method = "subdomain"
	MethodHeader    Method = "header"
)

// DefaultHeader is the trust header read by the header method.
const DefaultHeader = "X-Tenant-Domain"

// ParseMethod validates a configured identification method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodDomain, MethodSubdomain, MethodHeader:
		return m, nil
	}
	return "", ErrInvalidMethod
}

// Resolver derives the canonical directory key from a request.
// It never touches the network and never fails.
type Resolver interface {
	Resolve(r *http.Request) string
}

// ResolverFunc is an adapter to allow the use of ordinary functions as Resolvers.
type ResolverFunc func(r *http.Request) string

// Resolve calls the function.
func (f ResolverFunc) Resolve(r *http.Request) string {
	return f(r)
}

// NewResolver returns the resolver for the given method. Unknown methods fall
// back to the domain resolver. header is only used by MethodHeader.
func NewResolver(method Method, header string) Resolver {
	switch method {
	case MethodSubdomain:
		return NewSubdomainResolver()
	case MethodHeader:
		return NewHeaderResolver(header)
	default:
		return NewDomainResolver()
	}
}

// NewDomainResolver uses the full request host as the key.
func NewDomainResolver() Resolver {
	return ResolverFunc(RequestHost)
}

// NewSubdomainResolver uses the first label of hosts with more than two labels
// ("acme" for "acme.app.com") and the full host otherwise.
func NewSubdomainResolver() Resolver {
	return ResolverFunc(func(r *http.Request) string {
		host := RequestHost(r)
		if net.ParseIP(host) != nil {
			return host
		}
		parts := strings.Split(host, ".")
		if len(parts) > 2 && parts[0] != "" {
			return parts[0]
		}
		return host
	})
}

// NewHeaderResolver reads the trust header and falls back to the request host.
func NewHeaderResolver(header string) Resolver {
	if header == "" {
		header = DefaultHeader
	}
	return ResolverFunc(func(r *http.Request) string {
		if v := strings.ToLower(strings.TrimSpace(r.Header.Get(header))); v != "" {
			return v
		}
		return RequestHost(r)
	})
}

// RequestHost returns the lower-cased request host without its port.
func RequestHost(r *http.Request) string {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	return canonicalHost(host)
}

func canonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return strings.TrimSuffix(host, ".")
}
