package tenantdb

import (
	"context"
	"net"
	"regexp"
	"strings"
	"time"
)

// RootTenantID is the platform tenant holding cross-tenant operator credentials.
const RootTenantID = "api"

var tenantIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Tenant is an isolated namespace of credentials, schemas and objects.
type Tenant struct {
	ID        string    `json:"id"`
	Keys      []APIKey  `json:"keys,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIKey grants KEY level access to a tenant.
type APIKey struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// DefaultKeyName names the key created with every tenant.
const DefaultKeyName = "default"

// Key returns the tenant key named name.
func (t *Tenant) Key(name string) (APIKey, bool) {
	for _, k := range t.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return APIKey{}, false
}

// ValidTenantID reports whether id can name a tenant.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// TenantFromHost resolves the tenant addressed by a request host. A host made of
// three labels yields its first label, anything else resolves to the root tenant.
func TenantFromHost(host string) (string, error) {
	h := strings.TrimSpace(host)
	if h == "" {
		return RootTenantID, nil
	}
	if hostname, _, err := net.SplitHostPort(h); err == nil {
		h = hostname
	}
	h = strings.ToLower(strings.TrimSuffix(h, "."))

	if ip := net.ParseIP(strings.Trim(h, "[]")); ip != nil {
		return RootTenantID, nil
	}

	labels := strings.Split(h, ".")
	for _, l := range labels {
		if !validLabel(l) {
			return "", ErrTenantResolution(host)
		}
	}
	if len(labels) == 3 {
		return labels[0], nil
	}
	return RootTenantID, nil
}

func validLabel(l string) bool {
	if l == "" || len(l) > 63 {
		return false
	}
	for _, r := range l {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// TenantCreate holds the first SUPER_ADMIN of a tenant being provisioned.
type TenantCreate struct {
	TenantID string `json:"-"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Ops for tenant errors.
const (
	OpCreateTenant   = "CreateTenant"
	OpFindTenantByID = "FindTenantByID"
	OpFindTenants    = "FindTenants"
	OpDeleteTenant   = "DeleteTenant"
)

// TenantService provisions and removes tenants.
type TenantService interface {
	// CreateTenant creates a tenant, its default key and its first SUPER_ADMIN credential.
	CreateTenant(ctx context.Context, tc TenantCreate) (*Tenant, *Credential, error)

	// FindTenantByID returns a single tenant.
	FindTenantByID(ctx context.Context, id string) (*Tenant, error)

	// FindTenants returns every tenant.
	FindTenants(ctx context.Context) ([]*Tenant, error)

	// DeleteTenant removes a tenant and everything it owns.
	DeleteTenant(ctx context.Context, id string) error

	// CheckKey verifies an API key secret.
	CheckKey(ctx context.Context, tenantID, name, secret string) error
}
