package context

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

type contextKey string

const (
	securityCtxKey = contextKey("tenantdb/security/v1")
)

// Security is the request scoped security state. It is created once per top level
// request and shared by every batch sub-request replayed from it.
type Security struct {
	TenantID string
	Test     bool
	Debug    bool

	mu         sync.Mutex
	done       bool
	credential *tenantdb.Credential
	err        error
	checks     int
	settings   map[string]json.RawMessage
}

// NewSecurity returns the security state of a request addressing tenantID.
func NewSecurity(tenantID string) *Security {
	return &Security{
		TenantID: tenantID,
		settings: make(map[string]json.RawMessage),
	}
}

// Authenticate runs check the first time it is called and memoizes its outcome.
// Nested handlers and batch sub-requests reuse the first result.
func (s *Security) Authenticate(check func() (*tenantdb.Credential, error)) (*tenantdb.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.credential, s.err
	}
	s.checks++
	s.credential, s.err = check()
	s.done = true
	if s.err == nil && s.credential != nil {
		s.TenantID = s.credential.TenantID
	}
	return s.credential, s.err
}

// Credential returns the authenticated credential.
func (s *Security) Credential() (*tenantdb.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Msg:  "request has not been authenticated",
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.credential, nil
}

// CredentialChecks returns how many times credentials were actually verified.
func (s *Security) CredentialChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

// Settings returns the settings cached for this request.
func (s *Security) Settings(id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[id]
	return v, ok
}

// CacheSettings caches settings for the rest of the request.
func (s *Security) CacheSettings(id string, v json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[id] = v
}

// EvictSettings drops cached settings after they were written.
func (s *Security) EvictSettings(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, id)
}

// SetSecurity sets the security state on context.
func SetSecurity(ctx context.Context, s *Security) context.Context {
	return context.WithValue(ctx, securityCtxKey, s)
}

// GetSecurity retrieves the security state from context.
func GetSecurity(ctx context.Context) (*Security, error) {
	s, ok := ctx.Value(securityCtxKey).(*Security)
	if !ok {
		return nil, &errors.Error{
			Msg:  "security context not found on context",
			Code: errors.EInternal,
		}
	}
	return s, nil
}

// GetCredential retrieves the authenticated credential from context.
func GetCredential(ctx context.Context) (*tenantdb.Credential, error) {
	s, err := GetSecurity(ctx)
	if err != nil {
		return nil, err
	}
	return s.Credential()
}

// GetTenantID retrieves the resolved tenant id from context.
func GetTenantID(ctx context.Context) (string, error) {
	c, err := GetCredential(ctx)
	if err != nil {
		return "", err
	}
	return c.TenantID, nil
}

// IsDebug reports whether the request asked for debug output.
func IsDebug(ctx context.Context) bool {
	s, err := GetSecurity(ctx)
	return err == nil && s.Debug
}
