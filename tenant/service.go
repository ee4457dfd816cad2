package tenant

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultTokenLifetime is how long an access token issued by login stays valid.
	DefaultTokenLifetime = 24 * time.Hour

	pbkdf2Iterations = 10000
	pbkdf2KeyLength  = 32
)

// TenantCleanupFunc removes the data a store holds for a tenant.
type TenantCleanupFunc func(ctx context.Context, tenantID string) error

// Service implements the credential, password, session and tenant services.
type Service struct {
	store *Store

	clock         clock.Clock
	salt          []byte
	tokenLifetime time.Duration
	cleanups      []TenantCleanupFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for timestamps and token expiry.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = c
	}
}

// WithPasswordSalt sets the server salt mixed into every password hash.
func WithPasswordSalt(salt string) ServiceOption {
	return func(s *Service) {
		s.salt = []byte(salt)
	}
}

// WithTokenLifetime sets the lifetime of access tokens.
func WithTokenLifetime(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.tokenLifetime = d
		}
	}
}

// WithTenantCleanup registers stores that must drop tenant data when a tenant is deleted.
func WithTenantCleanup(fns ...TenantCleanupFunc) ServiceOption {
	return func(s *Service) {
		s.cleanups = append(s.cleanups, fns...)
	}
}

// NewService returns a Service over st.
func NewService(st *Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:         st,
		clock:         clock.New(),
		salt:          []byte("tenantdb"),
		tokenLifetime: DefaultTokenLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// hashPassword returns a deterministic salted hash of password.
func (s *Service) hashPassword(password string) string {
	key := pbkdf2.Key([]byte(password), s.salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

func (s *Service) passwordMatches(hashed, password string) bool {
	if hashed == "" {
		return false
	}
	return secretEqual(hashed, s.hashPassword(password))
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
