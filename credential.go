package tenantdb

import (
	"context"
	"strings"
	"time"
)

// SuperdogPrefix marks usernames of platform operators. Such credentials are
// always looked up in the root tenant.
const SuperdogPrefix = "superdog-"

// AnonymousUsername is the name carried by the identity of unauthenticated requests.
const AnonymousUsername = "anonymous"

// KeyPrincipalPrefix prefixes the name of API key identities. Usernames never
// contain a colon, so key identities cannot collide with stored credentials.
const KeyPrincipalPrefix = "key:"

// Credential is one authenticatable identity of a tenant.
type Credential struct {
	ID                   string    `json:"id"`
	TenantID             string    `json:"tenantId"`
	Username             string    `json:"username"`
	Email                string    `json:"email,omitempty"`
	Level                Level     `json:"level"`
	Roles                []string  `json:"roles,omitempty"`
	HashedPassword       string    `json:"hashedPassword,omitempty"`
	PasswordResetCode    string    `json:"passwordResetCode,omitempty"`
	Disabled             bool      `json:"disabled,omitempty"`
	AccessToken          string    `json:"accessToken,omitempty"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	Version              int64     `json:"version"`
}

// NewAnonymous returns the KEY level identity used when a request carries no credentials.
func NewAnonymous(tenantID string) *Credential {
	return &Credential{
		TenantID: tenantID,
		Username: AnonymousUsername,
		Level:    LevelKey,
	}
}

// NewKeyCredential returns the KEY level identity of an API key.
func NewKeyCredential(tenantID, keyName string) *Credential {
	return &Credential{
		TenantID: tenantID,
		Username: KeyPrincipalPrefix + keyName,
		Level:    LevelKey,
	}
}

// ReservedUsername reports whether username names an identity that is not a
// stored credential: the anonymous caller or anything shaped like a key identity.
func ReservedUsername(username string) bool {
	return strings.EqualFold(username, AnonymousUsername) || strings.Contains(username, ":")
}

// IsSuperdogName reports whether username follows the operator naming convention.
func IsSuperdogName(username string) bool {
	return strings.HasPrefix(username, SuperdogPrefix)
}

// Authenticated reports whether the credential comes from the identity store.
func (c *Credential) Authenticated() bool {
	return c.ID != ""
}

// AtLeast reports whether the credential level is at least l.
func (c *Credential) AtLeast(l Level) bool {
	return c.Level.AtLeast(l)
}

// EffectiveRoles returns the explicit roles plus the implicit ones derived from the level.
func (c *Credential) EffectiveRoles() []string {
	roles := []string{"all"}
	if c.Level == LevelKey {
		roles = append(roles, LevelKey.Role())
	}
	for l := LevelUser; l <= c.Level; l++ {
		roles = append(roles, l.Role())
	}
	return append(roles, c.Roles...)
}

// HasRole reports whether the credential holds role r, explicitly or implicitly.
func (c *Credential) HasRole(r string) bool {
	for _, role := range c.EffectiveRoles() {
		if role == r {
			return true
		}
	}
	return false
}

// PasswordIsSet reports whether the credential can log in with a password.
func (c *Credential) PasswordIsSet() bool {
	return c.HashedPassword != "" && c.PasswordResetCode == ""
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	cc := *c
	if c.Roles != nil {
		cc.Roles = append([]string(nil), c.Roles...)
	}
	return &cc
}

// ActingAs returns a copy of the credential scoped to another tenant. Superdogs
// use it to act as the tenant they address.
func (c *Credential) ActingAs(tenantID string) *Credential {
	cc := c.Clone()
	cc.TenantID = tenantID
	return cc
}

// HomeTenantID returns the tenant the credential is stored in. It differs from
// TenantID for superdogs acting as another tenant.
func (c *Credential) HomeTenantID() string {
	if c.Level == LevelSuperdog {
		return RootTenantID
	}
	return c.TenantID
}

// Ops for credential errors.
const (
	OpFindCredentialByID       = "FindCredentialByID"
	OpFindCredentialByUsername = "FindCredentialByUsername"
	OpFindCredentialByToken    = "FindCredentialByToken"
	OpFindCredentials          = "FindCredentials"
	OpCreateCredential         = "CreateCredential"
	OpUpdateCredential         = "UpdateCredential"
	OpDeleteCredential         = "DeleteCredential"
	OpComparePassword          = "ComparePassword"
	OpSetPassword              = "SetPassword"
)

// CredentialFilter represents a set of filters that restrict the returned credentials.
type CredentialFilter struct {
	TenantID string
	Username *string
	Level    *Level
}

// FindOptions represents options passed to all find methods with multiple results.
type FindOptions struct {
	Limit  int
	Offset int
}

// CredentialUpdate represents updates to a credential. Only fields which are set are updated.
type CredentialUpdate struct {
	Email       *string  `json:"email,omitempty"`
	Level       *Level   `json:"level,omitempty"`
	Disabled    *bool    `json:"disabled,omitempty"`
	GrantRoles  []string `json:"-"`
	RevokeRoles []string `json:"-"`
}

// Apply applies the update to c and reports whether something changed.
func (u CredentialUpdate) Apply(c *Credential) bool {
	changed := false
	if u.Email != nil && *u.Email != c.Email {
		c.Email = *u.Email
		changed = true
	}
	if u.Level != nil && *u.Level != c.Level {
		c.Level = *u.Level
		changed = true
	}
	if u.Disabled != nil && *u.Disabled != c.Disabled {
		c.Disabled = *u.Disabled
		changed = true
	}
	for _, r := range u.GrantRoles {
		if !containsString(c.Roles, r) {
			c.Roles = append(c.Roles, r)
			changed = true
		}
	}
	for _, r := range u.RevokeRoles {
		for i := range c.Roles {
			if c.Roles[i] == r {
				c.Roles = append(c.Roles[:i], c.Roles[i+1:]...)
				changed = true
				break
			}
		}
	}
	return changed
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// CredentialService manages the identity store of every tenant.
type CredentialService interface {
	// FindCredentialByID returns a single credential by tenant and id.
	FindCredentialByID(ctx context.Context, tenantID, id string) (*Credential, error)

	// FindCredentialByUsername returns a single credential by tenant and username.
	FindCredentialByUsername(ctx context.Context, tenantID, username string) (*Credential, error)

	// FindCredentialByToken returns the credential owning an unexpired access token.
	FindCredentialByToken(ctx context.Context, token string) (*Credential, error)

	// FindCredentials returns the credentials matching filter and the total count of matches.
	FindCredentials(ctx context.Context, filter CredentialFilter, opts ...FindOptions) ([]*Credential, int, error)

	// CreateCredential creates c, hashing password when it is not empty.
	CreateCredential(ctx context.Context, c *Credential, password string) error

	// UpdateCredential applies upd to a credential.
	UpdateCredential(ctx context.Context, tenantID, id string, upd CredentialUpdate) (*Credential, error)

	// DeleteCredential removes a credential. Deleting an unknown credential is not an error.
	DeleteCredential(ctx context.Context, tenantID, id string) error
}

// PasswordService manages credential passwords.
type PasswordService interface {
	// ComparePassword returns the credential named username when password matches its hash.
	ComparePassword(ctx context.Context, tenantID, username, password string) (*Credential, error)

	// SetPassword replaces the password of a credential and clears any reset code.
	SetPassword(ctx context.Context, tenantID, id, password string) error

	// SetPasswordWithCode sets the password of a credential holding the reset code.
	SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) error

	// ResetPassword removes the password of a credential and returns a new reset code.
	ResetPassword(ctx context.Context, tenantID, id string) (string, error)
}

// SessionService issues and revokes access tokens.
type SessionService interface {
	// CreateSession issues a new access token for the credential.
	CreateSession(ctx context.Context, tenantID, id string) (*Credential, error)

	// ExpireSession revokes the access token of the credential.
	ExpireSession(ctx context.Context, tenantID, id string) error
}
