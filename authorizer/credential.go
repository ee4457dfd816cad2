package authorizer

import (
	"context"

	"github.com/tenantdb/tenantdb"
)

var _ tenantdb.CredentialService = (*CredentialService)(nil)

// CredentialService wraps a tenantdb.CredentialService and authorizes actions
// against it appropriately.
type CredentialService struct {
	s tenantdb.CredentialService
}

// NewCredentialService constructs an instance of an authorizing credential service.
func NewCredentialService(s tenantdb.CredentialService) *CredentialService {
	return &CredentialService{s: s}
}

// FindCredentialByID checks the caller is the credential or an ADMIN.
func (s *CredentialService) FindCredentialByID(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	if _, err := requireMyselfOrLevel(ctx, tenantID, id, tenantdb.LevelAdmin); err != nil {
		return nil, err
	}
	return s.s.FindCredentialByID(ctx, tenantID, id)
}

// FindCredentialByUsername checks the caller is an ADMIN.
func (s *CredentialService) FindCredentialByUsername(ctx context.Context, tenantID, username string) (*tenantdb.Credential, error) {
	if _, err := requireLevel(ctx, tenantID, tenantdb.LevelAdmin); err != nil {
		return nil, err
	}
	return s.s.FindCredentialByUsername(ctx, tenantID, username)
}

// FindCredentialByToken resolves the owner of a token. The token is its own authorization.
func (s *CredentialService) FindCredentialByToken(ctx context.Context, token string) (*tenantdb.Credential, error) {
	return s.s.FindCredentialByToken(ctx, token)
}

// FindCredentials checks the caller is an ADMIN.
func (s *CredentialService) FindCredentials(ctx context.Context, filter tenantdb.CredentialFilter, opts ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error) {
	if _, err := requireLevel(ctx, filter.TenantID, tenantdb.LevelAdmin); err != nil {
		return nil, 0, err
	}
	return s.s.FindCredentials(ctx, filter, opts...)
}

// CreateCredential lets ADMINs create credentials up to their own level.
// Anyone else may only sign up USER credentials.
func (s *CredentialService) CreateCredential(ctx context.Context, c *tenantdb.Credential, password string) error {
	caller, err := requireLevel(ctx, c.TenantID, tenantdb.LevelKey)
	if err != nil {
		return err
	}
	if caller.AtLeast(tenantdb.LevelAdmin) {
		if !caller.AtLeast(c.Level) {
			return tenantdb.ErrInsufficientPrivilege(caller.Level, c.Level)
		}
	} else if c.Level != tenantdb.LevelUser {
		return tenantdb.ErrInsufficientPrivilege(caller.Level, tenantdb.LevelAdmin)
	}
	return s.s.CreateCredential(ctx, c, password)
}

// UpdateCredential lets a credential change its own email. Levels, roles and
// the disabled flag are changed by ADMINs and never above their own level.
func (s *CredentialService) UpdateCredential(ctx context.Context, tenantID, id string, upd tenantdb.CredentialUpdate) (*tenantdb.Credential, error) {
	caller, err := requireManage(ctx, s.s, tenantID, id)
	if err != nil {
		return nil, err
	}

	privileged := upd.Level != nil || upd.Disabled != nil || len(upd.GrantRoles) > 0 || len(upd.RevokeRoles) > 0
	if privileged && !caller.AtLeast(tenantdb.LevelAdmin) {
		return nil, tenantdb.ErrInsufficientPrivilege(caller.Level, tenantdb.LevelAdmin)
	}
	if upd.Level != nil && !caller.AtLeast(*upd.Level) {
		return nil, tenantdb.ErrInsufficientPrivilege(caller.Level, *upd.Level)
	}
	for _, role := range upd.GrantRoles {
		if l, ok := tenantdb.LevelOfRole(role); ok && !caller.AtLeast(l) {
			return nil, tenantdb.ErrInsufficientPrivilege(caller.Level, l)
		}
	}
	return s.s.UpdateCredential(ctx, tenantID, id, upd)
}

// DeleteCredential checks the caller is the credential or an ADMIN of at least its level.
func (s *CredentialService) DeleteCredential(ctx context.Context, tenantID, id string) error {
	if _, err := requireManage(ctx, s.s, tenantID, id); err != nil {
		return err
	}
	return s.s.DeleteCredential(ctx, tenantID, id)
}

func requireTenant(c *tenantdb.Credential, tenantID string) error {
	if c.TenantID != tenantID {
		return tenantdb.ErrForbidden("%q cannot act on tenant [%s]", c.Username, tenantID)
	}
	return nil
}

func requireLevel(ctx context.Context, tenantID string, l tenantdb.Level) (*tenantdb.Credential, error) {
	c, err := RequireLevel(ctx, l)
	if err != nil {
		return nil, err
	}
	return c, requireTenant(c, tenantID)
}

func requireMyselfOrLevel(ctx context.Context, tenantID, id string, l tenantdb.Level) (*tenantdb.Credential, error) {
	c, err := RequireMyselfOrLevel(ctx, id, l)
	if err != nil {
		return nil, err
	}
	return c, requireTenant(c, tenantID)
}

// requireManage returns the caller when it is the credential id, or an ADMIN
// whose level is at least the current level of that credential.
func requireManage(ctx context.Context, creds tenantdb.CredentialService, tenantID, id string) (*tenantdb.Credential, error) {
	caller, err := requireMyselfOrLevel(ctx, tenantID, id, tenantdb.LevelAdmin)
	if err != nil {
		return nil, err
	}
	if caller.Authenticated() && caller.ID == id {
		return caller, nil
	}

	target, err := creds.FindCredentialByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !caller.AtLeast(target.Level) {
		return nil, tenantdb.ErrInsufficientPrivilege(caller.Level, target.Level)
	}
	return caller, nil
}
