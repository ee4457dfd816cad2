package authorizer

import (
	"context"

	"github.com/tenantdb/tenantdb"
)

var _ tenantdb.PasswordService = (*PasswordService)(nil)

// PasswordService is a new authorization middleware for a password service.
type PasswordService struct {
	next  tenantdb.PasswordService
	creds tenantdb.CredentialService
}

// NewPasswordService wraps an existing password service with auth middleware.
// creds resolves the credentials whose password is changed.
func NewPasswordService(svc tenantdb.PasswordService, creds tenantdb.CredentialService) *PasswordService {
	return &PasswordService{next: svc, creds: creds}
}

// ComparePassword is how credentials authenticate and needs no authorization.
func (s *PasswordService) ComparePassword(ctx context.Context, tenantID, username, password string) (*tenantdb.Credential, error) {
	return s.next.ComparePassword(ctx, tenantID, username, password)
}

// SetPassword overrides the password of a known credential.
func (s *PasswordService) SetPassword(ctx context.Context, tenantID, id, password string) error {
	if _, err := requireManage(ctx, s.creds, tenantID, id); err != nil {
		return err
	}
	return s.next.SetPassword(ctx, tenantID, id, password)
}

// SetPasswordWithCode is authorized by the reset code itself.
func (s *PasswordService) SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) error {
	return s.next.SetPasswordWithCode(ctx, tenantID, id, code, password)
}

// ResetPassword replaces the password of a credential by a reset code.
func (s *PasswordService) ResetPassword(ctx context.Context, tenantID, id string) (string, error) {
	if _, err := requireLevel(ctx, tenantID, tenantdb.LevelAdmin); err != nil {
		return "", err
	}
	if _, err := requireManage(ctx, s.creds, tenantID, id); err != nil {
		return "", err
	}
	return s.next.ResetPassword(ctx, tenantID, id)
}
