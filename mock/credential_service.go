package mock

import (
	"context"

	"github.com/tenantdb/tenantdb"
)

var (
	_ tenantdb.CredentialService = (*CredentialService)(nil)
	_ tenantdb.PasswordService   = (*CredentialService)(nil)
	_ tenantdb.SessionService    = (*CredentialService)(nil)
)

// CredentialService is a mock implementation of the credential, password and
// session services.
type CredentialService struct {
	FindCredentialByIDFn       func(context.Context, string, string) (*tenantdb.Credential, error)
	FindCredentialByUsernameFn func(context.Context, string, string) (*tenantdb.Credential, error)
	FindCredentialByTokenFn    func(context.Context, string) (*tenantdb.Credential, error)
	FindCredentialsFn          func(context.Context, tenantdb.CredentialFilter, ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error)
	CreateCredentialFn         func(context.Context, *tenantdb.Credential, string) error
	UpdateCredentialFn         func(context.Context, string, string, tenantdb.CredentialUpdate) (*tenantdb.Credential, error)
	DeleteCredentialFn         func(context.Context, string, string) error

	ComparePasswordFn     func(context.Context, string, string, string) (*tenantdb.Credential, error)
	SetPasswordFn         func(context.Context, string, string, string) error
	SetPasswordWithCodeFn func(context.Context, string, string, string, string) error
	ResetPasswordFn       func(context.Context, string, string) (string, error)

	CreateSessionFn func(context.Context, string, string) (*tenantdb.Credential, error)
	ExpireSessionFn func(context.Context, string, string) error
}

// NewCredentialService returns a mock of CredentialService where its methods will return zero values.
func NewCredentialService() *CredentialService {
	return &CredentialService{
		FindCredentialByIDFn:       func(context.Context, string, string) (*tenantdb.Credential, error) { return nil, nil },
		FindCredentialByUsernameFn: func(context.Context, string, string) (*tenantdb.Credential, error) { return nil, nil },
		FindCredentialByTokenFn:    func(context.Context, string) (*tenantdb.Credential, error) { return nil, nil },
		FindCredentialsFn: func(context.Context, tenantdb.CredentialFilter, ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error) {
			return nil, 0, nil
		},
		CreateCredentialFn: func(context.Context, *tenantdb.Credential, string) error { return nil },
		UpdateCredentialFn: func(context.Context, string, string, tenantdb.CredentialUpdate) (*tenantdb.Credential, error) {
			return nil, nil
		},
		DeleteCredentialFn:    func(context.Context, string, string) error { return nil },
		ComparePasswordFn:     func(context.Context, string, string, string) (*tenantdb.Credential, error) { return nil, nil },
		SetPasswordFn:         func(context.Context, string, string, string) error { return nil },
		SetPasswordWithCodeFn: func(context.Context, string, string, string, string) error { return nil },
		ResetPasswordFn:       func(context.Context, string, string) (string, error) { return "", nil },
		CreateSessionFn:       func(context.Context, string, string) (*tenantdb.Credential, error) { return nil, nil },
		ExpireSessionFn:       func(context.Context, string, string) error { return nil },
	}
}

func (s *CredentialService) FindCredentialByID(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	return s.FindCredentialByIDFn(ctx, tenantID, id)
}

func (s *CredentialService) FindCredentialByUsername(ctx context.Context, tenantID, username string) (*tenantdb.Credential, error) {
	return s.FindCredentialByUsernameFn(ctx, tenantID, username)
}

func (s *CredentialService) FindCredentialByToken(ctx context.Context, token string) (*tenantdb.Credential, error) {
	return s.FindCredentialByTokenFn(ctx, token)
}

func (s *CredentialService) FindCredentials(ctx context.Context, filter tenantdb.CredentialFilter, opts ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error) {
	return s.FindCredentialsFn(ctx, filter, opts...)
}

func (s *CredentialService) CreateCredential(ctx context.Context, c *tenantdb.Credential, password string) error {
	return s.CreateCredentialFn(ctx, c, password)
}

func (s *CredentialService) UpdateCredential(ctx context.Context, tenantID, id string, upd tenantdb.CredentialUpdate) (*tenantdb.Credential, error) {
	return s.UpdateCredentialFn(ctx, tenantID, id, upd)
}

func (s *CredentialService) DeleteCredential(ctx context.Context, tenantID, id string) error {
	return s.DeleteCredentialFn(ctx, tenantID, id)
}

func (s *CredentialService) ComparePassword(ctx context.Context, tenantID, username, password string) (*tenantdb.Credential, error) {
	return s.ComparePasswordFn(ctx, tenantID, username, password)
}

func (s *CredentialService) SetPassword(ctx context.Context, tenantID, id, password string) error {
	return s.SetPasswordFn(ctx, tenantID, id, password)
}

func (s *CredentialService) SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) error {
	return s.SetPasswordWithCodeFn(ctx, tenantID, id, code, password)
}

func (s *CredentialService) ResetPassword(ctx context.Context, tenantID, id string) (string, error) {
	return s.ResetPasswordFn(ctx, tenantID, id)
}

func (s *CredentialService) CreateSession(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	return s.CreateSessionFn(ctx, tenantID, id)
}

func (s *CredentialService) ExpireSession(ctx context.Context, tenantID, id string) error {
	return s.ExpireSessionFn(ctx, tenantID, id)
}
