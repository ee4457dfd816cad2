package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
)

var (
	_ tenantdb.CredentialService = (*Service)(nil)
	_ tenantdb.PasswordService   = (*Service)(nil)
	_ tenantdb.SessionService    = (*Service)(nil)
)

// FindCredentialByID returns a single credential by tenant and id.
func (s *Service) FindCredentialByID(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	var c *tenantdb.Credential
	err := s.store.View(ctx, func(tx kv.Tx) error {
		cred, err := s.store.GetCredential(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		c = cred
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindCredentialByUsername returns a single credential by tenant and username.
func (s *Service) FindCredentialByUsername(ctx context.Context, tenantID, username string) (*tenantdb.Credential, error) {
	var c *tenantdb.Credential
	err := s.store.View(ctx, func(tx kv.Tx) error {
		cred, err := s.store.GetCredentialByUsername(ctx, tx, tenantID, username)
		if err != nil {
			return err
		}
		c = cred
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindCredentialByToken returns the credential owning an unexpired access token.
func (s *Service) FindCredentialByToken(ctx context.Context, token string) (*tenantdb.Credential, error) {
	var c *tenantdb.Credential
	err := s.store.View(ctx, func(tx kv.Tx) error {
		cred, err := s.store.GetCredentialByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		c = cred
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !c.AccessTokenExpiresAt.IsZero() && !s.now().Before(c.AccessTokenExpiresAt) {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// FindCredentials returns the credentials of a tenant matching filter and the total count of matches.
func (s *Service) FindCredentials(ctx context.Context, filter tenantdb.CredentialFilter, opt ...tenantdb.FindOptions) ([]*tenantdb.Credential, int, error) {
	// a username names at most one credential
	if filter.Username != nil {
		c, err := s.FindCredentialByUsername(ctx, filter.TenantID, *filter.Username)
		if errors.ErrorCode(err) == errors.ENotFound {
			return []*tenantdb.Credential{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		if filter.Level != nil && c.Level != *filter.Level {
			return []*tenantdb.Credential{}, 0, nil
		}
		return []*tenantdb.Credential{c}, 1, nil
	}

	var (
		cs []*tenantdb.Credential
		n  int
	)
	err := s.store.View(ctx, func(tx kv.Tx) error {
		var err error
		cs, n, err = s.store.ListCredentials(ctx, tx, filter, opt...)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return cs, n, nil
}

// CreateCredential creates c in its tenant. Without a password the credential
// gets a reset code and cannot authenticate until a password is set with it.
func (s *Service) CreateCredential(ctx context.Context, c *tenantdb.Credential, password string) error {
	if !c.Level.Valid() {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "invalid credential level",
			Op:   tenantdb.OpCreateCredential,
		}
	}
	if err := validSuperdog(c); err != nil {
		return err
	}

	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1
	c.AccessToken = ""
	c.AccessTokenExpiresAt = time.Time{}
	if password != "" {
		c.HashedPassword = s.hashPassword(password)
		c.PasswordResetCode = ""
	} else {
		c.HashedPassword = ""
		c.PasswordResetCode = uuid.NewString()
	}

	return s.store.Update(ctx, func(tx kv.Tx) error {
		if _, err := s.store.GetTenant(ctx, tx, c.TenantID); err != nil {
			return err
		}
		return s.store.CreateCredential(ctx, tx, c)
	})
}

// validSuperdog keeps the superdog naming convention and level confined to the root tenant.
func validSuperdog(c *tenantdb.Credential) error {
	isName := tenantdb.IsSuperdogName(c.Username)
	isLevel := c.Level == tenantdb.LevelSuperdog
	switch {
	case c.TenantID != tenantdb.RootTenantID && (isName || isLevel):
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "superdog credentials only live in the root backend",
			Op:   tenantdb.OpCreateCredential,
		}
	case isName != isLevel:
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "superdog usernames start with " + tenantdb.SuperdogPrefix + " and carry the SUPERDOG level",
			Op:   tenantdb.OpCreateCredential,
		}
	}
	return nil
}

// UpdateCredential applies upd to a credential.
func (s *Service) UpdateCredential(ctx context.Context, tenantID, id string, upd tenantdb.CredentialUpdate) (*tenantdb.Credential, error) {
	if upd.Level != nil && !upd.Level.Valid() {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "invalid credential level",
			Op:   tenantdb.OpUpdateCredential,
		}
	}

	var c *tenantdb.Credential
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		cred, err := s.store.GetCredential(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !upd.Apply(cred) {
			c = cred
			return nil
		}
		if err := validSuperdog(cred); err != nil {
			return err
		}
		s.touch(cred)
		c = cred
		return s.store.UpdateCredential(ctx, tx, cred)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCredential removes a credential. Deleting an unknown credential is not an error.
func (s *Service) DeleteCredential(ctx context.Context, tenantID, id string) error {
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		return s.store.DeleteCredential(ctx, tx, tenantID, id)
	})
	if errors.ErrorCode(err) == errors.ENotFound {
		return nil
	}
	return err
}

func (s *Service) touch(c *tenantdb.Credential) {
	c.UpdatedAt = s.now()
	c.Version++
}

// modify runs fn over a stored credential and persists it.
func (s *Service) modify(ctx context.Context, tenantID, id string, fn func(*tenantdb.Credential) error) (*tenantdb.Credential, error) {
	var c *tenantdb.Credential
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		cred, err := s.store.GetCredential(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := fn(cred); err != nil {
			return err
		}
		s.touch(cred)
		c = cred
		return s.store.UpdateCredential(ctx, tx, cred)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ComparePassword returns the credential named username when password matches its hash.
func (s *Service) ComparePassword(ctx context.Context, tenantID, username, password string) (*tenantdb.Credential, error) {
	c, err := s.FindCredentialByUsername(ctx, tenantID, username)
	if errors.ErrorCode(err) == errors.ENotFound {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !c.PasswordIsSet() || !s.passwordMatches(c.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

// SetPassword replaces the password of a credential and clears any reset code.
func (s *Service) SetPassword(ctx context.Context, tenantID, id, password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	_, err := s.modify(ctx, tenantID, id, func(c *tenantdb.Credential) error {
		c.HashedPassword = s.hashPassword(password)
		c.PasswordResetCode = ""
		return nil
	})
	return err
}

// SetPasswordWithCode sets the password of a credential holding the reset code.
func (s *Service) SetPasswordWithCode(ctx context.Context, tenantID, id, code, password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	_, err := s.modify(ctx, tenantID, id, func(c *tenantdb.Credential) error {
		if c.PasswordResetCode == "" || !secretEqual(c.PasswordResetCode, code) {
			return ErrInvalidResetCode
		}
		c.HashedPassword = s.hashPassword(password)
		c.PasswordResetCode = ""
		return nil
	})
	return err
}

// ResetPassword removes the password of a credential, revokes its session
// and returns a new reset code.
func (s *Service) ResetPassword(ctx context.Context, tenantID, id string) (string, error) {
	code := uuid.NewString()
	_, err := s.modify(ctx, tenantID, id, func(c *tenantdb.Credential) error {
		c.HashedPassword = ""
		c.PasswordResetCode = code
		c.AccessToken = ""
		c.AccessTokenExpiresAt = time.Time{}
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// CreateSession issues a new access token for the credential.
func (s *Service) CreateSession(ctx context.Context, tenantID, id string) (*tenantdb.Credential, error) {
	return s.modify(ctx, tenantID, id, func(c *tenantdb.Credential) error {
		c.AccessToken = uuid.NewString()
		c.AccessTokenExpiresAt = s.now().Add(s.tokenLifetime)
		return nil
	})
}

// ExpireSession revokes the access token of the credential.
func (s *Service) ExpireSession(ctx context.Context, tenantID, id string) error {
	_, err := s.modify(ctx, tenantID, id, func(c *tenantdb.Credential) error {
		c.AccessToken = ""
		c.AccessTokenExpiresAt = time.Time{}
		return nil
	})
	return err
}
