package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
	"go.uber.org/multierr"
)

var _ tenantdb.TenantService = (*Service)(nil)

// CreateTenant creates a tenant, its default key and its first SUPER_ADMIN credential
// in a single transaction.
func (s *Service) CreateTenant(ctx context.Context, tc tenantdb.TenantCreate) (*tenantdb.Tenant, *tenantdb.Credential, error) {
	if tc.TenantID == tenantdb.RootTenantID {
		return nil, nil, ErrRootTenant
	}
	if tc.Password == "" {
		return nil, nil, ErrPasswordEmpty
	}

	now := s.now()
	t := &tenantdb.Tenant{
		ID: tc.TenantID,
		Keys: []tenantdb.APIKey{
			{Name: tenantdb.DefaultKeyName, Secret: uuid.NewString()},
		},
		CreatedAt: now,
	}
	c := &tenantdb.Credential{
		TenantID:       tc.TenantID,
		Username:       tc.Username,
		Email:          tc.Email,
		Level:          tenantdb.LevelSuperAdmin,
		HashedPassword: s.hashPassword(tc.Password),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := validSuperdog(c); err != nil {
		return nil, nil, err
	}

	err := s.store.Update(ctx, func(tx kv.Tx) error {
		if err := s.store.CreateTenant(ctx, tx, t); err != nil {
			return err
		}
		return s.store.CreateCredential(ctx, tx, c)
	})
	if err != nil {
		return nil, nil, err
	}
	return t, c, nil
}

// EnsureTenant creates the tenant id without any credential unless it exists.
// It is used to bootstrap the root tenant.
func (s *Service) EnsureTenant(ctx context.Context, id string) (*tenantdb.Tenant, error) {
	var t *tenantdb.Tenant
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		existing, err := s.store.GetTenant(ctx, tx, id)
		if err == nil {
			t = existing
			return nil
		}
		if errors.ErrorCode(err) != errors.ENotFound {
			return err
		}

		t = &tenantdb.Tenant{
			ID: id,
			Keys: []tenantdb.APIKey{
				{Name: tenantdb.DefaultKeyName, Secret: uuid.NewString()},
			},
			CreatedAt: s.now(),
		}
		return s.store.CreateTenant(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindTenantByID returns a single tenant.
func (s *Service) FindTenantByID(ctx context.Context, id string) (*tenantdb.Tenant, error) {
	var t *tenantdb.Tenant
	err := s.store.View(ctx, func(tx kv.Tx) error {
		tt, err := s.store.GetTenant(ctx, tx, id)
		if err != nil {
			return err
		}
		t = tt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindTenants returns every tenant.
func (s *Service) FindTenants(ctx context.Context) ([]*tenantdb.Tenant, error) {
	var ts []*tenantdb.Tenant
	err := s.store.View(ctx, func(tx kv.Tx) error {
		var err error
		ts, err = s.store.ListTenants(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// DeleteTenant removes a tenant, its credentials and the data every registered
// cleanup holds for it. Cleanup failures are aggregated and do not stop the
// remaining cleanups.
func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	if id == tenantdb.RootTenantID {
		return ErrRootTenant
	}
	if _, err := s.FindTenantByID(ctx, id); err != nil {
		return err
	}

	var errs error
	for _, cleanup := range s.cleanups {
		errs = multierr.Append(errs, cleanup(ctx, id))
	}

	err := s.store.Update(ctx, func(tx kv.Tx) error {
		if err := s.store.DeleteTenantCredentials(ctx, tx, id); err != nil {
			return err
		}
		return s.store.DeleteTenant(ctx, tx, id)
	})
	errs = multierr.Append(errs, err)
	if errs != nil {
		return &errors.Error{
			Code: errors.EInternal,
			Msg:  "backend deletion did not complete",
			Op:   tenantdb.OpDeleteTenant,
			Err:  errs,
		}
	}
	return nil
}

// CheckKey verifies an API key secret.
func (s *Service) CheckKey(ctx context.Context, tenantID, name, secret string) error {
	t, err := s.FindTenantByID(ctx, tenantID)
	if errors.ErrorCode(err) == errors.ENotFound {
		return ErrInvalidKey
	}
	if err != nil {
		return err
	}

	k, ok := t.Key(name)
	if !ok || !secretEqual(k.Secret, secret) {
		return ErrInvalidKey
	}
	return nil
}
