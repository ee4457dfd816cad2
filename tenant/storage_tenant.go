package tenant

import (
	"context"
	"encoding/json"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kv"
)

var tenantBucket = []byte("tenantsv1")

func unmarshalTenant(v []byte) (*tenantdb.Tenant, error) {
	t := &tenantdb.Tenant{}
	if err := json.Unmarshal(v, t); err != nil {
		return nil, ErrCorruptTenant(err)
	}
	return t, nil
}

// GetTenant returns a tenant by id.
func (s *Store) GetTenant(ctx context.Context, tx kv.Tx, id string) (t *tenantdb.Tenant, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindTenantByID)
	}()

	b, err := tx.Bucket(tenantBucket)
	if err != nil {
		return nil, err
	}

	v, err := b.Get([]byte(id))
	if kv.IsNotFound(err) {
		return nil, ErrTenantNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalTenant(v)
}

// ListTenants returns every tenant ordered by id.
func (s *Store) ListTenants(ctx context.Context, tx kv.Tx) (ts []*tenantdb.Tenant, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindTenants)
	}()

	b, err := tx.Bucket(tenantBucket)
	if err != nil {
		return nil, err
	}

	ts = []*tenantdb.Tenant{}
	err = kv.WalkPrefix(b, nil, func(k, v []byte) error {
		t, err := unmarshalTenant(v)
		if err != nil {
			return err
		}
		ts = append(ts, t)
		return nil
	})
	return ts, err
}

// CreateTenant stores a new tenant.
func (s *Store) CreateTenant(ctx context.Context, tx kv.Tx, t *tenantdb.Tenant) (retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpCreateTenant)
	}()

	if !tenantdb.ValidTenantID(t.ID) {
		return ErrInvalidTenantID(t.ID)
	}

	b, err := tx.Bucket(tenantBucket)
	if err != nil {
		return err
	}
	if _, err := b.Get([]byte(t.ID)); err == nil {
		return TenantAlreadyExistsError(t.ID)
	} else if !kv.IsNotFound(err) {
		return err
	}

	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put([]byte(t.ID), v)
}

// DeleteTenant removes a tenant record. Credentials are removed separately.
func (s *Store) DeleteTenant(ctx context.Context, tx kv.Tx, id string) (retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpDeleteTenant)
	}()

	if _, err := s.GetTenant(ctx, tx, id); err != nil {
		return err
	}

	b, err := tx.Bucket(tenantBucket)
	if err != nil {
		return err
	}
	return b.Delete([]byte(id))
}
