package mock

import (
	"context"

	"github.com/tenantdb/tenantdb"
)

var _ tenantdb.TenantService = (*TenantService)(nil)

// TenantService is a mock implementation of tenantdb.TenantService.
type TenantService struct {
	CreateTenantFn   func(context.Context, tenantdb.TenantCreate) (*tenantdb.Tenant, *tenantdb.Credential, error)
	FindTenantByIDFn func(context.Context, string) (*tenantdb.Tenant, error)
	FindTenantsFn    func(context.Context) ([]*tenantdb.Tenant, error)
	DeleteTenantFn   func(context.Context, string) error
	CheckKeyFn       func(context.Context, string, string, string) error
}

// NewTenantService returns a mock of TenantService where its methods will return zero values.
func NewTenantService() *TenantService {
	return &TenantService{
		CreateTenantFn: func(context.Context, tenantdb.TenantCreate) (*tenantdb.Tenant, *tenantdb.Credential, error) {
			return nil, nil, nil
		},
		FindTenantByIDFn: func(context.Context, string) (*tenantdb.Tenant, error) { return nil, nil },
		FindTenantsFn:    func(context.Context) ([]*tenantdb.Tenant, error) { return nil, nil },
		DeleteTenantFn:   func(context.Context, string) error { return nil },
		CheckKeyFn:       func(context.Context, string, string, string) error { return nil },
	}
}

func (s *TenantService) CreateTenant(ctx context.Context, tc tenantdb.TenantCreate) (*tenantdb.Tenant, *tenantdb.Credential, error) {
	return s.CreateTenantFn(ctx, tc)
}

func (s *TenantService) FindTenantByID(ctx context.Context, id string) (*tenantdb.Tenant, error) {
	return s.FindTenantByIDFn(ctx, id)
}

func (s *TenantService) FindTenants(ctx context.Context) ([]*tenantdb.Tenant, error) {
	return s.FindTenantsFn(ctx)
}

func (s *TenantService) DeleteTenant(ctx context.Context, id string) error {
	return s.DeleteTenantFn(ctx, id)
}

func (s *TenantService) CheckKey(ctx context.Context, tenantID, name, secret string) error {
	return s.CheckKeyFn(ctx, tenantID, name, secret)
}
