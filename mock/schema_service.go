package mock

import (
	"context"
	"encoding/json"

	"github.com/tenantdb/tenantdb"
)

var (
	_ tenantdb.SchemaService = (*SchemaService)(nil)
	_ tenantdb.ACLService    = (*SchemaService)(nil)
)

// SchemaService is a mock implementation of the schema and ACL services.
type SchemaService struct {
	ApplySchemaFn  func(context.Context, string, string, json.RawMessage, tenantdb.TypeOptions) (*tenantdb.SchemaApplied, error)
	FindSchemaFn   func(context.Context, string, string) (json.RawMessage, error)
	FindSchemasFn  func(context.Context, string) (map[string]json.RawMessage, error)
	DeleteSchemaFn func(context.Context, string, string) error
	FindACLFn      func(context.Context, string, string) (tenantdb.ACL, error)
	FindTypesFn    func(context.Context, string) ([]string, error)
}

// NewSchemaService returns a mock of SchemaService where every type has the default ACL.
func NewSchemaService() *SchemaService {
	return &SchemaService{
		ApplySchemaFn: func(context.Context, string, string, json.RawMessage, tenantdb.TypeOptions) (*tenantdb.SchemaApplied, error) {
			return nil, nil
		},
		FindSchemaFn:   func(context.Context, string, string) (json.RawMessage, error) { return nil, nil },
		FindSchemasFn:  func(context.Context, string) (map[string]json.RawMessage, error) { return nil, nil },
		DeleteSchemaFn: func(context.Context, string, string) error { return nil },
		FindACLFn: func(context.Context, string, string) (tenantdb.ACL, error) {
			return tenantdb.DefaultACL(), nil
		},
		FindTypesFn: func(context.Context, string) ([]string, error) { return nil, nil },
	}
}

// NewACLService returns a mock serving acls keyed by type. Unknown types are not found.
func NewACLService(acls map[string]tenantdb.ACL) *SchemaService {
	s := NewSchemaService()
	s.FindACLFn = func(_ context.Context, _ string, typ string) (tenantdb.ACL, error) {
		acl, ok := acls[typ]
		if !ok {
			return nil, tenantdb.ErrNotFound("type [%s] not found", typ)
		}
		return acl, nil
	}
	s.FindTypesFn = func(context.Context, string) ([]string, error) {
		types := make([]string, 0, len(acls))
		for typ := range acls {
			types = append(types, typ)
		}
		return types, nil
	}
	return s
}

func (s *SchemaService) ApplySchema(ctx context.Context, tenantID, typ string, declaration json.RawMessage, opts tenantdb.TypeOptions) (*tenantdb.SchemaApplied, error) {
	return s.ApplySchemaFn(ctx, tenantID, typ, declaration, opts)
}

func (s *SchemaService) FindSchema(ctx context.Context, tenantID, typ string) (json.RawMessage, error) {
	return s.FindSchemaFn(ctx, tenantID, typ)
}

func (s *SchemaService) FindSchemas(ctx context.Context, tenantID string) (map[string]json.RawMessage, error) {
	return s.FindSchemasFn(ctx, tenantID)
}

func (s *SchemaService) DeleteSchema(ctx context.Context, tenantID, typ string) error {
	return s.DeleteSchemaFn(ctx, tenantID, typ)
}

func (s *SchemaService) FindACL(ctx context.Context, tenantID, typ string) (tenantdb.ACL, error) {
	return s.FindACLFn(ctx, tenantID, typ)
}

func (s *SchemaService) FindTypes(ctx context.Context, tenantID string) ([]string, error) {
	return s.FindTypesFn(ctx, tenantID)
}
