// Package authorizer enforces credential levels and the access control lists
// compiled into tenant schemas.
package authorizer

import (
	"context"

	"github.com/buger/jsonparser"
	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
)

// RequireLevel returns the credential of the request when its level is at least l.
func RequireLevel(ctx context.Context, l tenantdb.Level) (*tenantdb.Credential, error) {
	c, err := icontext.GetCredential(ctx)
	if err != nil {
		return nil, err
	}
	if !c.AtLeast(l) {
		return nil, tenantdb.ErrInsufficientPrivilege(c.Level, l)
	}
	return c, nil
}

// RequireMyselfOrLevel returns the credential of the request when it is the
// credential id or when its level is at least l.
func RequireMyselfOrLevel(ctx context.Context, id string, l tenantdb.Level) (*tenantdb.Credential, error) {
	c, err := icontext.GetCredential(ctx)
	if err != nil {
		return nil, err
	}
	if c.Authenticated() && c.ID == id {
		return c, nil
	}
	if !c.AtLeast(l) {
		return nil, tenantdb.ErrInsufficientPrivilege(c.Level, l)
	}
	return c, nil
}

// Authorizer checks data permissions against the ACL of each type.
type Authorizer struct {
	acls tenantdb.ACLService
}

// New returns an Authorizer reading ACLs from acls.
func New(acls tenantdb.ACLService) *Authorizer {
	return &Authorizer{acls: acls}
}

// Check reports whether c holds any of perms on typ. ADMIN and higher levels
// hold every permission.
func (a *Authorizer) Check(ctx context.Context, c *tenantdb.Credential, typ string, perms ...tenantdb.DataPermission) (bool, error) {
	acl, err := a.acls.FindACL(ctx, c.TenantID, typ)
	if err != nil {
		return false, err
	}
	if c.AtLeast(tenantdb.LevelAdmin) {
		return true, nil
	}
	return acl.Grants(c.EffectiveRoles(), perms...), nil
}

// Types lists the types of the credential tenant on which it holds perm.
func (a *Authorizer) Types(ctx context.Context, c *tenantdb.Credential, perm tenantdb.DataPermission) ([]string, error) {
	all, err := a.acls.FindTypes(ctx, c.TenantID)
	if err != nil {
		return nil, err
	}

	types := []string{}
	for _, typ := range all {
		ok, err := a.Check(ctx, c, typ, perm)
		if err != nil {
			return nil, err
		}
		if ok {
			types = append(types, typ)
		}
	}
	return types, nil
}

// AuthorizeCreate fails unless c may create objects of typ.
func (a *Authorizer) AuthorizeCreate(ctx context.Context, c *tenantdb.Credential, typ string) error {
	ok, err := a.Check(ctx, c, typ, tenantdb.PermCreate)
	if err != nil {
		return err
	}
	if !ok {
		return tenantdb.ErrForbidden("%q not authorized to create [%s] objects", c.Username, typ)
	}
	return nil
}

// AuthorizeSearch fails unless c may search objects of typ.
func (a *Authorizer) AuthorizeSearch(ctx context.Context, c *tenantdb.Credential, typ string) error {
	ok, err := a.Check(ctx, c, typ, tenantdb.PermSearch, tenantdb.PermReadAll)
	if err != nil {
		return err
	}
	if !ok {
		return tenantdb.ErrForbidden("%q not authorized to search [%s] objects", c.Username, typ)
	}
	return nil
}

// AuthorizeRead fails unless c may read doc, either through read_all or search,
// or through read on an object it created.
func (a *Authorizer) AuthorizeRead(ctx context.Context, c *tenantdb.Credential, doc *tenantdb.RawDocument) error {
	return a.authorize(ctx, c, doc, "read",
		[]tenantdb.DataPermission{tenantdb.PermReadAll, tenantdb.PermSearch},
		tenantdb.PermRead)
}

// AuthorizeUpdate fails unless c may update doc, either through update_all or
// through update on an object it created.
func (a *Authorizer) AuthorizeUpdate(ctx context.Context, c *tenantdb.Credential, doc *tenantdb.RawDocument) error {
	return a.authorize(ctx, c, doc, "update",
		[]tenantdb.DataPermission{tenantdb.PermUpdateAll},
		tenantdb.PermUpdate)
}

// AuthorizeDelete fails unless c may delete doc, either through delete_all or
// through delete on an object it created.
func (a *Authorizer) AuthorizeDelete(ctx context.Context, c *tenantdb.Credential, doc *tenantdb.RawDocument) error {
	return a.authorize(ctx, c, doc, "delete",
		[]tenantdb.DataPermission{tenantdb.PermDeleteAll},
		tenantdb.PermDelete)
}

func (a *Authorizer) authorize(ctx context.Context, c *tenantdb.Credential, doc *tenantdb.RawDocument, action string, all []tenantdb.DataPermission, own tenantdb.DataPermission) error {
	ok, err := a.Check(ctx, c, doc.Type, all...)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	ok, err = a.Check(ctx, c, doc.Type, own)
	if err != nil {
		return err
	}
	if !ok {
		return tenantdb.ErrForbidden("%q not authorized to %s [%s] objects", c.Username, action, doc.Type)
	}

	// objects without a recorded creator belong to nobody
	owner, err := jsonparser.GetString(doc.Source, tenantdb.MetaField, "createdBy")
	if err != nil || owner == "" || !c.Authenticated() || owner != c.Username {
		return tenantdb.ErrNotOwner(c.Username, doc.Type, doc.ID)
	}
	return nil
}
