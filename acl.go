package tenantdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// DataPermission is an operation a role may perform on the objects of a type.
type DataPermission string

// Data permissions. The plain mutation permissions only apply to objects the
// credential created; the _all variants apply to every object of the type.
const (
	PermCreate    DataPermission = "create"
	PermRead      DataPermission = "read"
	PermReadAll   DataPermission = "read_all"
	PermUpdate    DataPermission = "update"
	PermUpdateAll DataPermission = "update_all"
	PermDelete    DataPermission = "delete"
	PermDeleteAll DataPermission = "delete_all"
	PermSearch    DataPermission = "search"
)

var dataPermissions = map[DataPermission]struct{}{
	PermCreate: {}, PermRead: {}, PermReadAll: {}, PermUpdate: {},
	PermUpdateAll: {}, PermDelete: {}, PermDeleteAll: {}, PermSearch: {},
}

// ParseDataPermission validates s as a data permission.
func ParseDataPermission(s string) (DataPermission, error) {
	p := DataPermission(s)
	if _, ok := dataPermissions[p]; !ok {
		return "", fmt.Errorf("invalid data permission %q", s)
	}
	return p, nil
}

// PermissionSet is a set of data permissions.
type PermissionSet map[DataPermission]struct{}

// NewPermissionSet returns a set holding perms.
func NewPermissionSet(perms ...DataPermission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p DataPermission) bool {
	_, ok := s[p]
	return ok
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	perms := make([]string, 0, len(s))
	for p := range s {
		perms = append(perms, string(p))
	}
	sort.Strings(perms)
	return json.Marshal(perms)
}

// UnmarshalJSON decodes an array of permission names.
func (s *PermissionSet) UnmarshalJSON(b []byte) error {
	var perms []string
	if err := json.Unmarshal(b, &perms); err != nil {
		return err
	}
	set := make(PermissionSet, len(perms))
	for _, v := range perms {
		p, err := ParseDataPermission(v)
		if err != nil {
			return err
		}
		set[p] = struct{}{}
	}
	*s = set
	return nil
}

// ACL maps role names to the permissions they are granted on a type.
// An ACL is never mutated once built; replace it instead.
type ACL map[string]PermissionSet

// DefaultACL is used for types declared without an _acl directive.
func DefaultACL() ACL {
	return ACL{
		"all":   NewPermissionSet(PermReadAll),
		"user":  NewPermissionSet(PermCreate, PermUpdate, PermSearch, PermDelete),
		"admin": NewPermissionSet(PermCreate, PermUpdateAll, PermSearch, PermDeleteAll),
	}
}

// Grants reports whether any of roles is granted any of perms.
func (a ACL) Grants(roles []string, perms ...DataPermission) bool {
	for _, r := range roles {
		set, ok := a[r]
		if !ok {
			continue
		}
		for _, p := range perms {
			if set.Has(p) {
				return true
			}
		}
	}
	return false
}

// ACLService returns the access control list of a type.
type ACLService interface {
	FindACL(ctx context.Context, tenantID, typ string) (ACL, error)
	FindTypes(ctx context.Context, tenantID string) ([]string, error)
}
