package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tenantdb/tenantdb"
)

var typeNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// ValidTypeName reports whether typ can name a schema.
func ValidTypeName(typ string) bool {
	return typeNamePattern.MatchString(typ) && typ != tenantdb.SettingsType
}

const (
	dirType     = "_type"
	dirID       = "_id"
	dirACL      = "_acl"
	dirRequired = "_required"
	dirArray    = "_array"
	dirLanguage = "_language"
	dirValues   = "_values"
)

var (
	rootDirectives   = []string{dirType, dirID, dirACL}
	objectDirectives = []string{dirType, dirRequired, dirArray}
	scalarDirectives = []string{dirType, dirRequired, dirArray}
	textDirectives   = []string{dirType, dirRequired, dirArray, dirLanguage}
	enumDirectives   = []string{dirType, dirRequired, dirArray, dirValues}
	stashDirectives  = []string{dirType, dirRequired}
)

var scalarKinds = map[Kind]bool{
	KindString:    true,
	KindBoolean:   true,
	KindInteger:   true,
	KindLong:      true,
	KindFloat:     true,
	KindDouble:    true,
	KindDate:      true,
	KindTime:      true,
	KindTimestamp: true,
	KindGeoPoint:  true,
	KindReference: true,
}

// Parse validates the declaration of type typ and returns its tree. The body is
// either {"<typ>": {root}} or the bare root object.
func Parse(typ string, declaration json.RawMessage) (*Schema, error) {
	if !ValidTypeName(typ) {
		return nil, tenantdb.ErrSchema("invalid type name [%s]", typ)
	}

	body, err := decode(declaration)
	if err != nil {
		return nil, err
	}
	obj, ok := body.(map[string]interface{})
	if !ok {
		return nil, tenantdb.ErrSchema("schema of type [%s] is not a JSON object", typ)
	}

	root := obj
	if wrapped, ok := obj[typ]; ok && len(obj) == 1 {
		if root, ok = wrapped.(map[string]interface{}); !ok {
			return nil, tenantdb.ErrSchema("invalid value [%s] for root object of type [%s]", jsonString(wrapped), typ)
		}
	}

	s := &Schema{Type: typ}

	rootKind, err := kindOf(root)
	if err != nil {
		return nil, err
	}
	if rootKind != KindObject {
		return nil, tenantdb.ErrSchema("invalid root object type [%s]", rootKind)
	}
	if err := checkDirectives(root, rootDirectives); err != nil {
		return nil, err
	}

	if v, ok := root[dirID]; ok {
		id, ok := v.(string)
		if !ok {
			return nil, invalidDirectiveType(dirID, v, "string")
		}
		s.IDProperty = id
	}

	s.ACL = tenantdb.DefaultACL()
	if v, ok := root[dirACL]; ok {
		if s.ACL, err = parseACL(v); err != nil {
			return nil, err
		}
	}

	props, err := parseProperties(typ, root)
	if err != nil {
		return nil, err
	}
	s.Root = &Object{Properties: props}

	if s.IDProperty != "" {
		p, ok := props[s.IDProperty]
		if !ok || p.Kind() != KindString {
			return nil, tenantdb.ErrSchema("id property [%s] must be a declared string property", s.IDProperty)
		}
	}

	if s.Declaration, err = json.Marshal(map[string]interface{}{typ: root}); err != nil {
		return nil, tenantdb.ErrInternal(err, "schema/Parse")
	}
	return s, nil
}

func decode(declaration json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(declaration))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, tenantdb.ErrSchema("schema is not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, tenantdb.ErrSchema("schema holds more than one JSON value")
	}
	return v, nil
}

func parseACL(v interface{}) (tenantdb.ACL, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, invalidDirectiveType(dirACL, v, "object")
	}

	acl := make(tenantdb.ACL, len(obj))
	for role, perms := range obj {
		list, ok := perms.([]interface{})
		if !ok {
			return nil, tenantdb.ErrSchema("invalid permissions [%s] for role [%s]: must be an array", jsonString(perms), role)
		}
		set := tenantdb.NewPermissionSet()
		for _, p := range list {
			name, ok := p.(string)
			if !ok {
				return nil, tenantdb.ErrSchema("invalid permission [%s] for role [%s]", jsonString(p), role)
			}
			perm, err := tenantdb.ParseDataPermission(name)
			if err != nil {
				return nil, tenantdb.ErrSchema("invalid permission [%s] for role [%s]", name, role)
			}
			set[perm] = struct{}{}
		}
		acl[role] = set
	}
	return acl, nil
}

func parseProperties(name string, obj map[string]interface{}) (map[string]Property, error) {
	props := map[string]Property{}
	for _, key := range sortedKeys(obj) {
		if strings.HasPrefix(key, "_") {
			continue
		}
		p, err := parseProperty(key, obj[key])
		if err != nil {
			return nil, err
		}
		props[key] = p
	}
	if len(props) == 0 {
		return nil, tenantdb.ErrSchema("property [%s] of type [object] has no properties", name)
	}
	return props, nil
}

func parseProperty(name string, v interface{}) (Property, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, tenantdb.ErrSchema("invalid value [%s] for object property [%s]", jsonString(v), name)
	}

	kind, err := kindOf(obj)
	if err != nil {
		return nil, err
	}

	var allowed []string
	switch {
	case kind == KindObject:
		allowed = objectDirectives
	case kind == KindText:
		allowed = textDirectives
	case kind == KindEnum:
		allowed = enumDirectives
	case kind == KindStash:
		allowed = stashDirectives
	case scalarKinds[kind]:
		allowed = scalarDirectives
	default:
		return nil, tenantdb.ErrSchema("invalid type [%s] for property [%s]", kind, name)
	}

	// objects accept nested property names, every other kind accepts directives only
	if kind == KindObject {
		if err := checkDirectives(obj, allowed); err != nil {
			return nil, err
		}
	} else if err := checkFields(obj, allowed); err != nil {
		return nil, err
	}

	required, err := boolDirective(obj, dirRequired)
	if err != nil {
		return nil, err
	}
	array, err := boolDirective(obj, dirArray)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindObject:
		props, err := parseProperties(name, obj)
		if err != nil {
			return nil, err
		}
		return &Object{Required: required, Array: array, Properties: props}, nil
	case KindText:
		p := &Text{Required: required, Array: array}
		if v, ok := obj[dirLanguage]; ok {
			if p.Language, ok = v.(string); !ok {
				return nil, invalidDirectiveType(dirLanguage, v, "string")
			}
		}
		return p, nil
	case KindEnum:
		p := &Enum{Required: required, Array: array}
		if v, ok := obj[dirValues]; ok {
			list, ok := v.([]interface{})
			if !ok {
				return nil, invalidDirectiveType(dirValues, v, "array")
			}
			for _, e := range list {
				s, ok := e.(string)
				if !ok {
					return nil, tenantdb.ErrSchema("invalid enum value [%s] for property [%s]", jsonString(e), name)
				}
				p.Values = append(p.Values, s)
			}
		}
		return p, nil
	case KindStash:
		return &Stash{Required: required}, nil
	default:
		return &Scalar{kind: kind, Required: required, Array: array}, nil
	}
}

func kindOf(obj map[string]interface{}) (Kind, error) {
	v, ok := obj[dirType]
	if !ok {
		return KindObject, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidDirectiveType(dirType, v, "string")
	}
	return Kind(s), nil
}

func boolDirective(obj map[string]interface{}, name string) (bool, error) {
	v, ok := obj[name]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidDirectiveType(name, v, "boolean")
	}
	return b, nil
}

// checkDirectives rejects underscore prefixed fields missing from allowed.
func checkDirectives(obj map[string]interface{}, allowed []string) error {
	for _, key := range sortedKeys(obj) {
		if strings.HasPrefix(key, "_") && !contains(allowed, key) {
			return invalidField(key, allowed)
		}
	}
	return nil
}

// checkFields rejects any field missing from allowed.
func checkFields(obj map[string]interface{}, allowed []string) error {
	for _, key := range sortedKeys(obj) {
		if !contains(allowed, key) {
			return invalidField(key, allowed)
		}
	}
	return nil
}

func invalidField(name string, allowed []string) error {
	return tenantdb.ErrSchema("invalid field [%s]: expected fields are [%s]", name, strings.Join(allowed, ", "))
}

func invalidDirectiveType(name string, v interface{}, want string) error {
	return tenantdb.ErrSchema("invalid type [%s] for schema field [%s]: must be [%s]", jsonType(v), name, want)
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case map[string]interface{}:
		return "object"
	case json.Number:
		return "number"
	case []interface{}:
		return "array"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
