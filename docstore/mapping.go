package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// mapping is a decoded type mapping.
type mapping struct {
	doc map[string]interface{}
}

func decodeJSON(b []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseMapping(b json.RawMessage) (*mapping, error) {
	v, err := decodeJSON(b)
	if err != nil {
		return nil, tenantdb.ErrIllegalArgument("mapping is not valid JSON: %v", err)
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, tenantdb.ErrIllegalArgument("mapping is not a JSON object")
	}
	if _, ok := doc["properties"].(map[string]interface{}); !ok {
		return nil, tenantdb.ErrIllegalArgument("mapping has no properties")
	}
	return &mapping{doc: doc}, nil
}

func (m *mapping) raw() json.RawMessage {
	// maps of decoded JSON values always marshal
	b, _ := json.Marshal(m.doc)
	return b
}

func (m *mapping) properties() map[string]interface{} {
	p, _ := m.doc["properties"].(map[string]interface{})
	return p
}

func (m *mapping) strict() bool {
	return m.doc["dynamic"] == "strict"
}

// mergeMappings returns next with the properties of current it does not
// declare carried over.
func mergeMappings(current, next *mapping) (*mapping, error) {
	props, err := mergeProperties("", current.properties(), next.properties())
	if err != nil {
		return nil, err
	}

	doc := make(map[string]interface{}, len(next.doc))
	for k, v := range next.doc {
		doc[k] = v
	}
	doc["properties"] = props
	return &mapping{doc: doc}, nil
}

func mergeProperties(path string, current, next map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(current)+len(next))
	for k, v := range current {
		merged[k] = v
	}

	for name, nv := range next {
		cv, ok := current[name]
		if !ok {
			merged[name] = nv
			continue
		}
		cf, _ := cv.(map[string]interface{})
		nf, _ := nv.(map[string]interface{})
		if fieldType(cf) != fieldType(nf) {
			return nil, &errors.Error{
				Code: errors.EConflict,
				Msg: fmt.Sprintf("mapper [%s%s] of different type, current_type [%s], merged_type [%s]",
					path, name, fieldType(cf), fieldType(nf)),
			}
		}

		cp, cok := cf["properties"].(map[string]interface{})
		np, nok := nf["properties"].(map[string]interface{})
		if cok && nok {
			props, err := mergeProperties(path+name+".", cp, np)
			if err != nil {
				return nil, err
			}
			field := make(map[string]interface{}, len(nf))
			for k, v := range nf {
				field[k] = v
			}
			field["properties"] = props
			merged[name] = field
			continue
		}
		merged[name] = nv
	}
	return merged, nil
}

func fieldType(f map[string]interface{}) string {
	if t, ok := f["type"].(string); ok {
		return t
	}
	if _, ok := f["properties"]; ok {
		return "object"
	}
	return ""
}

// validate checks that source is an object the mapping accepts.
func (m *mapping) validate(typ string, source json.RawMessage) error {
	v, err := decodeJSON(source)
	if err != nil {
		return tenantdb.ErrIllegalArgument("[%s] object source is not valid JSON: %v", typ, err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return tenantdb.ErrIllegalArgument("[%s] object source is not a JSON object", typ)
	}
	return validateObject(typ, "", m.properties(), m.strict(), obj)
}

func validateObject(typ, path string, props map[string]interface{}, strict bool, obj map[string]interface{}) error {
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		field, ok := props[name].(map[string]interface{})
		if !ok {
			if strict {
				return tenantdb.ErrIllegalArgument(
					"mapping set to strict, dynamic introduction of [%s%s] within [%s] is not allowed",
					path, name, typ)
			}
			continue
		}
		if err := validateValue(typ, path+name, field, strict, obj[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(typ, path string, field map[string]interface{}, strict bool, v interface{}) error {
	if v == nil {
		return nil
	}
	if list, ok := v.([]interface{}); ok && fieldType(field) != "geo_point" {
		for _, e := range list {
			if err := validateValue(typ, path, field, strict, e); err != nil {
				return err
			}
		}
		return nil
	}

	invalid := func(want string) error {
		return tenantdb.ErrIllegalArgument("invalid value for field [%s] of [%s]: expected %s", path, typ, want)
	}

	switch fieldType(field) {
	case "string", "date":
		if _, ok := v.(string); !ok {
			return invalid("a string")
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return invalid("a boolean")
		}
	case "integer", "long":
		n, ok := v.(json.Number)
		if !ok {
			return invalid("an integer")
		}
		if _, err := n.Int64(); err != nil {
			return invalid("an integer")
		}
	case "float", "double":
		if _, ok := v.(json.Number); !ok {
			return invalid("a number")
		}
	case "geo_point":
		if !validGeoPoint(v) {
			return invalid("a geo point")
		}
	case "object":
		obj, ok := v.(map[string]interface{})
		if !ok {
			return invalid("an object")
		}
		if enabled, ok := field["enabled"].(bool); ok && !enabled {
			return nil
		}
		props, _ := field["properties"].(map[string]interface{})
		return validateObject(typ, path+".", props, strict, obj)
	}
	return nil
}

func validGeoPoint(v interface{}) bool {
	switch p := v.(type) {
	case map[string]interface{}:
		_, lat := p["lat"].(json.Number)
		_, lon := p["lon"].(json.Number)
		return lat && lon
	case string:
		return strings.TrimSpace(p) != ""
	case []interface{}:
		if len(p) != 2 {
			return false
		}
		_, lon := p[0].(json.Number)
		_, lat := p[1].(json.Number)
		return lat && lon
	}
	return false
}
