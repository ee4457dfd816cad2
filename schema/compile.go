package schema

import (
	"encoding/json"

	"github.com/tenantdb/tenantdb"
)

const defaultAnalyzer = "english"

func metaMapping() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"createdBy": map[string]interface{}{"type": "string", "index": "not_analyzed"},
			"updatedBy": map[string]interface{}{"type": "string", "index": "not_analyzed"},
			"createdAt": map[string]interface{}{"type": "date", "format": "date_time"},
			"updatedAt": map[string]interface{}{"type": "date", "format": "date_time"},
		},
	}
}

// Compile translates a parsed declaration into the engine mapping of its type.
// The normalized declaration is embedded under _meta and the ACL is returned
// alongside.
func Compile(s *Schema) (json.RawMessage, tenantdb.ACL, error) {
	props := compileProperties(s.Root)
	props[tenantdb.MetaField] = metaMapping()

	mapping := map[string]interface{}{
		"dynamic":        "strict",
		"date_detection": false,
		"properties":     props,
		"_meta":          s.Declaration,
	}
	if s.IDProperty != "" {
		mapping["_id"] = map[string]interface{}{"path": s.IDProperty}
	}

	b, err := json.Marshal(mapping)
	if err != nil {
		return nil, nil, tenantdb.ErrInternal(err, "schema/Compile")
	}
	return b, s.ACL, nil
}

func compileProperties(o *Object) map[string]interface{} {
	props := make(map[string]interface{}, len(o.Properties))
	for name, p := range o.Properties {
		props[name] = compileProperty(p)
	}
	return props
}

func compileProperty(p Property) map[string]interface{} {
	switch p := p.(type) {
	case *Text:
		analyzer := p.Language
		if analyzer == "" {
			analyzer = defaultAnalyzer
		}
		return map[string]interface{}{"type": "string", "index": "analyzed", "analyzer": analyzer}
	case *Enum:
		return map[string]interface{}{"type": "string", "index": "not_analyzed"}
	case *Object:
		return map[string]interface{}{"type": "object", "properties": compileProperties(p)}
	case *Stash:
		return map[string]interface{}{"type": "object", "enabled": false}
	case *Scalar:
		return compileScalar(p.Kind())
	}
	return nil
}

func compileScalar(k Kind) map[string]interface{} {
	switch k {
	case KindString, KindReference:
		return map[string]interface{}{"type": "string", "index": "not_analyzed"}
	case KindBoolean:
		return map[string]interface{}{"type": "boolean"}
	case KindInteger, KindLong, KindFloat, KindDouble:
		return map[string]interface{}{"type": string(k), "coerce": false}
	case KindDate:
		return map[string]interface{}{"type": "date", "format": "date"}
	case KindTime:
		return map[string]interface{}{"type": "date", "format": "hour_minute_second"}
	case KindTimestamp:
		return map[string]interface{}{"type": "date", "format": "date_time"}
	case KindGeoPoint:
		return map[string]interface{}{
			"type":              "geo_point",
			"lat_lon":           true,
			"geohash":           true,
			"geohash_precision": "1m",
			"geohash_prefix":    true,
		}
	}
	return nil
}

// mappingMeta is the part of a mapping read back when a declaration is needed.
type mappingMeta struct {
	Meta json.RawMessage `json:"_meta"`
}

// DeclarationOf recovers the declaration embedded in a compiled mapping.
func DeclarationOf(mapping json.RawMessage) (json.RawMessage, error) {
	var m mappingMeta
	if err := json.Unmarshal(mapping, &m); err != nil {
		return nil, tenantdb.ErrInternal(err, "schema/DeclarationOf")
	}
	if len(m.Meta) == 0 {
		return nil, tenantdb.ErrSchema("mapping carries no declaration")
	}
	return m.Meta, nil
}
