package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/schema"
)

func TestCompile(t *testing.T) {
	decl := `{"car":{
		"_id":"plate",
		"plate":{"_type":"string"},
		"model":{"_type":"text","_language":"french"},
		"notes":{"_type":"text"},
		"electric":{"_type":"boolean"},
		"seats":{"_type":"integer"},
		"price":{"_type":"double"},
		"built":{"_type":"date"},
		"opens":{"_type":"time"},
		"seen":{"_type":"timestamp"},
		"color":{"_type":"enum"},
		"owner":{"_type":"reference"},
		"where":{"_type":"geopoint"},
		"blob":{"_type":"stash"},
		"garage":{"city":{"_type":"string"}}
	}}`

	s, err := schema.Parse("car", json.RawMessage(decl))
	require.NoError(t, err)
	mapping, acl, err := schema.Compile(s)
	require.NoError(t, err)
	assert.Equal(t, tenantdb.DefaultACL(), acl)

	want := `{
		"dynamic": "strict",
		"date_detection": false,
		"_id": {"path": "plate"},
		"properties": {
			"plate": {"type": "string", "index": "not_analyzed"},
			"model": {"type": "string", "index": "analyzed", "analyzer": "french"},
			"notes": {"type": "string", "index": "analyzed", "analyzer": "english"},
			"electric": {"type": "boolean"},
			"seats": {"type": "integer", "coerce": false},
			"price": {"type": "double", "coerce": false},
			"built": {"type": "date", "format": "date"},
			"opens": {"type": "date", "format": "hour_minute_second"},
			"seen": {"type": "date", "format": "date_time"},
			"color": {"type": "string", "index": "not_analyzed"},
			"owner": {"type": "string", "index": "not_analyzed"},
			"where": {"type": "geo_point", "lat_lon": true, "geohash": true, "geohash_precision": "1m", "geohash_prefix": true},
			"blob": {"type": "object", "enabled": false},
			"garage": {"type": "object", "properties": {"city": {"type": "string", "index": "not_analyzed"}}},
			"meta": {
				"type": "object",
				"properties": {
					"createdBy": {"type": "string", "index": "not_analyzed"},
					"updatedBy": {"type": "string", "index": "not_analyzed"},
					"createdAt": {"type": "date", "format": "date_time"},
					"updatedAt": {"type": "date", "format": "date_time"}
				}
			}
		},
		"_meta": ` + decl + `
	}`
	assert.JSONEq(t, want, string(mapping))

	back, err := schema.DeclarationOf(mapping)
	require.NoError(t, err)
	assert.JSONEq(t, decl, string(back))
}
