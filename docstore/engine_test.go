package docstore_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/docstore"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
	itesting "github.com/tenantdb/tenantdb/testing"
	"go.uber.org/zap/zaptest"
)

const carMapping = `{
	"dynamic": "strict",
	"properties": {
		"brand": {"type": "string", "index": "not_analyzed"},
		"model": {"type": "string", "index": "analyzed", "analyzer": "english"},
		"seats": {"type": "integer", "coerce": false},
		"electric": {"type": "boolean"},
		"garage": {"type": "object", "properties": {"city": {"type": "string"}}},
		"where": {"type": "geo_point"},
		"extra": {"type": "object", "enabled": false}
	},
	"_meta": {"car": {"brand": {"_type": "string"}}}
}`

func newTestEngine(t *testing.T, init func(*testing.T) kv.Store) *docstore.Engine {
	t.Helper()
	e := docstore.NewEngine(zaptest.NewLogger(t), init(t))
	require.NoError(t, e.CreateType(context.Background(), "acme", "car", json.RawMessage(carMapping), tenantdb.DefaultTypeOptions()))
	return e
}

func TestEngine(t *testing.T) {
	stores := map[string]func(*testing.T) kv.Store{
		"inmem": itesting.NewTestInmemStore,
		"bolt":  itesting.NewTestBoltStore,
	}
	for name, init := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("types", func(t *testing.T) { testTypes(t, newTestEngine(t, init)) })
			t.Run("index", func(t *testing.T) { testIndex(t, newTestEngine(t, init)) })
			t.Run("strict", func(t *testing.T) { testStrict(t, newTestEngine(t, init)) })
			t.Run("search", func(t *testing.T) { testSearch(t, newTestEngine(t, init)) })
			t.Run("concurrent update", func(t *testing.T) { testConcurrentUpdate(t, newTestEngine(t, init)) })
		})
	}
}

func testTypes(t *testing.T, e *docstore.Engine) {
	ctx := context.Background()

	err := e.CreateType(ctx, "acme", "car", json.RawMessage(carMapping), tenantdb.DefaultTypeOptions())
	assert.Equal(t, errors.EConflict, errors.ErrorCode(err))

	require.NoError(t, e.CreateType(ctx, "acme", "cars", json.RawMessage(carMapping), tenantdb.DefaultTypeOptions()))
	require.NoError(t, e.CreateType(ctx, "other", "car", json.RawMessage(carMapping), tenantdb.DefaultTypeOptions()))

	types, err := e.ListTypes(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "cars"}, types)

	// properties are only ever added
	require.NoError(t, e.UpdateMapping(ctx, "acme", "car", json.RawMessage(`{
		"dynamic": "strict",
		"properties": {"color": {"type": "string"}}
	}`)))
	m, err := e.GetMapping(ctx, "acme", "car")
	require.NoError(t, err)
	var decoded struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(m, &decoded))
	assert.Contains(t, decoded.Properties, "color")
	assert.Contains(t, decoded.Properties, "brand")

	err = e.UpdateMapping(ctx, "acme", "car", json.RawMessage(`{"properties": {"brand": {"type": "long"}}}`))
	assert.Equal(t, errors.EConflict, errors.ErrorCode(err))

	err = e.UpdateMapping(ctx, "acme", "boat", json.RawMessage(`{"properties": {}}`))
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))

	_, err = e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "cars", ID: "1", Source: json.RawMessage(`{"brand":"tesla"}`)})
	require.NoError(t, err)

	existed, err := e.DeleteType(ctx, "acme", "car")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = e.DeleteType(ctx, "acme", "car")
	require.NoError(t, err)
	assert.False(t, existed)

	// deleting car left the objects of cars alone
	_, err = e.Get(ctx, "acme", "cars", "1")
	require.NoError(t, err)

	require.NoError(t, e.DeleteTenant(ctx, "acme"))
	types, err = e.ListTypes(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, types)
	types, err = e.ListTypes(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []string{"car"}, types)
}

func testIndex(t *testing.T, e *docstore.Engine) {
	ctx := context.Background()
	req := tenantdb.IndexRequest{
		TenantID: "acme",
		Type:     "car",
		ID:       "1",
		Source:   json.RawMessage(`{"brand":"renault","seats":5}`),
		Create:   true,
	}

	v, err := e.Index(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = e.Index(ctx, req)
	assert.Equal(t, errors.EConflict, errors.ErrorCode(err))

	req.Create = false
	req.Version = 1
	v, err = e.Index(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = e.Index(ctx, req)
	assert.Equal(t, errors.EVersionConflict, errors.ErrorCode(err))

	req.Version = 0
	v, err = e.Index(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	doc, err := e.Get(ctx, "acme", "car", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Version)
	assert.JSONEq(t, `{"brand":"renault","seats":5}`, string(doc.Source))

	_, err = e.Get(ctx, "acme", "car", "2")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	_, err = e.Get(ctx, "acme", "boat", "1")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	_, err = e.Get(ctx, "other", "car", "1")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))

	existed, err := e.Delete(ctx, "acme", "car", "1")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = e.Delete(ctx, "acme", "car", "1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func testStrict(t *testing.T, e *docstore.Engine) {
	ctx := context.Background()
	tests := []struct {
		name   string
		source string
		code   string
	}{
		{name: "valid", source: `{"brand":"vw","seats":4,"electric":true,"garage":{"city":"paris"},"where":{"lat":1.5,"lon":2}}`},
		{name: "arrays of values", source: `{"brand":["vw","audi"]}`},
		{name: "disabled object accepts anything", source: `{"extra":{"anything":[1,"a",{}]}}`},
		{name: "null", source: `{"brand":null}`},
		{name: "unknown field", source: `{"wheels":4}`, code: errors.EInvalid},
		{name: "unknown nested field", source: `{"garage":{"zip":"75001"}}`, code: errors.EInvalid},
		{name: "string expected", source: `{"brand":12}`, code: errors.EInvalid},
		{name: "integer expected", source: `{"seats":4.5}`, code: errors.EInvalid},
		{name: "boolean expected", source: `{"electric":"yes"}`, code: errors.EInvalid},
		{name: "bad geo point", source: `{"where":{"lat":1}}`, code: errors.EInvalid},
		{name: "not an object", source: `[1,2]`, code: errors.EInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "car", ID: tt.name, Source: json.RawMessage(tt.source)})
			assert.Equal(t, tt.code, errors.ErrorCode(err))
		})
	}
}

func testSearch(t *testing.T, e *docstore.Engine) {
	ctx := context.Background()
	require.NoError(t, e.CreateType(ctx, "acme", "driver", json.RawMessage(`{"dynamic":"strict","properties":{"name":{"type":"string"}}}`), tenantdb.DefaultTypeOptions()))

	for _, id := range []string{"1", "2", "3", "4"} {
		_, err := e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "car", ID: id, Source: json.RawMessage(`{"brand":"Peugeot ` + id + `"}`)})
		require.NoError(t, err)
	}
	_, err := e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "driver", ID: "1", Source: json.RawMessage(`{"name":"Alain Prost"}`)})
	require.NoError(t, err)

	res, err := e.Search(ctx, "acme", tenantdb.SearchQuery{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Len(t, res.Hits, 5)

	res, err = e.Search(ctx, "acme", tenantdb.SearchQuery{Types: []string{"car"}, From: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "2", res.Hits[0].ID)
	assert.Equal(t, "3", res.Hits[1].ID)

	res, err = e.Search(ctx, "acme", tenantdb.SearchQuery{Text: "PROST"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "driver", res.Hits[0].Type)

	_, err = e.Search(ctx, "acme", tenantdb.SearchQuery{Types: []string{"boat"}})
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
}

func testConcurrentUpdate(t *testing.T, e *docstore.Engine) {
	ctx := context.Background()
	_, err := e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "car", ID: "1", Source: json.RawMessage(`{"brand":"fiat"}`)})
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "car", ID: "1", Source: json.RawMessage(`{"brand":"lancia"}`), Version: 1})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.ErrorCode(err) == errors.EVersionConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	doc, err := e.Get(ctx, "acme", "car", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
}
