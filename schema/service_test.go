package schema_test

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
	"github.com/tenantdb/tenantdb/schema"
	itesting "github.com/tenantdb/tenantdb/testing"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (*schema.Service, *docstore.Engine) {
	t.Helper()
	log := zaptest.NewLogger(t)
	engine := docstore.NewEngine(log, itesting.NewTestInmemStore(t))
	return schema.NewService(log, engine), engine
}

const carDecl = `{"car":{"brand":{"_type":"string"},"model":{"_type":"text"}}}`

func TestService_ApplyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ApplySchema(ctx, "acme", "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	assert.Equal(t, &tenantdb.SchemaApplied{Type: "car", Created: true, Changed: true}, res)

	got, err := svc.FindSchema(ctx, "acme", "car")
	require.NoError(t, err)
	assert.JSONEq(t, carDecl, string(got))

	// the bare form is normalized into the wrapped one
	res, err = svc.ApplySchema(ctx, "acme", "driver", json.RawMessage(`{"name":{"_type":"string"}}`), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	assert.True(t, res.Created)

	all, err := svc.FindSchemas(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.JSONEq(t, carDecl, string(all["car"]))
	assert.JSONEq(t, `{"driver":{"name":{"_type":"string"}}}`, string(all["driver"]))

	types, err := svc.FindTypes(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "driver"}, types)

	_, err = svc.FindSchema(ctx, "other", "car")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
}

func TestService_ApplyIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplySchema(ctx, "acme", "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)

	res, err := svc.ApplySchema(ctx, "acme", "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)

	res, err = svc.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"brand":{"_type":"string"},"model":{"_type":"text"},"color":{"_type":"string"}}}`), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Changed)

	// changing the kind of a property is not a mapping update
	_, err = svc.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"brand":{"_type":"long"}}}`), tenantdb.DefaultTypeOptions())
	assert.Equal(t, errors.EConflict, errors.ErrorCode(err))

	_, err = svc.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"brand":{"_type":"blob"}}}`), tenantdb.DefaultTypeOptions())
	assert.Equal(t, errors.EInvalidSchema, errors.ErrorCode(err))
}

func TestService_ApplyKeepsObjects(t *testing.T) {
	svc, engine := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplySchema(ctx, "acme", "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	_, err = engine.Index(ctx, tenantdb.IndexRequest{TenantID: "acme", Type: "car", ID: "1", Source: json.RawMessage(`{"brand":"vw"}`)})
	require.NoError(t, err)

	_, err = svc.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"brand":{"_type":"string"},"color":{"_type":"string"}}}`), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)

	doc, err := engine.Get(ctx, "acme", "car", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
}

func TestService_DeleteSchema(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplySchema(ctx, "acme", "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	_, err = svc.FindACL(ctx, "acme", "car")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSchema(ctx, "acme", "car"))
	require.NoError(t, svc.DeleteSchema(ctx, "acme", "car"))

	_, err = svc.FindSchema(ctx, "acme", "car")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	_, err = svc.FindACL(ctx, "acme", "car")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
}

func TestService_FindACL(t *testing.T) {
	log := zaptest.NewLogger(t)
	engine := docstore.NewEngine(log, itesting.NewTestInmemStore(t))
	ctx := context.Background()

	writer := schema.NewService(log, engine)
	_, err := writer.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"_acl":{"driver":["read_all","create"]},"brand":{"_type":"string"}}}`), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)

	// a second service starts with a cold cache
	reader := schema.NewService(log, engine)

	var wg sync.WaitGroup
	acls := make([]tenantdb.ACL, 16)
	errs := make([]error, 16)
	for i := range acls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acls[i], errs[i] = reader.FindACL(ctx, "acme", "car")
		}(i)
	}
	wg.Wait()

	for i := range acls {
		require.NoError(t, errs[i])
		assert.True(t, acls[i].Grants([]string{"driver"}, tenantdb.PermCreate))
		assert.False(t, acls[i].Grants([]string{"all"}, tenantdb.PermReadAll))
	}

	// apply replaces the cached entry
	_, err = reader.ApplySchema(ctx, "acme", "car", json.RawMessage(`{"car":{"brand":{"_type":"string"}}}`), tenantdb.DefaultTypeOptions())
	require.NoError(t, err)
	acl, err := reader.FindACL(ctx, "acme", "car")
	require.NoError(t, err)
	assert.Equal(t, tenantdb.DefaultACL(), acl)
}

func TestService_DeleteTenantSchemas(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, tenantID := range []string{"acme", "other"} {
		_, err := svc.ApplySchema(ctx, tenantID, "car", json.RawMessage(carDecl), tenantdb.DefaultTypeOptions())
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteTenantSchemas(ctx, "acme"))

	_, err := svc.FindACL(ctx, "acme", "car")
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	_, err = svc.FindACL(ctx, "other", "car")
	require.NoError(t, err)
}

// pausingEngine holds the next GetMapping call after it has read the mapping.
type pausingEngine struct {
	tenantdb.Engine

	mu     sync.Mutex
	paused chan struct{}
	resume chan struct{}
}

func (e *pausingEngine) pauseNextRead() (paused, resume chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused, e.resume = make(chan struct{}), make(chan struct{})
	return e.paused, e.resume
}

func (e *pausingEngine) GetMapping(ctx context.Context, tenantID, typ string) (json.RawMessage, error) {
	m, err := e.Engine.GetMapping(ctx, tenantID, typ)

	e.mu.Lock()
	paused, resume := e.paused, e.resume
	e.paused, e.resume = nil, nil
	e.mu.Unlock()
	if paused != nil {
		close(paused)
		<-resume
	}
	return m, err
}

func TestService_FindACL_WriteDuringFill(t *testing.T) {
	const (
		userDecl  = `{"note":{"_acl":{"user":["read_all"]},"text":{"_type":"string"}}}`
		adminDecl = `{"note":{"_acl":{"admin":["read_all"]},"text":{"_type":"string"}}}`
	)

	setup := func(t *testing.T) (*schema.Service, *pausingEngine) {
		log := zaptest.NewLogger(t)
		engine := &pausingEngine{Engine: docstore.NewEngine(log, itesting.NewTestInmemStore(t))}
		svc := schema.NewService(log, engine)
		_, err := svc.ApplySchema(context.Background(), "acme", "note", json.RawMessage(userDecl), tenantdb.DefaultTypeOptions())
		require.NoError(t, err)
		return svc, engine
	}

	// fill starts a FindACL that reads the mapping, then runs write before the
	// fill goes on.
	fill := func(t *testing.T, svc *schema.Service, engine *pausingEngine, write func()) {
		paused, resume := engine.pauseNextRead()
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = svc.FindACL(context.Background(), "acme", "note")
		}()
		<-paused
		write()
		close(resume)
		<-done
	}

	t.Run("apply", func(t *testing.T) {
		svc, engine := setup(t)
		ctx := context.Background()
		fill(t, svc, engine, func() {
			_, err := svc.ApplySchema(ctx, "acme", "note", json.RawMessage(adminDecl), tenantdb.DefaultTypeOptions())
			require.NoError(t, err)
		})

		acl, err := svc.FindACL(ctx, "acme", "note")
		require.NoError(t, err)
		assert.False(t, acl.Grants([]string{"user"}, tenantdb.PermReadAll))
		assert.True(t, acl.Grants([]string{"admin"}, tenantdb.PermReadAll))
	})

	t.Run("delete", func(t *testing.T) {
		svc, engine := setup(t)
		ctx := context.Background()
		fill(t, svc, engine, func() {
			require.NoError(t, svc.DeleteSchema(ctx, "acme", "note"))
		})

		_, err := svc.FindACL(ctx, "acme", "note")
		assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	})

	t.Run("tenant delete", func(t *testing.T) {
		svc, engine := setup(t)
		ctx := context.Background()
		fill(t, svc, engine, func() {
			require.NoError(t, svc.DeleteTenantSchemas(ctx, "acme"))
		})

		_, err := svc.FindACL(ctx, "acme", "note")
		assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
	})
}
