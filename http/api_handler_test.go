package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/docstore"
	"github.com/tenantdb/tenantdb/document"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/requestlog"
	"github.com/tenantdb/tenantdb/schema"
	"github.com/tenantdb/tenantdb/settings"
	"github.com/tenantdb/tenantdb/sqlite"
	"github.com/tenantdb/tenantdb/sqlite/migrations"
	"github.com/tenantdb/tenantdb/tenant"
	itesting "github.com/tenantdb/tenantdb/testing"
	"go.uber.org/zap/zaptest"
)

const (
	acmeHost = "acme.tenantdb.io"
	rootHost = "api.tenantdb.io"

	superdogName     = "superdog-ops"
	superdogPassword = "woofwoof"
)

var epoch = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestAPI(t *testing.T) *APIHandler {
	t.Helper()
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	clk := clock.NewMock()
	clk.Set(epoch)

	kvStore := itesting.NewTestInmemStore(t)
	engine := docstore.NewEngine(log, kvStore)
	schemaSvc := schema.NewService(log, engine)
	settingsSvc := settings.NewService(log, kvStore)
	documentSvc := document.NewService(log, engine, document.WithClock(clk))

	sqlStore, err := sqlite.NewSqlStore(sqlite.InmemPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })
	require.NoError(t, sqlite.NewMigrator(sqlStore, log).Up(ctx, migrations.AllUp))
	logSvc := requestlog.NewService(log, sqlStore)

	st, err := tenant.NewStore(kvStore)
	require.NoError(t, err)
	tenantSvc := tenant.NewService(st,
		tenant.WithClock(clk),
		tenant.WithTenantCleanup(schemaSvc.DeleteTenantSchemas, settingsSvc.DeleteTenantSettings, logSvc.DeleteTenantLogs),
	)

	_, err = tenantSvc.EnsureTenant(ctx, tenantdb.RootTenantID)
	require.NoError(t, err)
	require.NoError(t, tenantSvc.CreateCredential(ctx, &tenantdb.Credential{
		TenantID: tenantdb.RootTenantID,
		Username: superdogName,
		Level:    tenantdb.LevelSuperdog,
	}, superdogPassword))

	return NewAPIHandler(&APIBackend{
		Logger:            log,
		Clock:             clk,
		Registry:          prometheus.NewRegistry(),
		CredentialService: tenantSvc,
		PasswordService:   tenantSvc,
		SessionService:    tenantSvc,
		TenantService:     tenantSvc,
		SchemaService:     schemaSvc,
		ACLService:        schemaSvc,
		DocumentService:   documentSvc,
		SettingsService:   settingsSvc,
		RequestLogService: logSvc,
	})
}

type reqOpt func(*http.Request)

func basic(username, password string) reqOpt {
	return func(r *http.Request) { r.SetBasicAuth(username, password) }
}

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func header(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

type response struct {
	code int
	body map[string]interface{}
	raw  string
}

func (res response) errorCode() string {
	e, _ := res.body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func do(t *testing.T, h http.Handler, method, host, path, body string, opts ...reqOpt) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	r.Host = host
	for _, o := range opts {
		o(r)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	res := response{code: w.Code, raw: w.Body.String()}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res.body), res.raw)
	}
	return res
}

// provision creates the acme tenant with boss as its SUPER_ADMIN.
func provision(t *testing.T, h http.Handler) {
	t.Helper()
	res := do(t, h, http.MethodPost, rootHost, "/1/backend/acme", `{"username":"boss","password":"bosspass","email":"boss@acme.io"}`)
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	assert.Equal(t, "acme", res.body["id"])
	assert.Equal(t, "backend", res.body["type"])
}

// signUp creates a USER credential in acme and returns its id.
func signUp(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	res := do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	id, _ := res.body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestAPIHandler_NoAuthRoutes(t *testing.T) {
	h := newTestAPI(t)

	// the gate is bypassed, so an unresolvable host is fine
	res := do(t, h, http.MethodGet, "bad_host.tenantdb.io", "/health", "")
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, true, res.body["success"])

	do(t, h, http.MethodGet, acmeHost, "/1/data", "")
	res = do(t, h, http.MethodGet, rootHost, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.code)
	assert.Contains(t, res.raw, "tenantdb_auth_credential_checks_total")
	assert.Contains(t, res.raw, "http_api_requests_total")
}

func TestAPIHandler_UnknownRoutes(t *testing.T) {
	h := newTestAPI(t)

	res := do(t, h, http.MethodGet, rootHost, "/1/nope", "")
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, errors.ENotFound, res.errorCode())

	res = do(t, h, http.MethodPatch, rootHost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, res.code, res.raw)
}

func TestAuthenticationHandler(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")

	res := do(t, h, http.MethodGet, acmeHost, "/1/backend/keys", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	keys := res.body["keys"].([]interface{})
	require.Len(t, keys, 1)
	secret := keys[0].(map[string]interface{})["secret"].(string)

	tests := []struct {
		name     string
		host     string
		opts     []reqOpt
		wantCode int
		wantErr  string
	}{
		{name: "unresolvable host", host: "bad_host.tenantdb.io", wantCode: http.StatusBadRequest, wantErr: errors.ETenantResolution},
		{name: "anonymous is KEY", host: acmeHost, wantCode: http.StatusForbidden, wantErr: errors.EInsufficientPrivilege},
		{name: "basic", host: acmeHost, opts: []reqOpt{basic("alice", "alicepass")}, wantCode: http.StatusOK},
		{name: "wrong password", host: acmeHost, opts: []reqOpt{basic("alice", "nope")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "other tenant", host: rootHost, opts: []reqOpt{basic("alice", "alicepass")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "superdog acts as tenant", host: acmeHost, opts: []reqOpt{basic(superdogName, superdogPassword)}, wantCode: http.StatusOK},
		{name: "unknown token", host: acmeHost, opts: []reqOpt{bearer("nope")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "unsupported scheme", host: acmeHost, opts: []reqOpt{header("Authorization", "Digest abc")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "key is KEY", host: acmeHost, opts: []reqOpt{header(KeyHeader, "acme:default:" + secret)}, wantCode: http.StatusForbidden, wantErr: errors.EInsufficientPrivilege},
		{name: "wrong key secret", host: acmeHost, opts: []reqOpt{header(KeyHeader, "acme:default:nope")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "key of another tenant", host: acmeHost, opts: []reqOpt{header(KeyHeader, "api:default:" + secret)}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
		{name: "malformed key", host: acmeHost, opts: []reqOpt{header(KeyHeader, "acme")}, wantCode: http.StatusUnauthorized, wantErr: errors.EUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := do(t, h, http.MethodGet, tt.host, "/1/credentials/me", "", tt.opts...)
			assert.Equal(t, tt.wantCode, res.code, res.raw)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, res.errorCode())
				assert.Equal(t, false, res.body["success"])
			}
		})
	}
}

func TestAuthenticationHandler_KeyOnRootHost(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)

	res := do(t, h, http.MethodGet, acmeHost, "/1/backend/keys", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	secret := res.body["keys"].([]interface{})[0].(map[string]interface{})["secret"].(string)

	// the key selects its own tenant on the root host
	res = do(t, h, http.MethodPost, rootHost, "/1/credentials", `{"username":"carol","password":"carolpass"}`,
		header(KeyHeader, "acme:default:"+secret))
	require.Equal(t, http.StatusCreated, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", basic("carol", "carolpass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "carol", res.body["username"])
	assert.Equal(t, "acme", res.body["backendId"])
	assert.Equal(t, "USER", res.body["level"])
}

func TestAuthenticationHandler_Debug(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)

	res := do(t, h, http.MethodGet, acmeHost, "/1/data?debug=true", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, map[string]interface{}{"credentialChecks": float64(1)}, res.body["debug"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/data", "", basic("boss", "bosspass"), header(DebugHeader, "yes"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.NotNil(t, res.body["debug"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/data", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Nil(t, res.body["debug"])
}

func TestAuthenticationHandler_Disabled(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	id := signUp(t, h, "alice", "alicepass")

	res := do(t, h, http.MethodPost, acmeHost, "/1/credentials/"+id+"/disable", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", basic("alice", "alicepass"))
	assert.Equal(t, http.StatusForbidden, res.code)
	assert.Equal(t, errors.EDisabled, res.errorCode())

	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials/"+id+"/enable", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", basic("alice", "alicepass"))
	assert.Equal(t, http.StatusOK, res.code, res.raw)
}

func TestSessionHandler(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")

	res := do(t, h, http.MethodPost, acmeHost, "/1/login", "", basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	token := res.body["accessToken"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, float64(tenant.DefaultTokenLifetime/time.Second), res.body["expiresIn"])
	assert.Equal(t, "alice", res.body["credentials"].(map[string]interface{})["username"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me?access_token="+token, "")
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "alice", res.body["username"])

	res = do(t, h, http.MethodPost, acmeHost, "/1/logout", "", bearer(token))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, res.code)

	// anonymous callers cannot log in
	res = do(t, h, http.MethodPost, acmeHost, "/1/login", "")
	assert.Equal(t, http.StatusForbidden, res.code)
}

func TestSessionHandler_Superdog(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)

	res := do(t, h, http.MethodPost, acmeHost, "/1/login", "", basic(superdogName, superdogPassword))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	token := res.body["accessToken"].(string)
	creds := res.body["credentials"].(map[string]interface{})
	assert.Equal(t, "acme", creds["backendId"])
	assert.Equal(t, "SUPERDOG", creds["level"])

	// the session lives in the root tenant and works on any host
	res = do(t, h, http.MethodGet, rootHost, "/1/backend", "", bearer(token))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(2), res.body["total"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials", "", bearer(token))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(1), res.body["total"])
}

func TestCredentialHandler_SignUp(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)

	res := do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, res.code, res.raw)

	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice","password":"alicepass","level":"ADMIN"}`)
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)
	assert.Equal(t, errors.EInsufficientPrivilege, res.errorCode())

	res = do(t, h, http.MethodPut, acmeHost, "/1/settings/credentials", `{"disableGuestSignUp":true,"minPasswordLength":12}`, basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "settings", res.body["type"])

	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice","password":"alicepass"}`)
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)

	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice","password":"short"}`, basic("boss", "bosspass"))
	assert.Equal(t, http.StatusBadRequest, res.code, res.raw)

	// admins may create credentials without a password and get the reset code back
	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice","level":"ADMIN"}`, basic("boss", "bosspass"))
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	id := res.body["id"].(string)
	code := res.body["passwordResetCode"].(string)
	require.NotEmpty(t, code)

	res = do(t, h, http.MethodPost, acmeHost, "/1/credentials/"+id+"/password?passwordResetCode="+code, `{"password":"alicepassword"}`)
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", basic("alice", "alicepassword"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "ADMIN", res.body["level"])
	assert.Equal(t, []interface{}{}, res.body["roles"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials?level=ADMIN", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(1), res.body["total"])
}

func TestCredentialHandler_ManageHigherLevel(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	boss := basic("boss", "bosspass")
	alice := basic("alice", "alicepass")

	res := do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"alice","password":"alicepass","level":"ADMIN"}`, boss)
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	aliceID := res.body["id"].(string)

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", boss)
	require.Equal(t, http.StatusOK, res.code, res.raw)
	bossID := res.body["id"].(string)

	denied := []struct {
		method, path, body string
	}{
		{http.MethodPut, "/1/credentials/" + bossID, `{"level":"USER"}`},
		{http.MethodPost, "/1/credentials/" + bossID + "/disable", ""},
		{http.MethodDelete, "/1/credentials/" + bossID + "/password", ""},
		{http.MethodPost, "/1/credentials/" + bossID + "/password", `{"password":"takenover"}`},
		{http.MethodDelete, "/1/credentials/" + bossID, ""},
		{http.MethodPut, "/1/credentials/" + aliceID + "/roles/superadmin", ""},
	}
	for _, d := range denied {
		res = do(t, h, d.method, acmeHost, d.path, d.body, alice)
		assert.Equal(t, http.StatusForbidden, res.code, "%s %s: %s", d.method, d.path, res.raw)
		assert.Equal(t, errors.EInsufficientPrivilege, res.errorCode())
	}

	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", boss)
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "SUPER_ADMIN", res.body["level"])
	assert.NotEqual(t, true, res.body["disabled"])

	res = do(t, h, http.MethodPut, acmeHost, "/1/credentials/"+aliceID, `{"level":"USER"}`, boss)
	require.Equal(t, http.StatusOK, res.code, res.raw)
	res = do(t, h, http.MethodGet, acmeHost, "/1/credentials/me", "", alice)
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "USER", res.body["level"])
}

func TestSchemaHandler(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")

	const decl = `{"car":{"brand":{"_type":"string"}}}`

	res := do(t, h, http.MethodPut, acmeHost, "/1/schema/car", decl, basic("alice", "alicepass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)

	res = do(t, h, http.MethodPut, acmeHost, "/1/schema/car", decl, basic("boss", "bosspass"))
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	assert.Equal(t, true, res.body["created"])

	res = do(t, h, http.MethodPut, acmeHost, "/1/schema/car", decl, basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, false, res.body["created"])
	assert.Equal(t, false, res.body["changed"])

	res = do(t, h, http.MethodPut, acmeHost, "/1/schema/car?shards=0", decl, basic("boss", "bosspass"))
	assert.Equal(t, http.StatusBadRequest, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/schema/car", "", basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.JSONEq(t, decl, res.raw)

	res = do(t, h, http.MethodDelete, acmeHost, "/1/schema/car", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/schema/car", "", basic("alice", "alicepass"))
	assert.Equal(t, http.StatusNotFound, res.code, res.raw)
}

func TestDataHandler(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")
	signUp(t, h, "bob", "bobpass")

	res := do(t, h, http.MethodPut, acmeHost, "/1/schema/car", `{"car":{"brand":{"_type":"string"},"color":{"_type":"string"}}}`, basic("boss", "bosspass"))
	require.Equal(t, http.StatusCreated, res.code, res.raw)

	res = do(t, h, http.MethodPost, acmeHost, "/1/data/car", `{"brand":"fiat"}`, basic("alice", "alicepass"))
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	id := res.body["id"].(string)
	assert.Equal(t, float64(1), res.body["version"])
	assert.Equal(t, "car", res.body["type"])

	// everybody reads through the all role
	res = do(t, h, http.MethodGet, acmeHost, "/1/data/car/"+id, "")
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "fiat", res.body["brand"])
	meta := res.body["meta"].(map[string]interface{})
	assert.Equal(t, "alice", meta["createdBy"])

	res = do(t, h, http.MethodPut, acmeHost, "/1/data/car/"+id, `{"color":"red"}`, basic("bob", "bobpass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)

	res = do(t, h, http.MethodPut, acmeHost, "/1/data/car/"+id+"?version=2", `{"color":"red"}`, basic("alice", "alicepass"))
	assert.Equal(t, http.StatusConflict, res.code, res.raw)
	assert.Equal(t, errors.EVersionConflict, res.errorCode())

	res = do(t, h, http.MethodPut, acmeHost, "/1/data/car/"+id+"?version=1", `{"color":"red"}`, basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(2), res.body["version"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/data/car/"+id, "")
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "fiat", res.body["brand"])
	assert.Equal(t, "red", res.body["color"])

	// the admin role updates every object
	res = do(t, h, http.MethodPut, acmeHost, "/1/data/car/"+id+"?strict=true", `{"brand":"seat"}`, basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/data/car/"+id, "")
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, "seat", res.body["brand"])
	assert.Nil(t, res.body["color"])

	res = do(t, h, http.MethodGet, acmeHost, "/1/data/car", "", basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(1), res.body["total"])

	res = do(t, h, http.MethodDelete, acmeHost, "/1/data/car/"+id, "", basic("bob", "bobpass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)

	res = do(t, h, http.MethodDelete, acmeHost, "/1/data/car/"+id, "", basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/data/car/"+id, "")
	assert.Equal(t, http.StatusNotFound, res.code, res.raw)

	res = do(t, h, http.MethodDelete, acmeHost, "/1/data/car/"+id, "", basic("alice", "alicepass"))
	assert.Equal(t, http.StatusNotFound, res.code, res.raw)
}

func TestDataHandler_GuestAndKeyOwners(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	boss := basic("boss", "bosspass")

	res := do(t, h, http.MethodGet, acmeHost, "/1/backend/keys", "", boss)
	require.Equal(t, http.StatusOK, res.code, res.raw)
	secret := res.body["keys"].([]interface{})[0].(map[string]interface{})["secret"].(string)

	res = do(t, h, http.MethodPut, acmeHost, "/1/schema/note", `{"note":{"_acl":{"key":["create"],"user":["update","delete"]},"text":{"_type":"string"}}}`, boss)
	require.Equal(t, http.StatusCreated, res.code, res.raw)

	res = do(t, h, http.MethodPost, acmeHost, "/1/data/note", `{"text":"from a guest"}`)
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	guestNote := res.body["id"].(string)

	res = do(t, h, http.MethodPost, acmeHost, "/1/data/note", `{"text":"from a key"}`, header(KeyHeader, "acme:default:"+secret))
	require.Equal(t, http.StatusCreated, res.code, res.raw)
	keyNote := res.body["id"].(string)

	owners := map[string]string{guestNote: "anonymous", keyNote: "key:default"}
	for id, owner := range owners {
		res = do(t, h, http.MethodGet, acmeHost, "/1/data/note/"+id, "", boss)
		require.Equal(t, http.StatusOK, res.code, res.raw)
		assert.Equal(t, owner, res.body["meta"].(map[string]interface{})["createdBy"])

		// nobody can sign up as the owner of guest or key objects
		res = do(t, h, http.MethodPost, acmeHost, "/1/credentials", `{"username":"`+owner+`","password":"ownerpass"}`)
		assert.Equal(t, http.StatusBadRequest, res.code, res.raw)
		assert.Equal(t, errors.EInvalid, res.errorCode())
	}

	// a user named like the key does not own what the key created
	signUp(t, h, "default", "defaultpass")
	res = do(t, h, http.MethodPut, acmeHost, "/1/data/note/"+keyNote, `{"text":"mine now"}`, basic("default", "defaultpass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)
	assert.Equal(t, errors.EForbidden, res.errorCode())
}

func TestDataHandler_DeleteAll(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")
	signUp(t, h, "bob", "bobpass")

	res := do(t, h, http.MethodPut, acmeHost, "/1/schema/car", `{"car":{"brand":{"_type":"string"}}}`, basic("boss", "bosspass"))
	require.Equal(t, http.StatusCreated, res.code, res.raw)

	for _, owner := range []string{"alice", "alice", "bob"} {
		res = do(t, h, http.MethodPost, acmeHost, "/1/data/car", `{"brand":"fiat"}`, basic(owner, owner+"pass"))
		require.Equal(t, http.StatusCreated, res.code, res.raw)
	}

	res = do(t, h, http.MethodDelete, acmeHost, "/1/data/car", "", basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(2), res.body["totalDeleted"])

	res = do(t, h, http.MethodDelete, acmeHost, "/1/data/car", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(1), res.body["totalDeleted"])
}

func TestBatch_ThroughGate(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")

	body := `[
		{"method":"get","path":"/credentials/me"},
		{"method":"get","path":"/data"},
		{"method":"get","path":"/nope"}
	]`
	res := do(t, h, http.MethodPost, acmeHost, "/1/batch?debug=true", body, basic("alice", "alicepass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, map[string]interface{}{"credentialChecks": float64(1)}, res.body["debug"])

	responses := res.body["responses"].([]interface{})
	require.Len(t, responses, 3)
	assert.Equal(t, "alice", responses[0].(map[string]interface{})["username"])
	assert.Equal(t, float64(0), responses[1].(map[string]interface{})["total"])
	assert.Equal(t, float64(http.StatusNotFound), responses[2].(map[string]interface{})["status"])
}

func TestLogHandler(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)
	signUp(t, h, "alice", "alicepass")

	res := do(t, h, http.MethodGet, acmeHost, "/1/log", "", basic("alice", "alicepass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)

	res = do(t, h, http.MethodGet, acmeHost, "/1/log?tenant=api", "", basic("boss", "bosspass"))
	assert.Equal(t, http.StatusForbidden, res.code, res.raw)
	assert.Equal(t, errors.EInsufficientPrivilege, res.errorCode())

	res = do(t, h, http.MethodGet, acmeHost, "/1/log", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	results := res.body["results"].([]interface{})
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "acme", r.(map[string]interface{})["tenantId"])
	}

	res = do(t, h, http.MethodGet, rootHost, "/1/log?tenant=acme", "", basic(superdogName, superdogPassword))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.NotEmpty(t, res.body["results"])

	res = do(t, h, http.MethodDelete, acmeHost, "/1/log", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Greater(t, res.body["totalDeleted"].(float64), float64(0))
}

func TestBackendHandler_Delete(t *testing.T) {
	h := newTestAPI(t)
	provision(t, h)

	res := do(t, h, http.MethodPost, rootHost, "/1/backend/acme", `{"username":"boss","password":"bosspass"}`)
	assert.Equal(t, http.StatusConflict, res.code, res.raw)

	res = do(t, h, http.MethodPost, rootHost, "/1/backend/api", `{"username":"boss","password":"bosspass"}`)
	assert.Equal(t, http.StatusBadRequest, res.code, res.raw)

	res = do(t, h, http.MethodDelete, acmeHost, "/1/backend", "", basic("boss", "bosspass"))
	require.Equal(t, http.StatusOK, res.code, res.raw)

	res = do(t, h, http.MethodGet, rootHost, "/1/backend", "", basic(superdogName, superdogPassword))
	require.Equal(t, http.StatusOK, res.code, res.raw)
	assert.Equal(t, float64(1), res.body["total"])
}
