package requestlog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
	"github.com/tenantdb/tenantdb/requestlog"
	"github.com/tenantdb/tenantdb/sqlite"
	"github.com/tenantdb/tenantdb/sqlite/migrations"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestService(t *testing.T) *requestlog.Service {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := sqlite.NewSqlStore(sqlite.InmemPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, sqlite.NewMigrator(store, log).Up(context.Background(), migrations.AllUp))

	return requestlog.NewService(log, store)
}

func entry(tenantID, path string, at time.Time) *tenantdb.LogEntry {
	return &tenantdb.LogEntry{
		TenantID:   tenantID,
		Method:     http.MethodGet,
		Path:       path,
		Status:     http.StatusOK,
		Username:   "bob",
		Level:      tenantdb.LevelUser.String(),
		ReceivedAt: at,
		DurationMS: 3,
	}
}

func TestService(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i, path := range []string{"/1/data", "/1/schema", "/1/credentials/me"} {
		require.NoError(t, svc.AddLog(ctx, entry("acme", path, epoch.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, svc.AddLog(ctx, entry("other", "/1/data", epoch)))

	logs, err := svc.FindLogs(ctx, tenantdb.LogFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "/1/credentials/me", logs[0].Path)
	assert.Equal(t, "/1/data", logs[2].Path)
	assert.Equal(t, epoch, logs[2].ReceivedAt)
	assert.Equal(t, "USER", logs[2].Level)
	assert.NotEmpty(t, logs[2].ID)

	since := epoch.Add(time.Minute)
	logs, err = svc.FindLogs(ctx, tenantdb.LogFilter{TenantID: "acme", Since: &since})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = svc.FindLogs(ctx, tenantdb.LogFilter{TenantID: "acme", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "/1/schema", logs[0].Path)

	logs, err = svc.FindLogs(ctx, tenantdb.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 4)

	n, err := svc.PurgeLogs(ctx, "acme", epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, svc.DeleteTenantLogs(ctx, "acme"))
	logs, err = svc.FindLogs(ctx, tenantdb.LogFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Empty(t, logs)

	logs, err = svc.FindLogs(ctx, tenantdb.LogFilter{TenantID: "other"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	clk := clock.NewMock()
	clk.Set(epoch)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sec, err := icontext.GetSecurity(r.Context())
		require.NoError(t, err)
		sec.TenantID = "acme"
		if r.URL.Path == "/1/data" {
			_, _ = sec.Authenticate(func() (*tenantdb.Credential, error) {
				return &tenantdb.Credential{ID: "1", TenantID: "acme", Username: "bob", Level: tenantdb.LevelAdmin}, nil
			})
		}
		clk.Add(25 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	})
	h := requestlog.Middleware(zaptest.NewLogger(t), svc, clk)(next)

	for _, path := range []string{"/1/data", "/1/login"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}

	logs, err := svc.FindLogs(context.Background(), tenantdb.LogFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	byPath := map[string]*tenantdb.LogEntry{}
	for _, l := range logs {
		byPath[l.Path] = l
	}
	assert.Equal(t, "bob", byPath["/1/data"].Username)
	assert.Equal(t, "ADMIN", byPath["/1/data"].Level)
	assert.Equal(t, int64(25), byPath["/1/data"].DurationMS)
	assert.Equal(t, http.StatusTeapot, byPath["/1/data"].Status)
	assert.Equal(t, "", byPath["/1/login"].Username)
}
