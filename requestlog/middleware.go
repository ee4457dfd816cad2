package requestlog

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

// Middleware records every request it serves. It installs the security state of
// the request so the entry can name the tenant and credential the
// authentication gate resolved.
func Middleware(log *zap.Logger, svc tenantdb.RequestLogService, clk clock.Clock) kithttp.Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			sec, err := icontext.GetSecurity(r.Context())
			if err != nil {
				sec = icontext.NewSecurity("")
				r = r.WithContext(icontext.SetSecurity(r.Context(), sec))
			}

			statusW := kithttp.NewStatusResponseWriter(w)
			start := clk.Now()
			next.ServeHTTP(statusW, r)

			e := &tenantdb.LogEntry{
				TenantID:   sec.TenantID,
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     statusW.Code(),
				ReceivedAt: start.UTC(),
				DurationMS: clk.Since(start).Milliseconds(),
			}
			if c, err := sec.Credential(); err == nil {
				e.TenantID = c.TenantID
				e.Username = c.Username
				e.Level = c.Level.String()
			}
			if e.TenantID == "" {
				// the tenant could not be resolved
				return
			}

			ctx := context.WithoutCancel(r.Context())
			if err := svc.AddLog(ctx, e); err != nil {
				log.Warn("Failed to record request", zap.String("path", e.Path), zap.Error(err))
			}
		}
		return http.HandlerFunc(fn)
	}
}
