package http

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const prefixLog = "/1/log"

// LogHandler serves the request log of a tenant.
type LogHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	logSvc tenantdb.RequestLogService
}

// NewLogHandler returns a new instance of LogHandler.
func NewLogHandler(log *zap.Logger, logSvc tenantdb.RequestLogService) *LogHandler {
	h := &LogHandler{
		api:    kithttp.NewAPI(kithttp.WithLog(log)),
		log:    log,
		logSvc: logSvc,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleGetLogs)
	r.Delete("/", h.handleDeleteLogs)

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *LogHandler) Prefix() string {
	return prefixLog
}

// handleGetLogs returns the latest entries of the caller's tenant. Superdogs
// may read another tenant with the tenant parameter.
func (h *LogHandler) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	filter := tenantdb.LogFilter{TenantID: c.TenantID}
	if t := r.URL.Query().Get("tenant"); t != "" && t != c.TenantID {
		if !c.AtLeast(tenantdb.LevelSuperdog) {
			h.api.Err(w, r, tenantdb.ErrInsufficientPrivilege(c.Level, tenantdb.LevelSuperdog))
			return
		}
		filter.TenantID = t
	}

	pg, err := decodePaging(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	filter.Offset, filter.Limit = pg.From, pg.Size

	since, err := decodeTime(r, "since")
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if !since.IsZero() {
		filter.Since = &since
	}

	logs, err := h.logSvc.FindLogs(ctx, filter)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"results": logs,
	})
}

// handleDeleteLogs purges the entries received before the before parameter,
// or every entry without it.
func (h *LogHandler) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelSuperAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	before, err := decodeTime(r, "before")
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	n, err := h.logSvc.PurgeLogs(ctx, c.TenantID, before)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.log.Info("Request log purged", zap.String("tenant", c.TenantID), zap.Int64("deleted", n))
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"totalDeleted": n,
	})
}
