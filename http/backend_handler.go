package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const prefixBackend = "/1/backend"

// BackendHandler provisions, lists and deletes tenants.
type BackendHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	tenantSvc tenantdb.TenantService
}

// NewBackendHandler returns a new instance of BackendHandler.
func NewBackendHandler(log *zap.Logger, tenantSvc tenantdb.TenantService) *BackendHandler {
	h := &BackendHandler{
		api:       kithttp.NewAPI(kithttp.WithLog(log)),
		log:       log,
		tenantSvc: tenantSvc,
	}

	r := chi.NewRouter()
	r.Route("/", func(r chi.Router) {
		r.Get("/", h.handleGetBackends)
		r.Delete("/", h.handleDeleteBackend)
		r.Get("/keys", h.handleGetKeys)
		r.Post("/{tenantID}", h.handlePostBackend)
	})

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *BackendHandler) Prefix() string {
	return prefixBackend
}

type backendResponse struct {
	BackendID string    `json:"backendId"`
	CreatedAt time.Time `json:"createdAt"`
}

// handlePostBackend provisions a tenant and its first SUPER_ADMIN. It is public.
func (h *BackendHandler) handlePostBackend(w http.ResponseWriter, r *http.Request) {
	var tc tenantdb.TenantCreate
	if err := h.api.DecodeJSON(r.Body, &tc); err != nil {
		h.api.Err(w, r, err)
		return
	}
	tc.TenantID = chi.URLParam(r, "tenantID")

	t, c, err := h.tenantSvc.CreateTenant(r.Context(), tc)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	h.log.Info("Backend created", zap.String("tenant", t.ID), zap.String("superadmin", c.Username))
	h.api.RespondPayload(w, r, http.StatusCreated, kithttp.Payload{
		"id":       t.ID,
		"type":     "backend",
		"location": location(r, "backend"),
	})
}

// handleGetBackends lists the caller's tenant, or every tenant for superdogs.
func (h *BackendHandler) handleGetBackends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelSuperAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	var ts []*tenantdb.Tenant
	if c.AtLeast(tenantdb.LevelSuperdog) {
		ts, err = h.tenantSvc.FindTenants(ctx)
	} else {
		var t *tenantdb.Tenant
		t, err = h.tenantSvc.FindTenantByID(ctx, c.TenantID)
		ts = []*tenantdb.Tenant{t}
	}
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	results := make([]backendResponse, 0, len(ts))
	for _, t := range ts {
		results = append(results, backendResponse{BackendID: t.ID, CreatedAt: t.CreatedAt})
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"total":   len(results),
		"results": results,
	})
}

func (h *BackendHandler) handleDeleteBackend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelSuperAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.tenantSvc.DeleteTenant(ctx, c.TenantID); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.log.Info("Backend deleted", zap.String("tenant", c.TenantID), zap.String("by", c.Username))
	h.api.OK(w, r)
}

func (h *BackendHandler) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelSuperAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	t, err := h.tenantSvc.FindTenantByID(ctx, c.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	keys := t.Keys
	if keys == nil {
		keys = []tenantdb.APIKey{}
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"backendId": t.ID,
		"keys":      keys,
	})
}
