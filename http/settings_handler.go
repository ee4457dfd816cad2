package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const prefixSettings = "/1/settings"

// SettingsHandler serves the named settings of a tenant to its admins.
type SettingsHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	settingsSvc tenantdb.SettingsService
}

// NewSettingsHandler returns a new instance of SettingsHandler.
func NewSettingsHandler(log *zap.Logger, settingsSvc tenantdb.SettingsService) *SettingsHandler {
	h := &SettingsHandler{
		api:         kithttp.NewAPI(kithttp.WithLog(log)),
		log:         log,
		settingsSvc: settingsSvc,
	}

	r := chi.NewRouter()
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGetSettings)
		r.Put("/", h.handlePutSettings)
		r.Delete("/", h.handleDeleteSettings)
	})

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *SettingsHandler) Prefix() string {
	return prefixSettings
}

func (h *SettingsHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	s, err := h.settingsSvc.FindSettings(ctx, c.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, s)
}

func (h *SettingsHandler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("failed to read settings"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.settingsSvc.PutSettings(ctx, c.TenantID, id, json.RawMessage(body)); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"id":       id,
		"type":     tenantdb.SettingsType,
		"location": location(r, "settings", id),
	})
}

func (h *SettingsHandler) handleDeleteSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.settingsSvc.DeleteSettings(ctx, c.TenantID, chi.URLParam(r, "id")); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}
