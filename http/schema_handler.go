package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const prefixSchema = "/1/schema"

// SchemaHandler serves the type declarations of a tenant.
type SchemaHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	schemaSvc tenantdb.SchemaService
}

// NewSchemaHandler returns a new instance of SchemaHandler.
func NewSchemaHandler(log *zap.Logger, schemaSvc tenantdb.SchemaService) *SchemaHandler {
	h := &SchemaHandler{
		api:       kithttp.NewAPI(kithttp.WithLog(log)),
		log:       log,
		schemaSvc: schemaSvc,
	}

	r := chi.NewRouter()
	r.Route("/", func(r chi.Router) {
		r.Get("/", h.handleGetSchemas)

		r.Route("/{type}", func(r chi.Router) {
			r.Get("/", h.handleGetSchema)
			r.Put("/", h.handlePutSchema)
			r.Post("/", h.handlePutSchema)
			r.Delete("/", h.handleDeleteSchema)
		})
	})

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *SchemaHandler) Prefix() string {
	return prefixSchema
}

func (h *SchemaHandler) handleGetSchemas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelUser)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	schemas, err := h.schemaSvc.FindSchemas(ctx, c.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, schemas)
}

func (h *SchemaHandler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelUser)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	s, err := h.schemaSvc.FindSchema(ctx, c.TenantID, chi.URLParam(r, "type"))
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, s)
}

// decodeTypeOptions reads the shards and replicas parameters. Absent values
// are left to the service defaults.
func decodeTypeOptions(r *http.Request) (tenantdb.TypeOptions, error) {
	opts := tenantdb.TypeOptions{Shards: 0, Replicas: -1}
	q := r.URL.Query()
	if v := q.Get("shards"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 1 {
			return opts, tenantdb.ErrIllegalArgument("invalid shards parameter [%s]", v)
		}
		opts.Shards = n
	}
	if v := q.Get("replicas"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			return opts, tenantdb.ErrIllegalArgument("invalid replicas parameter [%s]", v)
		}
		opts.Replicas = n
	}
	return opts, nil
}

func (h *SchemaHandler) handlePutSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	opts, err := decodeTypeOptions(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("failed to read schema"))
		return
	}

	typ := chi.URLParam(r, "type")
	res, err := h.schemaSvc.ApplySchema(ctx, c.TenantID, typ, json.RawMessage(body), opts)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.api.RespondPayload(w, r, status, kithttp.Payload{
		"id":       res.Type,
		"type":     "schema",
		"location": location(r, "schema", res.Type),
		"created":  res.Created,
		"changed":  res.Changed,
	})
}

func (h *SchemaHandler) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := authorizer.RequireLevel(ctx, tenantdb.LevelAdmin)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.schemaSvc.DeleteSchema(ctx, c.TenantID, chi.URLParam(r, "type")); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}
