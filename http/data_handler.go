package http

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const (
	prefixData = "/1/data"

	deletePageSize = 100
)

// DataHandler serves the objects of tenant types. Every operation is checked
// against the access control list of the type.
type DataHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	authz       *authorizer.Authorizer
	documentSvc tenantdb.DocumentService
}

// NewDataHandler returns a new instance of DataHandler.
func NewDataHandler(log *zap.Logger, authz *authorizer.Authorizer, documentSvc tenantdb.DocumentService) *DataHandler {
	h := &DataHandler{
		api:         kithttp.NewAPI(kithttp.WithLog(log)),
		log:         log,
		authz:       authz,
		documentSvc: documentSvc,
	}

	r := chi.NewRouter()
	r.Route("/", func(r chi.Router) {
		r.Get("/", h.handleSearchAll)

		r.Route("/{type}", func(r chi.Router) {
			r.Get("/", h.handleSearchType)
			r.Post("/", h.handlePostObject)
			r.Delete("/", h.handleDeleteAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetObject)
				r.Put("/", h.handlePutObject)
				r.Delete("/", h.handleDeleteObject)
			})
		})
	})

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *DataHandler) Prefix() string {
	return prefixData
}

func (h *DataHandler) search(w http.ResponseWriter, r *http.Request, tenantID string, types []string) {
	pg, err := decodePaging(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	page := &tenantdb.DocumentPage{Results: []*tenantdb.Document{}}
	if len(types) > 0 {
		page, err = h.documentSvc.SearchDocuments(r.Context(), tenantID, tenantdb.SearchQuery{
			Types: types,
			Text:  r.URL.Query().Get("q"),
			From:  pg.From,
			Size:  pg.Size,
		})
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
	}

	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"total":   page.Total,
		"results": page.Results,
	})
}

// handleSearchAll searches every type the caller may read.
func (h *DataHandler) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	set := map[string]struct{}{}
	for _, p := range []tenantdb.DataPermission{tenantdb.PermSearch, tenantdb.PermReadAll} {
		types, err := h.authz.Types(ctx, c, p)
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		for _, t := range types {
			set[t] = struct{}{}
		}
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)

	h.search(w, r, c.TenantID, types)
}

func (h *DataHandler) handleSearchType(w http.ResponseWriter, r *http.Request) {
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	typ := chi.URLParam(r, "type")
	if err := h.authz.AuthorizeSearch(r.Context(), c, typ); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.search(w, r, c.TenantID, []string{typ})
}

func (h *DataHandler) handlePostObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	typ := chi.URLParam(r, "type")
	if err := h.authz.AuthorizeCreate(ctx, c, typ); err != nil {
		h.api.Err(w, r, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("failed to read object"))
		return
	}

	saved, err := h.documentSvc.CreateDocument(ctx, c.TenantID, typ, r.URL.Query().Get("id"), json.RawMessage(body), c.Username)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.respondSaved(w, r, http.StatusCreated, saved)
}

func (h *DataHandler) respondSaved(w http.ResponseWriter, r *http.Request, status int, saved *tenantdb.DocumentSaved) {
	h.api.RespondPayload(w, r, status, kithttp.Payload{
		"id":       saved.ID,
		"type":     saved.Type,
		"version":  saved.Version,
		"location": location(r, "data", saved.Type, saved.ID),
	})
}

// handleDeleteAll deletes every object of the type, or only the caller's own
// objects when it lacks the delete_all permission.
func (h *DataHandler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	typ := chi.URLParam(r, "type")
	all, err := h.authz.Check(ctx, c, typ, tenantdb.PermDeleteAll)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if !all {
		own, err := h.authz.Check(ctx, c, typ, tenantdb.PermDelete)
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		if !own {
			h.api.Err(w, r, tenantdb.ErrForbidden("%q is not allowed to delete [%s] objects", c.Username, typ))
			return
		}
	}

	// collect first so deletions do not shift the pages
	var ids []string
	for from := 0; ; from += deletePageSize {
		page, err := h.documentSvc.SearchDocuments(ctx, c.TenantID, tenantdb.SearchQuery{
			Types: []string{typ},
			From:  from,
			Size:  deletePageSize,
		})
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		for _, d := range page.Results {
			if all || d.Meta.CreatedBy == c.Username {
				ids = append(ids, d.Meta.ID)
			}
		}
		if len(page.Results) < deletePageSize {
			break
		}
	}

	for _, id := range ids {
		if err := h.documentSvc.DeleteDocument(ctx, c.TenantID, typ, id); err != nil {
			h.api.Err(w, r, err)
			return
		}
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"totalDeleted": len(ids),
	})
}

// find loads an object and the raw form the ownership checks read.
func (h *DataHandler) find(r *http.Request, tenantID string) (*tenantdb.Document, *tenantdb.RawDocument, error) {
	typ, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	doc, err := h.documentSvc.FindDocument(r.Context(), tenantID, typ, id)
	if err != nil {
		return nil, nil, err
	}
	source, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, tenantdb.ErrInternal(err, "http/DataHandler.find")
	}
	return doc, &tenantdb.RawDocument{
		TenantID: tenantID,
		Type:     typ,
		ID:       id,
		Version:  doc.Meta.Version,
		Source:   source,
	}, nil
}

func (h *DataHandler) handleGetObject(w http.ResponseWriter, r *http.Request) {
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	doc, raw, err := h.find(r, c.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if err := h.authz.AuthorizeRead(r.Context(), c, raw); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, doc)
}

// handlePutObject merges the body into the stored object, or replaces it
// when the strict parameter is set. The version parameter enables optimistic
// concurrency.
func (h *DataHandler) handlePutObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	q := r.URL.Query()
	upd := tenantdb.DocumentUpdate{Patch: !cast.ToBool(q.Get("strict"))}
	if v := q.Get("version"); v != "" {
		if upd.Version, err = cast.ToInt64E(v); err != nil || upd.Version < 1 {
			h.api.Err(w, r, tenantdb.ErrIllegalArgument("invalid version parameter [%s]", v))
			return
		}
	}
	if upd.Source, err = io.ReadAll(r.Body); err != nil {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("failed to read object"))
		return
	}

	_, raw, err := h.find(r, c.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if err := h.authz.AuthorizeUpdate(ctx, c, raw); err != nil {
		h.api.Err(w, r, err)
		return
	}

	saved, err := h.documentSvc.UpdateDocument(ctx, c.TenantID, raw.Type, raw.ID, upd, c.Username)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.respondSaved(w, r, http.StatusOK, saved)
}

func (h *DataHandler) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	_, raw, err := h.find(r, c.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if err := h.authz.AuthorizeDelete(ctx, c, raw); err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.documentSvc.DeleteDocument(ctx, raw.TenantID, raw.Type, raw.ID); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}
