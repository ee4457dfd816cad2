package http

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const (
	prefixLogin  = "/1/login"
	prefixLogout = "/1/logout"
)

// SessionHandler issues and revokes access tokens.
type SessionHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	sessionSvc tenantdb.SessionService
}

// NewSessionHandler returns a new instance of SessionHandler.
func NewSessionHandler(log *zap.Logger, sessionSvc tenantdb.SessionService) *SessionHandler {
	return &SessionHandler{
		api:        kithttp.NewAPI(kithttp.WithLog(log)),
		log:        log,
		sessionSvc: sessionSvc,
	}
}

type resourceHandler struct {
	prefix string
	*SessionHandler
}

// Prefix is necessary to mount the router as a resource handler
func (r resourceHandler) Prefix() string { return r.prefix }

// LoginResourceHandler returns the handler mounted on the login route.
func (h SessionHandler) LoginResourceHandler() *resourceHandler {
	h.Router = chi.NewRouter()
	h.Router.Post("/", h.handleLogin)
	h.Router.Get("/", h.handleLogin)
	return &resourceHandler{prefix: prefixLogin, SessionHandler: &h}
}

// LogoutResourceHandler returns the handler mounted on the logout route.
func (h SessionHandler) LogoutResourceHandler() *resourceHandler {
	h.Router = chi.NewRouter()
	h.Router.Post("/", h.handleLogout)
	h.Router.Get("/", h.handleLogout)
	return &resourceHandler{prefix: prefixLogout, SessionHandler: &h}
}

// handleLogin is the HTTP handler for the POST /1/login route. The caller
// authenticates with its password or a previous token.
func (h *SessionHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	c, err := authorizer.RequireLevel(r.Context(), tenantdb.LevelUser)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	s, err := h.sessionSvc.CreateSession(r.Context(), c.HomeTenantID(), c.ID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	h.log.Debug("Session created", zap.String("tenant", c.TenantID), zap.String("username", c.Username))
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"accessToken": s.AccessToken,
		"expiresIn":   int64(s.AccessTokenExpiresAt.Sub(s.UpdatedAt).Seconds()),
		"credentials": newCredentialResponse(s.ActingAs(c.TenantID)),
	})
}

// handleLogout is the HTTP handler for the POST /1/logout route.
func (h *SessionHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, err := authorizer.RequireLevel(r.Context(), tenantdb.LevelUser)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.sessionSvc.ExpireSession(r.Context(), c.HomeTenantID(), c.ID); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}
