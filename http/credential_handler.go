package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"github.com/tenantdb/tenantdb/settings"
	"go.uber.org/zap"
)

const prefixCredentials = "/1/credentials"

// CredentialHandler serves sign up and the management of credentials.
type CredentialHandler struct {
	chi.Router
	api *kithttp.API
	log *zap.Logger

	credentialSvc tenantdb.CredentialService
	passwordSvc   tenantdb.PasswordService
	settingsSvc   tenantdb.SettingsService
}

// NewCredentialHandler returns a handler over the given services. They are
// expected to enforce their own authorization.
func NewCredentialHandler(log *zap.Logger, credSvc tenantdb.CredentialService, passSvc tenantdb.PasswordService, settingsSvc tenantdb.SettingsService) *CredentialHandler {
	h := &CredentialHandler{
		api:           kithttp.NewAPI(kithttp.WithLog(log)),
		log:           log,
		credentialSvc: credSvc,
		passwordSvc:   passSvc,
		settingsSvc:   settingsSvc,
	}

	r := chi.NewRouter()
	r.Route("/", func(r chi.Router) {
		r.Get("/", h.handleGetCredentials)
		r.Post("/", h.handlePostCredential)
		r.Get("/me", h.handleGetMe)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetCredential)
			r.Put("/", h.handlePutCredential)
			r.Delete("/", h.handleDeleteCredential)
			r.Post("/password", h.handlePostPassword)
			r.Delete("/password", h.handleDeletePassword)
			r.Put("/roles/{role}", h.handlePutRole)
			r.Delete("/roles/{role}", h.handleDeleteRole)
			r.Post("/enable", h.handleEnable(false))
			r.Post("/disable", h.handleEnable(true))
		})
	})

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *CredentialHandler) Prefix() string {
	return prefixCredentials
}

// credentialResponse never carries the password hash, reset code or token.
type credentialResponse struct {
	ID        string         `json:"id"`
	BackendID string         `json:"backendId"`
	Username  string         `json:"username"`
	Email     string         `json:"email,omitempty"`
	Level     tenantdb.Level `json:"level"`
	Roles     []string       `json:"roles"`
	Disabled  bool           `json:"disabled"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int64          `json:"version"`
}

func newCredentialResponse(c *tenantdb.Credential) credentialResponse {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return credentialResponse{
		ID:        c.ID,
		BackendID: c.TenantID,
		Username:  c.Username,
		Email:     c.Email,
		Level:     c.Level,
		Roles:     roles,
		Disabled:  c.Disabled,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Version:   c.Version,
	}
}

type postCredentialRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Email    string          `json:"email"`
	Level    *tenantdb.Level `json:"level"`
}

func (req *postCredentialRequest) OK() error {
	if req.Username == "" {
		return tenantdb.ErrIllegalArgument("username is required")
	}
	return nil
}

func (h *CredentialHandler) handlePostCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	var req postCredentialRequest
	if err := h.api.DecodeJSON(r.Body, &req); err != nil {
		h.api.Err(w, r, err)
		return
	}

	cs, err := settings.CredentialsSettings(ctx, h.settingsSvc, caller.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if cs.DisableGuestSignUp && !caller.AtLeast(tenantdb.LevelAdmin) {
		h.api.Err(w, r, tenantdb.ErrForbidden("guest sign up is disabled in backend [%s]", caller.TenantID))
		return
	}
	if req.Password == "" && !caller.AtLeast(tenantdb.LevelAdmin) {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("password is required"))
		return
	}
	if req.Password != "" && len(req.Password) < cs.MinPasswordLength {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("password must be at least %d characters long", cs.MinPasswordLength))
		return
	}

	c := &tenantdb.Credential{
		TenantID: caller.TenantID,
		Username: req.Username,
		Email:    req.Email,
		Level:    tenantdb.LevelUser,
	}
	if req.Level != nil {
		c.Level = *req.Level
	}
	if err := h.credentialSvc.CreateCredential(ctx, c, req.Password); err != nil {
		h.api.Err(w, r, err)
		return
	}

	p := kithttp.Payload{
		"id":       c.ID,
		"type":     "credentials",
		"location": location(r, "credentials", c.ID),
	}
	// admins hand the reset code over to the new credential
	if c.PasswordResetCode != "" && caller.AtLeast(tenantdb.LevelAdmin) {
		p["passwordResetCode"] = c.PasswordResetCode
	}
	h.api.RespondPayload(w, r, http.StatusCreated, p)
}

func (h *CredentialHandler) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	pg, err := decodePaging(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	filter := tenantdb.CredentialFilter{TenantID: caller.TenantID}
	q := r.URL.Query()
	if v := q.Get("username"); v != "" {
		filter.Username = &v
	}
	if v := q.Get("level"); v != "" {
		l, err := tenantdb.ParseLevel(v)
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		filter.Level = &l
	}

	cs, n, err := h.credentialSvc.FindCredentials(r.Context(), filter, tenantdb.FindOptions{Offset: pg.From, Limit: pg.Size})
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	results := make([]credentialResponse, 0, len(cs))
	for _, c := range cs {
		results = append(results, newCredentialResponse(c))
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"total":   n,
		"results": results,
	})
}

func (h *CredentialHandler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	c, err := authorizer.RequireLevel(r.Context(), tenantdb.LevelUser)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, newCredentialResponse(c))
}

func (h *CredentialHandler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	c, err := h.credentialSvc.FindCredentialByID(r.Context(), caller.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.Respond(w, r, http.StatusOK, newCredentialResponse(c))
}

type putCredentialRequest struct {
	Email *string         `json:"email"`
	Level *tenantdb.Level `json:"level"`
}

func (h *CredentialHandler) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var req putCredentialRequest
	if err := h.api.DecodeJSON(r.Body, &req); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.update(w, r, tenantdb.CredentialUpdate{Email: req.Email, Level: req.Level})
}

func (h *CredentialHandler) update(w http.ResponseWriter, r *http.Request, upd tenantdb.CredentialUpdate) {
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	c, err := h.credentialSvc.UpdateCredential(r.Context(), caller.TenantID, chi.URLParam(r, "id"), upd)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"id":       c.ID,
		"type":     "credentials",
		"location": location(r, "credentials", c.ID),
		"version":  c.Version,
	})
}

func (h *CredentialHandler) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	if err := h.credentialSvc.DeleteCredential(r.Context(), caller.TenantID, chi.URLParam(r, "id")); err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}

type postPasswordRequest struct {
	Password string `json:"password"`
}

// handlePostPassword sets a password. Holders of a reset code pass it as the
// passwordResetCode parameter and need no credentials.
func (h *CredentialHandler) handlePostPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	var req postPasswordRequest
	if err := h.api.DecodeJSON(r.Body, &req); err != nil {
		h.api.Err(w, r, err)
		return
	}

	cs, err := settings.CredentialsSettings(ctx, h.settingsSvc, caller.TenantID)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if len(req.Password) < cs.MinPasswordLength {
		h.api.Err(w, r, tenantdb.ErrIllegalArgument("password must be at least %d characters long", cs.MinPasswordLength))
		return
	}

	id := chi.URLParam(r, "id")
	if code := r.URL.Query().Get("passwordResetCode"); code != "" {
		err = h.passwordSvc.SetPasswordWithCode(ctx, caller.TenantID, id, code, req.Password)
	} else {
		err = h.passwordSvc.SetPassword(ctx, caller.TenantID, id, req.Password)
	}
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.OK(w, r)
}

func (h *CredentialHandler) handleDeletePassword(w http.ResponseWriter, r *http.Request) {
	caller, err := credential(r)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	code, err := h.passwordSvc.ResetPassword(r.Context(), caller.TenantID, id)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"id":                id,
		"passwordResetCode": code,
	})
}

func (h *CredentialHandler) handlePutRole(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, tenantdb.CredentialUpdate{GrantRoles: []string{chi.URLParam(r, "role")}})
}

func (h *CredentialHandler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, tenantdb.CredentialUpdate{RevokeRoles: []string{chi.URLParam(r, "role")}})
}

func (h *CredentialHandler) handleEnable(disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.update(w, r, tenantdb.CredentialUpdate{Disabled: &disabled})
	}
}
