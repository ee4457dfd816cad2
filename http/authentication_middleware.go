package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/influxdata/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

// Headers read by the authentication gate.
const (
	KeyHeader   = "X-Tenantdb-Key"
	DebugHeader = "X-Tenantdb-Debug"
	TestHeader  = "X-Tenantdb-Test"

	accessTokenParam = "access_token"
	debugParam       = "debug"
	bearerScheme     = "Bearer "
)

// Labels of the credential checks counter.
const (
	checkAnonymous     = "anonymous"
	checkAuthenticated = "authenticated"
	checkRejected      = "rejected"
)

// AuthenticationHandler resolves the tenant a request addresses and the
// credential it carries, and stores both in the security state of the request
// context. A security state found on the context is reused, so batch
// sub-requests authenticate once.
type AuthenticationHandler struct {
	log *zap.Logger
	api *kithttp.API

	CredentialService tenantdb.CredentialService
	PasswordService   tenantdb.PasswordService
	TenantService     tenantdb.TenantService

	// This is only really used for it's lookup method the specific http
	// handler used to register routes does not matter.
	noAuthRouter *httprouter.Router

	checks *prometheus.CounterVec

	Handler http.Handler
}

// NewAuthenticationHandler creates an authentication handler.
func NewAuthenticationHandler(log *zap.Logger, credSvc tenantdb.CredentialService, passSvc tenantdb.PasswordService, tenantSvc tenantdb.TenantService) *AuthenticationHandler {
	return &AuthenticationHandler{
		log:               log,
		api:               kithttp.NewAPI(kithttp.WithLog(log)),
		CredentialService: credSvc,
		PasswordService:   passSvc,
		TenantService:     tenantSvc,
		noAuthRouter:      httprouter.New(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantdb",
			Subsystem: "auth",
			Name:      "credential_checks_total",
			Help:      "Number of credential checks performed by the authentication gate",
		}, []string{"result"}),
		Handler: http.NotFoundHandler(),
	}
}

// PrometheusCollectors returns the metrics of the gate.
func (h *AuthenticationHandler) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{h.checks}
}

// RegisterNoAuthRoute excludes routes from needing authentication.
func (h *AuthenticationHandler) RegisterNoAuthRoute(method, path string) {
	// the handler specified here does not matter.
	h.noAuthRouter.HandlerFunc(method, path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
}

// ServeHTTP authenticates the request and hands it to the wrapped handler.
func (h *AuthenticationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, _, _ := h.noAuthRouter.Lookup(r.Method, r.URL.Path); handler != nil {
		h.Handler.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	sec, err := icontext.GetSecurity(ctx)
	if err != nil {
		sec = icontext.NewSecurity("")
		ctx = icontext.SetSecurity(ctx, sec)
		r = r.WithContext(ctx)
	}

	_, err = sec.Authenticate(func() (*tenantdb.Credential, error) {
		sec.Debug = flag(r.Header.Get(DebugHeader)) || flag(r.URL.Query().Get(debugParam))
		sec.Test = flag(r.Header.Get(TestHeader))

		tenantID, err := tenantdb.TenantFromHost(r.Host)
		if err != nil {
			h.checks.WithLabelValues(checkRejected).Inc()
			return nil, err
		}
		sec.TenantID = tenantID

		c, err := h.authenticate(ctx, r, tenantID)
		switch {
		case err != nil:
			h.checks.WithLabelValues(checkRejected).Inc()
			return nil, err
		case c.Disabled:
			h.checks.WithLabelValues(checkRejected).Inc()
			return nil, tenantdb.ErrDisabledCredential(c.Username)
		case !c.Authenticated():
			h.checks.WithLabelValues(checkAnonymous).Inc()
		default:
			h.checks.WithLabelValues(checkAuthenticated).Inc()
		}
		return c, nil
	})
	if err != nil {
		h.log.Debug("Request rejected by authentication gate",
			zap.String("host", r.Host),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.api.Err(w, r, err)
		return
	}

	h.Handler.ServeHTTP(w, r)
}

// flag parses the lenient boolean values of debug and test flags.
func flag(v string) bool {
	return strings.EqualFold(v, "yes") || cast.ToBool(v)
}

func (h *AuthenticationHandler) authenticate(ctx context.Context, r *http.Request, tenantID string) (*tenantdb.Credential, error) {
	if username, password, ok := r.BasicAuth(); ok {
		return h.extractBasic(ctx, tenantID, username, password)
	}

	if authz := r.Header.Get("Authorization"); authz != "" {
		if !strings.HasPrefix(authz, bearerScheme) {
			return nil, tenantdb.ErrAuthentication("unsupported authorization scheme")
		}
		return h.extractToken(ctx, tenantID, strings.TrimSpace(strings.TrimPrefix(authz, bearerScheme)))
	}

	if token := r.URL.Query().Get(accessTokenParam); token != "" {
		return h.extractToken(ctx, tenantID, token)
	}

	if key := r.Header.Get(KeyHeader); key != "" {
		return h.extractKey(ctx, tenantID, key)
	}

	return tenantdb.NewAnonymous(tenantID), nil
}

func (h *AuthenticationHandler) extractBasic(ctx context.Context, tenantID, username, password string) (*tenantdb.Credential, error) {
	lookup := tenantID
	if tenantdb.IsSuperdogName(username) {
		lookup = tenantdb.RootTenantID
	}

	c, err := h.PasswordService.ComparePassword(ctx, lookup, username, password)
	if err != nil {
		return nil, authenticationError(err, "invalid username or password")
	}
	return actingAs(c, tenantID)
}

func (h *AuthenticationHandler) extractToken(ctx context.Context, tenantID, token string) (*tenantdb.Credential, error) {
	if token == "" {
		return nil, tenantdb.ErrAuthentication("empty access token")
	}

	c, err := h.CredentialService.FindCredentialByToken(ctx, token)
	if err != nil {
		return nil, authenticationError(err, "invalid or expired access token")
	}
	return actingAs(c, tenantID)
}

func (h *AuthenticationHandler) extractKey(ctx context.Context, tenantID, key string) (*tenantdb.Credential, error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, tenantdb.ErrAuthentication("key must be formatted as backendId:keyName:keySecret")
	}
	keyTenant, name, secret := parts[0], parts[1], parts[2]

	// a key sent to the root host selects its own tenant
	if tenantID != tenantdb.RootTenantID && keyTenant != tenantID {
		return nil, tenantdb.ErrAuthentication("key does not belong to backend [" + tenantID + "]")
	}
	if err := h.TenantService.CheckKey(ctx, keyTenant, name, secret); err != nil {
		return nil, authenticationError(err, "invalid key")
	}
	return tenantdb.NewKeyCredential(keyTenant, name), nil
}

// actingAs scopes c to the tenant the request addresses. Superdogs act as any
// tenant; everybody else must belong to it.
func actingAs(c *tenantdb.Credential, tenantID string) (*tenantdb.Credential, error) {
	if c.Level == tenantdb.LevelSuperdog {
		return c.ActingAs(tenantID), nil
	}
	if c.TenantID != tenantID {
		return nil, tenantdb.ErrAuthentication("credential does not belong to backend [" + tenantID + "]")
	}
	return c, nil
}

// authenticationError hides lookup failures behind an authentication error.
// Internal failures are kept so they get logged.
func authenticationError(err error, msg string) error {
	switch errors.ErrorCode(err) {
	case errors.EInternal:
		return err
	case errors.EUnauthorized:
		return tenantdb.ErrAuthentication(errors.ErrorMessage(err))
	default:
		return tenantdb.ErrAuthentication(msg)
	}
}
