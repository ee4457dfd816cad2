package http

import (
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/authorizer"
	"github.com/tenantdb/tenantdb/batch"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"github.com/tenantdb/tenantdb/requestlog"
	"go.uber.org/zap"
)

const (
	metricsName = "tenantdb"

	healthPath  = "/health"
	metricsPath = "/metrics"
)

// APIBackend is all services and associated parameters required to construct
// an APIHandler. Services are passed undecorated by authorization; the
// handler wraps them itself.
type APIBackend struct {
	Logger   *zap.Logger
	Clock    clock.Clock
	Registry *prometheus.Registry

	// EnableGzip compresses responses for clients accepting it.
	EnableGzip bool

	CredentialService tenantdb.CredentialService
	PasswordService   tenantdb.PasswordService
	SessionService    tenantdb.SessionService
	TenantService     tenantdb.TenantService
	SchemaService     tenantdb.SchemaService
	ACLService        tenantdb.ACLService
	DocumentService   tenantdb.DocumentService
	SettingsService   tenantdb.SettingsService
	RequestLogService tenantdb.RequestLogService
}

// ResourceHandler is an HTTP handler for a resource. The prefix
// describes the url path prefix that relates to the handler
// endpoints.
type ResourceHandler interface {
	Prefix() string
	http.Handler
}

// APIHandler serves the whole API: the request log, the authentication gate
// and every resource handler behind it.
type APIHandler struct {
	// Router serves authenticated requests and the no-auth routes.
	Router chi.Router

	gate    *AuthenticationHandler
	handler http.Handler

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// APIHandlerOptFn is a functional input param to set parameters on
// the APIHandler.
type APIHandlerOptFn func(*APIHandler)

// WithResourceHandler registers a resource handler on the APIHandler.
func WithResourceHandler(resHandler ResourceHandler) APIHandlerOptFn {
	return func(h *APIHandler) {
		h.Router.Mount(resHandler.Prefix(), resHandler)
	}
}

// NewAPIHandler constructs all api handlers beneath it and returns an APIHandler.
func NewAPIHandler(b *APIBackend, opts ...APIHandlerOptFn) *APIHandler {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}
	reg := b.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	api := kithttp.NewAPI(kithttp.WithLog(log))

	labels := []string{"handler", "method", "path", "status", "response_code", "user_agent"}
	h := &APIHandler{
		Router: newBaseChiRouter(api),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Number of http requests received",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Time taken to respond to HTTP request",
		}, labels),
	}

	h.gate = NewAuthenticationHandler(log.With(zap.String("handler", "authentication")), b.CredentialService, b.PasswordService, b.TenantService)
	h.gate.RegisterNoAuthRoute(http.MethodGet, healthPath)
	h.gate.RegisterNoAuthRoute(http.MethodGet, metricsPath)
	h.gate.Handler = h.Router

	h.Router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		api.OK(w, r)
	})
	h.Router.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	credentialSvc := authorizer.NewCredentialService(b.CredentialService)
	passwordSvc := authorizer.NewPasswordService(b.PasswordService, b.CredentialService)
	sessionHandler := NewSessionHandler(log.With(zap.String("handler", "session")), b.SessionService)

	resources := []ResourceHandler{
		sessionHandler.LoginResourceHandler(),
		sessionHandler.LogoutResourceHandler(),
		NewCredentialHandler(log.With(zap.String("handler", "credentials")), credentialSvc, passwordSvc, b.SettingsService),
		NewBackendHandler(log.With(zap.String("handler", "backend")), b.TenantService),
		NewSchemaHandler(log.With(zap.String("handler", "schema")), b.SchemaService),
		NewDataHandler(log.With(zap.String("handler", "data")), authorizer.New(b.ACLService), b.DocumentService),
		NewSettingsHandler(log.With(zap.String("handler", "settings")), b.SettingsService),
		NewLogHandler(log.With(zap.String("handler", "log")), b.RequestLogService),
		// sub-requests re-enter the gate, which reuses the outer security state
		batch.NewHandler(log.With(zap.String("handler", "batch")), h.gate),
	}
	for _, res := range resources {
		WithResourceHandler(res)(h)
	}
	for _, o := range opts {
		o(h)
	}

	var handler http.Handler = h.gate
	if b.RequestLogService != nil {
		handler = requestlog.Middleware(log.With(zap.String("handler", "requestlog")), b.RequestLogService, clk)(handler)
	}
	handler = LoggingMW(log)(handler)
	handler = kithttp.Trace(metricsName)(handler)
	handler = kithttp.Metrics(metricsName, h.requests, h.duration)(handler)
	handler = kithttp.SetCORS(handler)
	if b.EnableGzip {
		handler = gziphandler.GzipHandler(handler)
	}
	h.handler = handler

	for _, c := range h.PrometheusCollectors() {
		if err := reg.Register(c); err != nil {
			log.Warn("Failed to register collector", zap.Error(err))
		}
	}
	return h
}

// ServeHTTP delegates a request to the middleware chain of the API.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (h *APIHandler) PrometheusCollectors() []prometheus.Collector {
	return append([]prometheus.Collector{h.requests, h.duration}, h.gate.PrometheusCollectors()...)
}

// newBaseChiRouter returns a router answering unknown routes with JSON errors,
// so batch sub-requests always get a JSON body back.
func newBaseChiRouter(api *kithttp.API) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Err(w, r, tenantdb.ErrNotFound("path [%s] not found", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Err(w, r, &errors.Error{
			Code: errors.EMethodNotAllowed,
			Msg:  "method [" + r.Method + "] not allowed on path [" + r.URL.Path + "]",
		})
	})
	return r
}
