package http

import (
	"encoding/json"
	"io"
	"net/http"

	icontext "github.com/tenantdb/tenantdb/context"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"go.uber.org/zap"
)

type oker interface {
	OK() error
}

// APIOptFn is a functional option for NewAPI.
type APIOptFn func(*API)

// WithLog sets the logger used to report failed responses.
func WithLog(logger *zap.Logger) APIOptFn {
	return func(api *API) {
		api.logger = logger
	}
}

// WithPrettyJSON indents encoded bodies.
func WithPrettyJSON(b bool) APIOptFn {
	return func(api *API) {
		api.prettyJSON = b
	}
}

// API encodes and decodes the JSON bodies of handlers.
type API struct {
	logger     *zap.Logger
	prettyJSON bool
	errHandler errors.HTTPErrorHandler
}

// NewAPI returns an API with a no-op logger by default.
func NewAPI(opts ...APIOptFn) *API {
	api := API{
		logger:     zap.NewNop(),
		errHandler: ErrorHandler(0),
	}
	for _, o := range opts {
		o(&api)
	}
	return &api
}

// DecodeJSON decodes a request body into v and validates it when v has an OK method.
func (a *API) DecodeJSON(r io.Reader, v interface{}) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "failed to decode request body",
			Err:  err,
		}
	}

	if vv, ok := v.(oker); ok {
		return vv.OK()
	}
	return nil
}

// Payload is a successful response body. Respond adds the success and status fields.
type Payload map[string]interface{}

// Respond writes v as is.
func (a *API) Respond(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if a.prettyJSON {
		enc.SetIndent("", "\t")
	}
	if err := enc.Encode(v); err != nil {
		a.logger.Error("failed to encode response body", zap.Error(err))
	}
}

// RespondPayload writes p inside the success envelope.
func (a *API) RespondPayload(w http.ResponseWriter, r *http.Request, status int, p Payload) {
	if p == nil {
		p = Payload{}
	}
	p["success"] = status < http.StatusBadRequest
	p["status"] = status
	if s, err := icontext.GetSecurity(r.Context()); err == nil && s.Debug {
		p["debug"] = map[string]interface{}{
			"credentialChecks": s.CredentialChecks(),
		}
	}
	a.Respond(w, r, status, p)
}

// OK writes an empty success envelope with status 200.
func (a *API) OK(w http.ResponseWriter, r *http.Request) {
	a.RespondPayload(w, r, http.StatusOK, nil)
}

// Err writes the error envelope of err. Internal errors are logged with their full chain.
func (a *API) Err(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	if errors.ErrorCode(err) == errors.EInternal {
		a.logger.Error("internal error encountered",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("op", errors.ErrorOp(err)),
			zap.Error(err),
		)
	} else {
		a.logger.Debug("api error encountered", zap.Error(err))
	}
	a.errHandler.HandleHTTPError(r.Context(), err, w)
}
