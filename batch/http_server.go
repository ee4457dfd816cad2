package batch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	kithttp "github.com/tenantdb/tenantdb/kit/transport/http"
	"go.uber.org/zap"
)

const (
	prefixBatch = "/1/batch"

	// MaxCalls is the largest number of sub-requests a batch may hold.
	MaxCalls = 10

	stopOnErrorParam = "stopOnError"
	backendPrefix    = "/1/backend"
)

// Handler serves batches by replaying each call through dispatch.
type Handler struct {
	chi.Router
	api      *kithttp.API
	log      *zap.Logger
	dispatch http.Handler
}

// NewHandler returns a batch handler replaying calls through dispatch. The
// dispatch handler must share the security state found on the request context.
func NewHandler(log *zap.Logger, dispatch http.Handler) *Handler {
	h := &Handler{
		api:      kithttp.NewAPI(kithttp.WithLog(log)),
		log:      log,
		dispatch: dispatch,
	}

	r := chi.NewRouter()
	r.Post("/", h.handlePostBatch)
	r.Get("/", h.handleGetBatch)

	h.Router = r
	return h
}

// Prefix is the mount point of the handler.
func (h *Handler) Prefix() string {
	return prefixBatch
}

func stopOnError(r *http.Request) bool {
	return cast.ToBool(r.URL.Query().Get(stopOnErrorParam))
}

func (h *Handler) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	var calls []Call
	if err := h.api.DecodeJSON(r.Body, &calls); err != nil {
		h.api.Err(w, r, err)
		return
	}
	if len(calls) > MaxCalls {
		h.api.Err(w, r, tenantdb.ErrBatchLimitExceeded(MaxCalls))
		return
	}

	stop := stopOnError(r)
	responses := make([]json.RawMessage, 0, len(calls))
	for _, c := range calls {
		res, failed, err := h.execute(r, c)
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		responses = append(responses, res)
		if stop && failed {
			break
		}
	}

	h.api.RespondPayload(w, r, http.StatusOK, kithttp.Payload{
		"responses": responses,
	})
}

// handleGetBatch runs a GET call for every query parameter, in query order,
// and answers under the parameter name.
func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	params, err := queryParams(r.URL.RawQuery)
	if err != nil {
		h.api.Err(w, r, err)
		return
	}
	if len(params) > MaxCalls {
		h.api.Err(w, r, tenantdb.ErrBatchLimitExceeded(MaxCalls))
		return
	}

	stop := stopOnError(r)
	p := kithttp.Payload{}
	for _, qp := range params {
		res, failed, err := h.execute(r, Call{Method: http.MethodGet, Path: qp.path})
		if err != nil {
			h.api.Err(w, r, err)
			return
		}
		p[qp.name] = res
		if stop && failed {
			break
		}
	}

	h.api.RespondPayload(w, r, http.StatusOK, p)
}

type queryParam struct {
	name, path string
}

// queryParams decodes raw keeping the order of appearance. The first value of
// a repeated name wins and the stopOnError flag is left out.
func queryParams(raw string) ([]queryParam, error) {
	var params []queryParam
	seen := make(map[string]bool)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			k, v = pair[:i], pair[i+1:]
		}
		name, err := url.QueryUnescape(k)
		if err != nil {
			return nil, tenantdb.ErrIllegalArgument("invalid batch query parameter %q", k)
		}
		path, err := url.QueryUnescape(v)
		if err != nil {
			return nil, tenantdb.ErrIllegalArgument("invalid batch query value for %q", name)
		}
		if name == stopOnErrorParam || seen[name] {
			continue
		}
		seen[name] = true
		params = append(params, queryParam{name: name, path: path})
	}
	return params, nil
}

// execute replays c and returns its JSON response and whether it failed. The
// returned error fails the whole batch.
func (h *Handler) execute(outer *http.Request, c Call) (json.RawMessage, bool, error) {
	rec := newRecorder()

	if strings.HasPrefix(c.URI(), backendPrefix) {
		h.api.Err(rec, outer, tenantdb.ErrIllegalArgument("%s requests forbidden in batch", backendPrefix))
		return rec.body.Bytes(), true, nil
	}

	sub, err := c.NewRequest(outer)
	if err != nil {
		h.api.Err(rec, outer, err)
		return rec.body.Bytes(), true, nil
	}

	h.dispatch.ServeHTTP(rec, sub)

	status := rec.code()
	failed := status >= http.StatusBadRequest
	body := bytes.TrimSpace(rec.body.Bytes())
	if len(body) == 0 {
		b, err := json.Marshal(map[string]interface{}{
			"success": !failed,
			"status":  status,
		})
		return b, failed, err
	}
	if !json.Valid(body) {
		return nil, failed, tenantdb.ErrIllegalArgument("batch sub request [%s %s] returned a non JSON response", sub.Method, sub.URL.Path)
	}
	return body, failed, nil
}
