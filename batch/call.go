// Package batch replays a list of sub-requests through the API router on
// behalf of one outer request.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi"
	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// APIPrefix is prepended to the path of every call.
const APIPrefix = "/1"

// Call is one sub-request of a batch.
type Call struct {
	Method     string                 `json:"method"`
	Path       string                 `json:"path"`
	Headers    map[string]string      `json:"headers,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Content    json.RawMessage        `json:"content,omitempty"`
}

// URI returns the API path of the call.
func (c Call) URI() string {
	p := c.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p == APIPrefix || strings.HasPrefix(p, APIPrefix+"/") {
		return p
	}
	return APIPrefix + p
}

func (c Call) hasContent() bool {
	content := bytes.TrimSpace(c.Content)
	return len(content) > 0 && !bytes.Equal(content, []byte("null"))
}

// NewRequest builds the request of the call. It inherits the context, headers,
// cookies, host and remote address of outer.
func (c Call) NewRequest(outer *http.Request) (*http.Request, error) {
	method := strings.ToUpper(c.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(c.URI())
	if err != nil {
		return nil, tenantdb.ErrIllegalArgument("invalid batch path [%s]", c.Path)
	}
	q := u.Query()
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := c.Parameters[k].(type) {
		case []interface{}:
			for _, vv := range v {
				q.Add(k, cast.ToString(vv))
			}
		default:
			q.Set(k, cast.ToString(v))
		}
	}
	u.RawQuery = q.Encode()

	var body io.Reader = http.NoBody
	if c.hasContent() {
		body = bytes.NewReader(c.Content)
	}

	// a nil route context makes the router resolve the sub-request from scratch
	ctx := context.WithValue(outer.Context(), chi.RouteCtxKey, nil)
	r, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, tenantdb.ErrIllegalArgument("invalid batch request [%s %s]", c.Method, c.Path)
	}

	r.Header = outer.Header.Clone()
	// sub-responses are read back, never sent
	r.Header.Del("Accept-Encoding")
	r.Header.Del("Content-Length")
	if c.hasContent() {
		r.Header.Set("Content-Type", "application/json")
	} else {
		r.Header.Del("Content-Type")
	}
	for k, v := range c.Headers {
		r.Header.Set(k, v)
	}
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/") {
		return nil, &errors.Error{
			Code: errors.ENotImplemented,
			Msg:  "multipart requests are not supported in batches",
		}
	}

	r.Host = outer.Host
	r.RemoteAddr = outer.RemoteAddr
	r.RequestURI = u.RequestURI()
	return r, nil
}

// recorder captures a sub-response.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
