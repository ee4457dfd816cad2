package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tenantdb/tenantdb"
	icontext "github.com/tenantdb/tenantdb/context"
)

const (
	// APIPrefix is the path prefix of every versioned route.
	APIPrefix = "/1"

	defaultPageSize = 10
	maxPageSize     = 1000
)

// paging holds the from and size query parameters.
type paging struct {
	From int
	Size int
}

func decodePaging(r *http.Request) (paging, error) {
	q := r.URL.Query()
	p := paging{Size: defaultPageSize}
	if v := q.Get("from"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			return p, tenantdb.ErrIllegalArgument("invalid from parameter [%s]", v)
		}
		p.From = n
	}
	if v := q.Get("size"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 || n > maxPageSize {
			return p, tenantdb.ErrIllegalArgument("size parameter must be between 0 and %d", maxPageSize)
		}
		p.Size = n
	}
	return p, nil
}

func decodeTime(r *http.Request, param string) (time.Time, error) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, tenantdb.ErrIllegalArgument("%s parameter must be an RFC3339 timestamp", param)
	}
	return t, nil
}

// credential returns the credential the authentication gate resolved.
func credential(r *http.Request) (*tenantdb.Credential, error) {
	return icontext.GetCredential(r.Context())
}

// location returns the absolute URL of an API path on the host of r.
func location(r *http.Request, parts ...string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + APIPrefix + "/" + strings.Join(parts, "/")
}
