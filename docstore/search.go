package docstore

import (
	"context"
	"strings"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kv"
)

// DefaultSearchSize is the page size used when a query does not set one.
const DefaultSearchSize = 10

// Search returns one page of the objects of q.Types, or of every type of the
// tenant when q.Types is empty, ordered by type and id.
func (e *Engine) Search(ctx context.Context, tenantID string, q tenantdb.SearchQuery) (*tenantdb.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.From < 0 {
		return nil, tenantdb.ErrIllegalArgument("from must be positive")
	}
	size := q.Size
	if size <= 0 {
		size = DefaultSearchSize
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))

	res := &tenantdb.SearchResult{Hits: []*tenantdb.RawDocument{}}
	err := e.kvStore.View(ctx, func(tx kv.Tx) error {
		types := q.Types
		if len(types) == 0 {
			b, err := tx.Bucket(mappingBucket)
			if err != nil {
				return err
			}
			p := prefix(tenantID)
			err = kv.WalkPrefix(b, p, func(k, _ []byte) error {
				types = append(types, string(k[len(p):]))
				return nil
			})
			if err != nil {
				return err
			}
		}

		docs, err := tx.Bucket(documentBucket)
		if err != nil {
			return err
		}
		for _, typ := range types {
			if _, err := getType(tx, tenantID, typ); err != nil {
				return err
			}
			p := prefix(tenantID, typ)
			err := kv.WalkPrefix(docs, p, func(k, v []byte) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				doc, err := decodeDocument(tenantID, typ, string(k[len(p):]), v)
				if err != nil {
					return err
				}
				if text != "" && !containsText(doc.Source, text) {
					return nil
				}
				res.Total++
				if res.Total > q.From && len(res.Hits) < size {
					res.Hits = append(res.Hits, doc)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// containsText reports whether a string leaf of source contains text.
func containsText(source []byte, text string) bool {
	v, err := decodeJSON(source)
	if err != nil {
		return false
	}
	return walkStrings(v, func(s string) bool {
		return strings.Contains(strings.ToLower(s), text)
	})
}

func walkStrings(v interface{}, fn func(string) bool) bool {
	switch t := v.(type) {
	case string:
		return fn(t)
	case map[string]interface{}:
		for _, e := range t {
			if walkStrings(e, fn) {
				return true
			}
		}
	case []interface{}:
		for _, e := range t {
			if walkStrings(e, fn) {
				return true
			}
		}
	}
	return false
}
