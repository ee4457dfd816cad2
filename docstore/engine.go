// Package docstore implements the document engine every tenant type lives in
// on top of a kv.Store.
package docstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/tenantdb/tenantdb/kv"
	"go.uber.org/zap"
)

var (
	// tenant, type -> typeRecord
	mappingBucket = []byte("mappingsv1")
	// tenant, type, id -> documentRecord
	documentBucket = []byte("documentsv1")
)

const keySeparator = "\x00"

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, keySeparator))
}

func prefix(parts ...string) []byte {
	return []byte(strings.Join(parts, keySeparator) + keySeparator)
}

type typeRecord struct {
	Mapping json.RawMessage      `json:"mapping"`
	Options tenantdb.TypeOptions `json:"options"`
}

type documentRecord struct {
	Version int64           `json:"version"`
	Source  json.RawMessage `json:"source"`
}

var _ tenantdb.Engine = (*Engine)(nil)

// Engine stores typed JSON objects of every tenant. Each type has a strict
// mapping every indexed object is validated against.
type Engine struct {
	kvStore kv.Store
	log     *zap.Logger
}

// NewEngine returns an Engine over kvStore.
func NewEngine(log *zap.Logger, kvStore kv.Store) *Engine {
	return &Engine{
		kvStore: kvStore,
		log:     log,
	}
}

func errTypeNotFound(tenantID, typ string) error {
	return tenantdb.ErrNotFound("type [%s] not found in backend [%s]", typ, tenantID)
}

func errObjectNotFound(typ, id string) error {
	return tenantdb.ErrNotFound("[%s][%s] object not found", typ, id)
}

func getType(tx kv.Tx, tenantID, typ string) (*typeRecord, error) {
	b, err := tx.Bucket(mappingBucket)
	if err != nil {
		return nil, err
	}
	v, err := b.Get(key(tenantID, typ))
	if kv.IsNotFound(err) {
		return nil, errTypeNotFound(tenantID, typ)
	}
	if err != nil {
		return nil, err
	}

	rec := &typeRecord{}
	if err := json.Unmarshal(v, rec); err != nil {
		return nil, tenantdb.ErrInternal(err, "docstore/getType")
	}
	return rec, nil
}

func putType(tx kv.Tx, tenantID, typ string, rec *typeRecord) error {
	b, err := tx.Bucket(mappingBucket)
	if err != nil {
		return err
	}
	v, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(key(tenantID, typ), v)
}

// CreateType creates the namespace of a type. The type must not exist.
func (e *Engine) CreateType(ctx context.Context, tenantID, typ string, mapping json.RawMessage, opts tenantdb.TypeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := parseMapping(mapping)
	if err != nil {
		return err
	}
	if opts.Shards <= 0 {
		opts.Shards = tenantdb.DefaultTypeOptions().Shards
	}

	return e.kvStore.Update(ctx, func(tx kv.Tx) error {
		_, err := getType(tx, tenantID, typ)
		if err == nil {
			return &errors.Error{
				Code: errors.EConflict,
				Msg:  "type [" + typ + "] already exists",
			}
		}
		if errors.ErrorCode(err) != errors.ENotFound {
			return err
		}
		return putType(tx, tenantID, typ, &typeRecord{Mapping: m.raw(), Options: opts})
	})
}

// UpdateMapping merges mapping into the mapping of an existing type. Properties
// are only ever added, changing the type of an existing property is a conflict.
func (e *Engine) UpdateMapping(ctx context.Context, tenantID, typ string, mapping json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := parseMapping(mapping)
	if err != nil {
		return err
	}

	return e.kvStore.Update(ctx, func(tx kv.Tx) error {
		rec, err := getType(tx, tenantID, typ)
		if err != nil {
			return err
		}
		current, err := parseMapping(rec.Mapping)
		if err != nil {
			return err
		}
		merged, err := mergeMappings(current, next)
		if err != nil {
			return err
		}
		rec.Mapping = merged.raw()
		return putType(tx, tenantID, typ, rec)
	})
}

// GetMapping returns the mapping of a type.
func (e *Engine) GetMapping(ctx context.Context, tenantID, typ string) (json.RawMessage, error) {
	var m json.RawMessage
	err := e.kvStore.View(ctx, func(tx kv.Tx) error {
		rec, err := getType(tx, tenantID, typ)
		if err != nil {
			return err
		}
		m = rec.Mapping
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListTypes returns the types of a tenant in name order.
func (e *Engine) ListTypes(ctx context.Context, tenantID string) ([]string, error) {
	types := []string{}
	err := e.kvStore.View(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(mappingBucket)
		if err != nil {
			return err
		}
		p := prefix(tenantID)
		return kv.WalkPrefix(b, p, func(k, _ []byte) error {
			types = append(types, string(k[len(p):]))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return types, nil
}

// DeleteType removes a type and its objects and reports whether it existed.
func (e *Engine) DeleteType(ctx context.Context, tenantID, typ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := e.kvStore.Update(ctx, func(tx kv.Tx) error {
		b, err := tx.Bucket(mappingBucket)
		if err != nil {
			return err
		}
		if _, err := b.Get(key(tenantID, typ)); err == nil {
			existed = true
		} else if !kv.IsNotFound(err) {
			return err
		}
		if err := b.Delete(key(tenantID, typ)); err != nil {
			return err
		}

		docs, err := tx.Bucket(documentBucket)
		if err != nil {
			return err
		}
		n, err := kv.DeletePrefix(docs, prefix(tenantID, typ))
		if err != nil {
			return err
		}
		e.log.Debug("Type deleted",
			zap.String("tenant", tenantID),
			zap.String("type", typ),
			zap.Int("objects", n))
		return nil
	})
	return existed, err
}

// DeleteTenant removes every type and object of a tenant.
func (e *Engine) DeleteTenant(ctx context.Context, tenantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.kvStore.Update(ctx, func(tx kv.Tx) error {
		for _, bucket := range [][]byte{mappingBucket, documentBucket} {
			b, err := tx.Bucket(bucket)
			if err != nil {
				return err
			}
			if _, err := kv.DeletePrefix(b, prefix(tenantID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Index validates and writes an object. The expected version and the create
// flag are checked in the same transaction as the write.
func (e *Engine) Index(ctx context.Context, req tenantdb.IndexRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.ID == "" {
		return 0, tenantdb.ErrIllegalArgument("object id is empty")
	}

	var version int64
	err := e.kvStore.Update(ctx, func(tx kv.Tx) error {
		rec, err := getType(tx, req.TenantID, req.Type)
		if err != nil {
			return err
		}
		m, err := parseMapping(rec.Mapping)
		if err != nil {
			return err
		}
		if err := m.validate(req.Type, req.Source); err != nil {
			return err
		}

		docs, err := tx.Bucket(documentBucket)
		if err != nil {
			return err
		}
		k := key(req.TenantID, req.Type, req.ID)

		var current int64
		v, err := docs.Get(k)
		switch {
		case err == nil:
			doc := &documentRecord{}
			if err := json.Unmarshal(v, doc); err != nil {
				return tenantdb.ErrInternal(err, "docstore/Index")
			}
			current = doc.Version
			if req.Create {
				return &errors.Error{
					Code: errors.EConflict,
					Msg:  "[" + req.Type + "][" + req.ID + "] object already exists",
				}
			}
		case !kv.IsNotFound(err):
			return err
		}

		if req.Version != 0 && req.Version != current {
			return tenantdb.ErrVersionConflict(req.Type, req.ID, req.Version, current)
		}

		version = current + 1
		b, err := json.Marshal(&documentRecord{Version: version, Source: req.Source})
		if err != nil {
			return err
		}
		return docs.Put(k, b)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Get returns a stored object.
func (e *Engine) Get(ctx context.Context, tenantID, typ, id string) (*tenantdb.RawDocument, error) {
	var doc *tenantdb.RawDocument
	err := e.kvStore.View(ctx, func(tx kv.Tx) error {
		if _, err := getType(tx, tenantID, typ); err != nil {
			return err
		}
		docs, err := tx.Bucket(documentBucket)
		if err != nil {
			return err
		}
		v, err := docs.Get(key(tenantID, typ, id))
		if kv.IsNotFound(err) {
			return errObjectNotFound(typ, id)
		}
		if err != nil {
			return err
		}
		doc, err = decodeDocument(tenantID, typ, id, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeDocument(tenantID, typ, id string, v []byte) (*tenantdb.RawDocument, error) {
	rec := &documentRecord{}
	if err := json.Unmarshal(v, rec); err != nil {
		return nil, tenantdb.ErrInternal(err, "docstore/decodeDocument")
	}
	return &tenantdb.RawDocument{
		TenantID: tenantID,
		Type:     typ,
		ID:       id,
		Version:  rec.Version,
		Source:   append(json.RawMessage(nil), rec.Source...),
	}, nil
}

// Delete removes an object and reports whether it existed.
func (e *Engine) Delete(ctx context.Context, tenantID, typ, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := e.kvStore.Update(ctx, func(tx kv.Tx) error {
		if _, err := getType(tx, tenantID, typ); err != nil {
			return err
		}
		docs, err := tx.Bucket(documentBucket)
		if err != nil {
			return err
		}
		k := key(tenantID, typ, id)
		if _, err := docs.Get(k); err == nil {
			existed = true
		} else if !kv.IsNotFound(err) {
			return err
		}
		return docs.Delete(k)
	})
	return existed, err
}
