// Package document stores tenant objects in the engine and owns their meta block.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"go.uber.org/zap"
)

var _ tenantdb.DocumentService = (*Service)(nil)

// Service implements tenantdb.DocumentService over a tenantdb.Engine.
type Service struct {
	engine tenantdb.Engine
	log    *zap.Logger
	clock  clock.Clock
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock stamping meta timestamps.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = c
	}
}

// NewService returns a document service storing objects in engine.
func NewService(log *zap.Logger, engine tenantdb.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		log:    log,
		clock:  clock.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// CreateDocument stores a new object. The id is the one given, else the value of
// the schema id property, else a generated one.
func (s *Service) CreateDocument(ctx context.Context, tenantID, typ, id string, source json.RawMessage, author string) (*tenantdb.DocumentSaved, error) {
	fields, err := decodeFields(source)
	if err != nil {
		return nil, err
	}

	if id, err = s.documentID(ctx, tenantID, typ, id, source); err != nil {
		return nil, err
	}

	now := s.now()
	meta := tenantdb.Meta{
		CreatedBy: author,
		UpdatedBy: author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b, err := encodeFields(fields, meta)
	if err != nil {
		return nil, err
	}

	v, err := s.engine.Index(ctx, tenantdb.IndexRequest{
		TenantID: tenantID,
		Type:     typ,
		ID:       id,
		Source:   b,
		Create:   true,
	})
	if err != nil {
		return nil, err
	}
	return &tenantdb.DocumentSaved{ID: id, Type: typ, Version: v, Created: true}, nil
}

func (s *Service) documentID(ctx context.Context, tenantID, typ, id string, source json.RawMessage) (string, error) {
	mapping, err := s.engine.GetMapping(ctx, tenantID, typ)
	if err != nil {
		return "", err
	}

	path, err := jsonparser.GetString(mapping, "_id", "path")
	if err == jsonparser.KeyPathNotFoundError || path == "" {
		if id == "" {
			return uuid.NewString(), nil
		}
		return id, nil
	}
	if err != nil {
		return "", &errors.Error{Code: errors.EInternal, Msg: "corrupt type mapping", Err: err}
	}

	value, err := jsonparser.GetString(source, path)
	if err != nil || value == "" {
		return "", tenantdb.ErrIllegalArgument("[%s] objects need a string [%s] field as id", typ, path)
	}
	if id != "" && id != value {
		return "", tenantdb.ErrIllegalArgument("id [%s] does not match [%s] field value [%s]", id, path, value)
	}
	return value, nil
}

// UpdateDocument replaces or patches the source of an existing object. The
// creation meta is carried forward and the update meta restamped.
func (s *Service) UpdateDocument(ctx context.Context, tenantID, typ, id string, upd tenantdb.DocumentUpdate, author string) (*tenantdb.DocumentSaved, error) {
	fields, err := decodeFields(upd.Source)
	if err != nil {
		return nil, err
	}

	stored, err := s.engine.Get(ctx, tenantID, typ, id)
	if err != nil {
		return nil, err
	}
	if upd.Version != 0 && upd.Version != stored.Version {
		return nil, tenantdb.ErrVersionConflict(typ, id, upd.Version, stored.Version)
	}

	previous, meta, err := splitMeta(stored.Source)
	if err != nil {
		return nil, err
	}
	if meta.CreatedBy == "" || meta.CreatedAt.IsZero() {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Msg:  "[" + typ + "][" + id + "] object has no creation meta",
		}
	}

	version := upd.Version
	if upd.Patch {
		fields, err = mergeFields(previous, fields)
		if err != nil {
			return nil, err
		}
		// the merge read the stored source; do not lose a concurrent write
		version = stored.Version
	}

	meta.UpdatedBy = author
	meta.UpdatedAt = s.now()
	b, err := encodeFields(fields, meta)
	if err != nil {
		return nil, err
	}

	v, err := s.engine.Index(ctx, tenantdb.IndexRequest{
		TenantID: tenantID,
		Type:     typ,
		ID:       id,
		Source:   b,
		Version:  version,
	})
	if err != nil {
		return nil, err
	}
	return &tenantdb.DocumentSaved{ID: id, Type: typ, Version: v}, nil
}

// FindDocument returns an object with its full meta block.
func (s *Service) FindDocument(ctx context.Context, tenantID, typ, id string) (*tenantdb.Document, error) {
	raw, err := s.engine.Get(ctx, tenantID, typ, id)
	if err != nil {
		return nil, err
	}
	return toDocument(raw)
}

// DeleteDocument removes an object. Unknown objects are not an error.
func (s *Service) DeleteDocument(ctx context.Context, tenantID, typ, id string) error {
	existed, err := s.engine.Delete(ctx, tenantID, typ, id)
	if err != nil {
		return err
	}
	if !existed {
		s.log.Debug("Deleting unknown object", zap.String("tenant", tenantID), zap.String("type", typ), zap.String("id", id))
	}
	return nil
}

// SearchDocuments returns a page of objects matching q.
func (s *Service) SearchDocuments(ctx context.Context, tenantID string, q tenantdb.SearchQuery) (*tenantdb.DocumentPage, error) {
	res, err := s.engine.Search(ctx, tenantID, q)
	if err != nil {
		return nil, err
	}

	page := &tenantdb.DocumentPage{
		Total:   res.Total,
		Results: make([]*tenantdb.Document, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		d, err := toDocument(hit)
		if err != nil {
			return nil, err
		}
		page.Results = append(page.Results, d)
	}
	return page, nil
}

func toDocument(raw *tenantdb.RawDocument) (*tenantdb.Document, error) {
	fields, meta, err := splitMeta(raw.Source)
	if err != nil {
		return nil, err
	}
	meta.ID = raw.ID
	meta.Type = raw.Type
	meta.Version = raw.Version
	return &tenantdb.Document{Meta: meta, Fields: fields}, nil
}

func decodeFields(source json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(source, &fields); err != nil || fields == nil {
		return nil, tenantdb.ErrIllegalArgument("object source must be a JSON object")
	}
	// meta is owned by the server
	delete(fields, tenantdb.MetaField)
	return fields, nil
}

func splitMeta(source json.RawMessage) (map[string]json.RawMessage, tenantdb.Meta, error) {
	var meta tenantdb.Meta
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(source, &fields); err != nil {
		return nil, meta, &errors.Error{Code: errors.EInternal, Msg: "corrupt object source", Err: err}
	}
	if raw, ok := fields[tenantdb.MetaField]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, meta, &errors.Error{Code: errors.EInternal, Msg: "corrupt object meta", Err: err}
		}
		delete(fields, tenantdb.MetaField)
	}
	return fields, meta, nil
}

func encodeFields(fields map[string]json.RawMessage, meta tenantdb.Meta) (json.RawMessage, error) {
	m, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[tenantdb.MetaField] = m
	return json.Marshal(out)
}

// mergeFields merges patch into stored. Objects present on both sides are
// merged recursively, any other patch value replaces the stored one.
func mergeFields(stored, patch map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(stored)+len(patch))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range patch {
		current, ok := out[k]
		if !ok || !isObject(current) || !isObject(v) {
			out[k] = v
			continue
		}

		var c, p map[string]json.RawMessage
		if err := json.Unmarshal(current, &c); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(v, &p); err != nil {
			return nil, err
		}
		merged, err := mergeFields(c, p)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}
