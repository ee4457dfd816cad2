package schema

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
	"github.com/yudai/gojsondiff"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	_ tenantdb.SchemaService = (*Service)(nil)
	_ tenantdb.ACLService    = (*Service)(nil)
)

// Service provisions declarations in the engine and serves the ACL of every
// type from a read-mostly cache.
type Service struct {
	engine   tenantdb.Engine
	log      *zap.Logger
	defaults tenantdb.TypeOptions

	mu   sync.RWMutex
	acls map[string]tenantdb.ACL
	// gen is bumped by every write; fills started under an older gen are not cached.
	gen   uint64
	group singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultTypeOptions sets the shard and replica counts used when a request gives none.
func WithDefaultTypeOptions(o tenantdb.TypeOptions) ServiceOption {
	return func(s *Service) {
		s.defaults = o
	}
}

// NewService returns a Service over engine.
func NewService(log *zap.Logger, engine tenantdb.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:   engine,
		log:      log,
		defaults: tenantdb.DefaultTypeOptions(),
		acls:     map[string]tenantdb.ACL{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(tenantID, typ string) string {
	return tenantID + "\x00" + typ
}

// ApplySchema validates and compiles a declaration, then creates its type or
// updates the mapping of the existing one. Applying the same declaration twice
// reports no change.
func (s *Service) ApplySchema(ctx context.Context, tenantID, typ string, declaration json.RawMessage, opts tenantdb.TypeOptions) (*tenantdb.SchemaApplied, error) {
	sch, err := Parse(typ, declaration)
	if err != nil {
		return nil, err
	}
	mapping, _, err := Compile(sch)
	if err != nil {
		return nil, err
	}

	res := &tenantdb.SchemaApplied{Type: typ}
	old, err := s.engine.GetMapping(ctx, tenantID, typ)
	switch {
	case errors.ErrorCode(err) == errors.ENotFound:
		if opts.Shards <= 0 {
			opts.Shards = s.defaults.Shards
		}
		if opts.Replicas < 0 {
			opts.Replicas = s.defaults.Replicas
		}
		if err := s.engine.CreateType(ctx, tenantID, typ, mapping, opts); err != nil {
			return nil, err
		}
		res.Created = true
		res.Changed = true
	case err != nil:
		return nil, err
	default:
		if err := s.engine.UpdateMapping(ctx, tenantID, typ, mapping); err != nil {
			return nil, err
		}
		updated, err := s.engine.GetMapping(ctx, tenantID, typ)
		if err != nil {
			return nil, err
		}
		if res.Changed, err = mappingChanged(old, updated); err != nil {
			return nil, err
		}
	}

	s.evict(func(k string) bool { return k == cacheKey(tenantID, typ) })

	s.log.Debug("Schema applied",
		zap.String("tenant", tenantID),
		zap.String("type", typ),
		zap.Bool("created", res.Created),
		zap.Bool("changed", res.Changed))
	return res, nil
}

func mappingChanged(old, updated json.RawMessage) (bool, error) {
	d, err := gojsondiff.New().Compare(old, updated)
	if err != nil {
		return false, tenantdb.ErrInternal(err, "schema/mappingChanged")
	}
	return d.Modified(), nil
}

// FindSchema returns the declaration of typ as it was last applied.
func (s *Service) FindSchema(ctx context.Context, tenantID, typ string) (json.RawMessage, error) {
	mapping, err := s.engine.GetMapping(ctx, tenantID, typ)
	if err != nil {
		return nil, err
	}
	return DeclarationOf(mapping)
}

// FindSchemas returns every declaration of a tenant keyed by type.
func (s *Service) FindSchemas(ctx context.Context, tenantID string) (map[string]json.RawMessage, error) {
	types, err := s.engine.ListTypes(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	schemas := make(map[string]json.RawMessage, len(types))
	for _, typ := range types {
		decl, err := s.FindSchema(ctx, tenantID, typ)
		if err != nil {
			return nil, err
		}
		schemas[typ] = decl
	}
	return schemas, nil
}

// DeleteSchema removes a type and all its objects. Unknown types are not an error.
func (s *Service) DeleteSchema(ctx context.Context, tenantID, typ string) error {
	existed, err := s.engine.DeleteType(ctx, tenantID, typ)
	if err != nil {
		return err
	}

	s.evict(func(k string) bool { return k == cacheKey(tenantID, typ) })

	if existed {
		s.log.Debug("Schema deleted", zap.String("tenant", tenantID), zap.String("type", typ))
	}
	return nil
}

// DeleteTenantSchemas removes every type of a tenant and evicts their ACLs.
func (s *Service) DeleteTenantSchemas(ctx context.Context, tenantID string) error {
	if err := s.engine.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}

	prefix := cacheKey(tenantID, "")
	s.evict(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return nil
}

// evict drops the cached ACLs whose key matches and makes in-flight fills
// discard what they read. Later lookups go back to the engine.
func (s *Service) evict(match func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	for k := range s.acls {
		if match(k) {
			delete(s.acls, k)
		}
	}
}

// FindACL returns the ACL of a type. Concurrent misses for the same type share
// a single engine lookup.
func (s *Service) FindACL(ctx context.Context, tenantID, typ string) (tenantdb.ACL, error) {
	key := cacheKey(tenantID, typ)

	s.mu.RLock()
	acl, ok := s.acls[key]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return acl, nil
	}

	// fills never outlive a write: callers arriving after one start their own
	v, err, _ := s.group.Do(key+"\x00"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		decl, err := s.FindSchema(ctx, tenantID, typ)
		if err != nil {
			return nil, err
		}
		sch, err := Parse(typ, decl)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.gen == gen {
			s.acls[key] = sch.ACL
		}
		s.mu.Unlock()
		return sch.ACL, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(tenantdb.ACL), nil
}

// FindTypes returns the sorted types of a tenant.
func (s *Service) FindTypes(ctx context.Context, tenantID string) ([]string, error) {
	types, err := s.engine.ListTypes(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Strings(types)
	return types, nil
}
