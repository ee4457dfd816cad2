package tenantdb

import (
	"context"
	"encoding/json"
)

// TypeOptions configure the namespace of a new type.
type TypeOptions struct {
	Shards   int `json:"shards"`
	Replicas int `json:"replicas"`
}

// DefaultTypeOptions are used when no shard or replica count is supplied.
func DefaultTypeOptions() TypeOptions {
	return TypeOptions{Shards: 1, Replicas: 0}
}

// IndexRequest writes one object source.
type IndexRequest struct {
	TenantID string
	Type     string
	ID       string
	Source   json.RawMessage
	// Version is the expected stored version. Zero matches any version.
	Version int64
	// Create fails the write if an object with the same id exists.
	Create bool
}

// RawDocument is an object as stored by the engine.
type RawDocument struct {
	TenantID string          `json:"-"`
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Version  int64           `json:"version"`
	Source   json.RawMessage `json:"source"`
}

// SearchQuery selects objects of a tenant.
type SearchQuery struct {
	Types []string
	// Text matches objects holding a string field containing it, case insensitively.
	Text string
	From int
	Size int
}

// SearchResult holds one page of matching objects.
type SearchResult struct {
	Total int
	Hits  []*RawDocument
}

// Engine is the document store every tenant type lives in. Mappings are JSON
// objects in the engine's native format.
type Engine interface {
	CreateType(ctx context.Context, tenantID, typ string, mapping json.RawMessage, opts TypeOptions) error
	UpdateMapping(ctx context.Context, tenantID, typ string, mapping json.RawMessage) error
	// GetMapping returns a not found error for unknown types.
	GetMapping(ctx context.Context, tenantID, typ string) (json.RawMessage, error)
	ListTypes(ctx context.Context, tenantID string) ([]string, error)
	// DeleteType removes a type and its objects. It reports whether the type existed.
	DeleteType(ctx context.Context, tenantID, typ string) (bool, error)
	DeleteTenant(ctx context.Context, tenantID string) error

	// Index writes an object and returns its new version.
	Index(ctx context.Context, req IndexRequest) (int64, error)
	Get(ctx context.Context, tenantID, typ, id string) (*RawDocument, error)
	// Delete reports whether the object existed.
	Delete(ctx context.Context, tenantID, typ, id string) (bool, error)
	Search(ctx context.Context, tenantID string, q SearchQuery) (*SearchResult, error)
}
