package tenantdb

import (
	"context"
	"encoding/json"
	"time"
)

// MetaField is the name of the server owned block of every object.
const MetaField = "meta"

// Meta is stamped on every object by the document service.
type Meta struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type,omitempty"`
	Version   int64     `json:"version,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is an object of a tenant type. Fields holds the source without its meta block.
type Document struct {
	Meta   Meta
	Fields map[string]json.RawMessage
}

// MarshalJSON encodes the fields with the meta block.
func (d *Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(d.Fields)+1)
	for k, v := range d.Fields {
		m[k] = v
	}
	m[MetaField] = d.Meta
	return json.Marshal(m)
}

// DocumentSaved is returned by write operations.
type DocumentSaved struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version int64  `json:"version"`
	Created bool   `json:"-"`
}

// DocumentUpdate replaces or merges the source of an object.
type DocumentUpdate struct {
	Source json.RawMessage
	// Patch merges Source into the stored source instead of replacing it.
	Patch bool
	// Version is the expected stored version. Zero skips the check.
	Version int64
}

// DocumentPage holds the result of a document search.
type DocumentPage struct {
	Total   int         `json:"total"`
	Results []*Document `json:"results"`
}

// DocumentService stores tenant objects and stamps their meta block.
type DocumentService interface {
	CreateDocument(ctx context.Context, tenantID, typ, id string, source json.RawMessage, author string) (*DocumentSaved, error)
	UpdateDocument(ctx context.Context, tenantID, typ, id string, upd DocumentUpdate, author string) (*DocumentSaved, error)
	FindDocument(ctx context.Context, tenantID, typ, id string) (*Document, error)
	DeleteDocument(ctx context.Context, tenantID, typ, id string) error
	SearchDocuments(ctx context.Context, tenantID string, q SearchQuery) (*DocumentPage, error)
}
