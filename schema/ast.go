// Package schema parses tenant type declarations, compiles them into engine
// mappings carrying their access control list and provisions them.
package schema

import (
	"encoding/json"

	"github.com/tenantdb/tenantdb"
)

// Kind is the kind of a declared property.
type Kind string

// Property kinds.
const (
	KindString    Kind = "string"
	KindText      Kind = "text"
	KindBoolean   Kind = "boolean"
	KindInteger   Kind = "integer"
	KindLong      Kind = "long"
	KindFloat     Kind = "float"
	KindDouble    Kind = "double"
	KindDate      Kind = "date"
	KindTime      Kind = "time"
	KindTimestamp Kind = "timestamp"
	KindEnum      Kind = "enum"
	KindGeoPoint  Kind = "geopoint"
	KindObject    Kind = "object"
	KindReference Kind = "reference"
	KindStash     Kind = "stash"
)

// Property is a node of a declaration tree. It is one of *Scalar, *Text,
// *Enum, *Object or *Stash.
type Property interface {
	Kind() Kind
	IsRequired() bool
}

// Scalar is a property of a kind without kind specific directives.
type Scalar struct {
	kind     Kind
	Required bool
	Array    bool
}

func (p *Scalar) Kind() Kind       { return p.kind }
func (p *Scalar) IsRequired() bool { return p.Required }

// Text is a full text searchable string.
type Text struct {
	Required bool
	Array    bool
	// Language selects the analyzer, english when empty.
	Language string
}

func (p *Text) Kind() Kind       { return KindText }
func (p *Text) IsRequired() bool { return p.Required }

// Enum is a string restricted to Values when they are declared.
type Enum struct {
	Required bool
	Array    bool
	Values   []string
}

func (p *Enum) Kind() Kind       { return KindEnum }
func (p *Enum) IsRequired() bool { return p.Required }

// Object holds nested properties.
type Object struct {
	Required   bool
	Array      bool
	Properties map[string]Property
}

func (p *Object) Kind() Kind       { return KindObject }
func (p *Object) IsRequired() bool { return p.Required }

// Stash is an opaque object that is stored but never indexed.
type Stash struct {
	Required bool
}

func (p *Stash) Kind() Kind       { return KindStash }
func (p *Stash) IsRequired() bool { return p.Required }

// Schema is a validated type declaration.
type Schema struct {
	Type string
	// IDProperty names the string property used as object id, if any.
	IDProperty string
	// ACL is the declared access control list or the default one.
	ACL  tenantdb.ACL
	Root *Object
	// Declaration is the normalized {"<type>": {...}} form of the declaration.
	Declaration json.RawMessage
}
