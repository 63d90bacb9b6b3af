// Package resource defines Weft's resource metadata model: schemas, fields,
// relationships, and the registry the rest of the framework resolves them
// through. Records are represented as plain maps; identity is always the
// (resource type, id) pair, never map reference identity.
package resource

import (
	"fmt"
)

// Record is the runtime representation of a resource instance. Related
// records are nested under their relationship name as a Record (to-one) or
// []Record (to-many).
type Record = map[string]any

// IDField is the conventional primary key field on every record.
const IDField = "id"

// RelationType represents the kind of relationship between two resources
type RelationType int

const (
	HasOne RelationType = iota
	HasMany
	HasManyThrough
	BelongsTo
)

// String returns the string representation of the relation type
func (r RelationType) String() string {
	switch r {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case HasManyThrough:
		return "has_many_through"
	case BelongsTo:
		return "belongs_to"
	default:
		return "unknown"
	}
}

// ToMany reports whether the relationship holds a collection value
func (r RelationType) ToMany() bool {
	return r == HasMany || r == HasManyThrough
}

// Relationship declares a navigable edge from one resource type to another.
// Inverse names the relationship on the right type that points back; it may
// be empty, in which case propagation along that direction is not possible.
type Relationship struct {
	Name      string
	Type      RelationType
	LeftType  string
	RightType string

	// ForeignKey is the column holding the reference. For belongs_to it
	// lives on the left table, for has_one/has_many on the right table.
	ForeignKey string

	// Through is the join resource for has_many_through.
	Through string

	Inverse  string
	Nullable bool
}

// String returns a readable description of the edge
func (r *Relationship) String() string {
	return fmt.Sprintf("%s.%s (%s %s)", r.LeftType, r.Name, r.Type, r.RightType)
}

// FieldType represents the primitive type of a schema field
type FieldType int

const (
	FieldString FieldType = iota
	FieldText
	FieldInt
	FieldFloat
	FieldBool
	FieldTimestamp
	FieldUUID
	FieldJSON
)

// String returns the string representation of the field type
func (f FieldType) String() string {
	switch f {
	case FieldString:
		return "string"
	case FieldText:
		return "text"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldTimestamp:
		return "timestamp"
	case FieldUUID:
		return "uuid"
	case FieldJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Field represents a persisted attribute of a resource
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	Primary  bool
	Unique   bool
}

// Schema is the complete metadata for one resource type
type Schema struct {
	Name          string
	TableName     string
	Fields        map[string]*Field
	Relationships map[string]*Relationship
}

// NewSchema creates an empty schema with the conventional uuid primary key
func NewSchema(name string) *Schema {
	return &Schema{
		Name:      name,
		TableName: toSnakeCase(name),
		Fields: map[string]*Field{
			IDField: {Name: IDField, Type: FieldUUID, Primary: true},
		},
		Relationships: make(map[string]*Relationship),
	}
}

// AddField registers a field and returns the schema for chaining
func (s *Schema) AddField(name string, typ FieldType, nullable bool) *Schema {
	s.Fields[name] = &Field{Name: name, Type: typ, Nullable: nullable}
	return s
}

// AddRelationship registers a relationship and returns the schema for chaining.
// The left type is always the schema itself.
func (s *Schema) AddRelationship(rel *Relationship) *Schema {
	rel.LeftType = s.Name
	s.Relationships[rel.Name] = rel
	return s
}

// HasField returns true if the schema declares the given field
func (s *Schema) HasField(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// HasRelationship returns true if the schema declares the given relationship
func (s *Schema) HasRelationship(name string) bool {
	_, ok := s.Relationships[name]
	return ok
}

// PrimaryKey returns the primary key field
func (s *Schema) PrimaryKey() (*Field, error) {
	for _, f := range s.Fields {
		if f.Primary {
			return f, nil
		}
	}
	return nil, fmt.Errorf("resource %s has no primary key", s.Name)
}

// Columns returns the persisted column names in no particular order.
// Relationship fields are not columns.
func (s *Schema) Columns() []string {
	cols := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		cols = append(cols, name)
	}
	return cols
}

// Identity is the logical identity of a record: resource type plus id.
// Two map instances with equal identity are the same entity.
type Identity struct {
	Type string
	ID   string
}

// String returns "Type/id"
func (i Identity) String() string {
	return i.Type + "/" + i.ID
}

// RecordID extracts the id of a record as a string. Records created by the
// framework always carry a string id; anything else is stringified.
func RecordID(rec Record) string {
	switch id := rec[IDField].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}

// IdentityOf builds the identity of a record for the given resource type
func IdentityOf(resourceType string, rec Record) Identity {
	return Identity{Type: resourceType, ID: RecordID(rec)}
}

// toSnakeCase converts a resource name to its table name
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
