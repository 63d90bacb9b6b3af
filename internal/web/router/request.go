package router

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/weft-api/weft/internal/resource"
)

// requestDocument is the body of a POST or PATCH request
type requestDocument struct {
	Data *requestObject `json:"data"`
}

type requestObject struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]any                 `json:"attributes"`
	Relationships map[string]requestRelationship `json:"relationships"`
}

type requestRelationship struct {
	Data json.RawMessage `json:"data"`
}

// decodeRecord parses a JSON:API request body into a record for the given
// resource type. Attribute names must be declared schema fields; relationship
// linkage becomes nested identifier records under the relationship name, and
// a to-one relationship whose foreign key lives on this type also sets that
// column so the write persists the link.
func decodeRecord(registry *resource.Registry, resourceType string, body io.Reader) (resource.Record, error) {
	schema, ok := registry.Get(resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", resource.ErrUnknownResource, resourceType)
	}

	var doc requestDocument
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("request body has no data member")
	}
	if doc.Data.Type != "" && doc.Data.Type != schema.TableName {
		return nil, fmt.Errorf("request type %q does not match endpoint type %q", doc.Data.Type, schema.TableName)
	}

	record := make(resource.Record, len(doc.Data.Attributes)+len(doc.Data.Relationships)+1)
	if doc.Data.ID != "" {
		record[resource.IDField] = doc.Data.ID
	}

	for name, value := range doc.Data.Attributes {
		if !schema.HasField(name) {
			return nil, fmt.Errorf("unknown attribute %q for type %q", name, schema.TableName)
		}
		record[name] = value
	}

	for name, linkage := range doc.Data.Relationships {
		rel, ok := schema.Relationships[name]
		if !ok {
			return nil, fmt.Errorf("unknown relationship %q for type %q", name, schema.TableName)
		}
		if err := applyLinkage(record, rel, schema, linkage.Data); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// linkageIdentifier is one {type, id} entry in relationship linkage
type linkageIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// applyLinkage stores relationship linkage on the record. To-one linkage may
// be null, which clears the relationship.
func applyLinkage(record resource.Record, rel *resource.Relationship, schema *resource.Schema, data json.RawMessage) error {
	if rel.Type.ToMany() {
		var ids []linkageIdentifier
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("relationship %q: expected an identifier array: %w", rel.Name, err)
		}
		related := make([]resource.Record, 0, len(ids))
		for _, identifier := range ids {
			if identifier.ID == "" {
				return fmt.Errorf("relationship %q: identifier without an id", rel.Name)
			}
			related = append(related, resource.Record{resource.IDField: identifier.ID})
		}
		record[rel.Name] = related
		return nil
	}

	if string(data) == "null" {
		record[rel.Name] = nil
		if schema.HasField(rel.ForeignKey) {
			record[rel.ForeignKey] = nil
		}
		return nil
	}

	var identifier linkageIdentifier
	if err := json.Unmarshal(data, &identifier); err != nil {
		return fmt.Errorf("relationship %q: expected an identifier object: %w", rel.Name, err)
	}
	if identifier.ID == "" {
		return fmt.Errorf("relationship %q: identifier without an id", rel.Name)
	}
	record[rel.Name] = resource.Record{resource.IDField: identifier.ID}
	if schema.HasField(rel.ForeignKey) {
		record[rel.ForeignKey] = identifier.ID
	}
	return nil
}
