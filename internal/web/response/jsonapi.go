// Package response renders records as JSON:API documents. Serialization is
// schema-driven: attributes and relationship linkage come from the registered
// resource metadata, not from struct tags.
package response

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/weft-api/weft/internal/resource"
)

// MediaType is the official JSON:API media type
const MediaType = "application/vnd.api+json"

// IsJSONAPI checks if the request accepts JSON:API format
func IsJSONAPI(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(accept)
	if err != nil {
		return strings.Contains(accept, MediaType)
	}
	return mediaType == MediaType
}

// Document is a top-level JSON:API document
type Document struct {
	Data     any            `json:"data"`
	Included []*Object      `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Links    *Links         `json:"links,omitempty"`
}

// Object is one resource object in a document
type Object struct {
	Type          string                `json:"type"`
	ID            string                `json:"id"`
	Attributes    map[string]any        `json:"attributes,omitempty"`
	Relationships map[string]*RelObject `json:"relationships,omitempty"`
}

// RelObject is the linkage entry for one relationship. Data holds either an
// *Identifier, a []*Identifier or nil.
type RelObject struct {
	Data any `json:"data"`
}

// Identifier identifies a resource by type and id
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Links holds the standard document links
type Links struct {
	Self  string `json:"self,omitempty"`
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// Serializer converts records to JSON:API documents using schema metadata
type Serializer struct {
	registry *resource.Registry
}

// NewSerializer creates a serializer over the given registry
func NewSerializer(registry *resource.Registry) *Serializer {
	return &Serializer{registry: registry}
}

// Single builds a document for one record, or a null-data document for nil
func (s *Serializer) Single(resourceType string, record resource.Record) (*Document, error) {
	if record == nil {
		return &Document{Data: nil}, nil
	}

	included := newIncludedSet()
	obj, err := s.object(resourceType, record, included)
	if err != nil {
		return nil, err
	}
	return &Document{Data: obj, Included: included.objects()}, nil
}

// Collection builds a document for a homogeneous record set
func (s *Serializer) Collection(resourceType string, records []resource.Record) (*Document, error) {
	included := newIncludedSet()
	objects := make([]*Object, 0, len(records))
	for _, rec := range records {
		obj, err := s.object(resourceType, rec, included)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return &Document{Data: objects, Included: included.objects()}, nil
}

// Linkage builds a relationship-endpoint document: identifiers only
func (s *Serializer) Linkage(resourceType, relationship string, record resource.Record) (*Document, error) {
	schema, ok := s.registry.Get(resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", resource.ErrUnknownResource, resourceType)
	}
	rel, ok := schema.Relationships[relationship]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", resource.ErrUnknownRelationship, resourceType, relationship)
	}

	value, present := record[rel.Name]
	if !present || value == nil {
		if rel.Type.ToMany() {
			return &Document{Data: []*Identifier{}}, nil
		}
		return &Document{Data: nil}, nil
	}
	if rel.Type.ToMany() {
		ids := make([]*Identifier, 0)
		for _, right := range asRecords(value) {
			ids = append(ids, &Identifier{Type: s.publicType(rel.RightType), ID: resource.RecordID(right)})
		}
		return &Document{Data: ids}, nil
	}
	rights := asRecords(value)
	if len(rights) == 0 {
		return &Document{Data: nil}, nil
	}
	return &Document{Data: &Identifier{Type: s.publicType(rel.RightType), ID: resource.RecordID(rights[0])}}, nil
}

// publicType is the wire name of a resource type, its table name
func (s *Serializer) publicType(resourceType string) string {
	if schema, ok := s.registry.Get(resourceType); ok {
		return schema.TableName
	}
	return resourceType
}

// object converts one record, collecting nested records into the included set
func (s *Serializer) object(resourceType string, record resource.Record, included *includedSet) (*Object, error) {
	schema, ok := s.registry.Get(resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", resource.ErrUnknownResource, resourceType)
	}

	obj := &Object{
		Type: schema.TableName,
		ID:   resource.RecordID(record),
	}

	for name := range schema.Fields {
		if name == resource.IDField {
			continue
		}
		if value, present := record[name]; present {
			if obj.Attributes == nil {
				obj.Attributes = make(map[string]any)
			}
			obj.Attributes[name] = value
		}
	}

	for name, rel := range schema.Relationships {
		value, present := record[name]
		if !present {
			// not loaded, omit rather than claim it is empty
			continue
		}
		if obj.Relationships == nil {
			obj.Relationships = make(map[string]*RelObject)
		}
		if value == nil {
			obj.Relationships[name] = &RelObject{Data: nil}
			continue
		}

		rights := asRecords(value)
		if rel.Type.ToMany() {
			ids := make([]*Identifier, 0, len(rights))
			for _, right := range rights {
				ids = append(ids, &Identifier{Type: s.publicType(rel.RightType), ID: resource.RecordID(right)})
				if err := s.include(rel.RightType, right, included); err != nil {
					return nil, err
				}
			}
			obj.Relationships[name] = &RelObject{Data: ids}
			continue
		}

		if len(rights) == 0 {
			obj.Relationships[name] = &RelObject{Data: nil}
			continue
		}
		right := rights[0]
		obj.Relationships[name] = &RelObject{Data: &Identifier{Type: s.publicType(rel.RightType), ID: resource.RecordID(right)}}
		if err := s.include(rel.RightType, right, included); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

// include adds a related record to the included set, recursing into its own
// loaded relationships. Records already present are skipped, which also
// terminates on cyclic graphs.
func (s *Serializer) include(resourceType string, record resource.Record, included *includedSet) error {
	identity := resource.IdentityOf(resourceType, record)
	if included.contains(identity) {
		return nil
	}
	included.reserve(identity)

	obj, err := s.object(resourceType, record, included)
	if err != nil {
		return err
	}
	included.set(identity, obj)
	return nil
}

// asRecords widens a relationship value to a record slice
func asRecords(value any) []resource.Record {
	switch v := value.(type) {
	case resource.Record:
		return []resource.Record{v}
	case []resource.Record:
		return v
	case []any:
		records := make([]resource.Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records
	default:
		return nil
	}
}

// includedSet deduplicates included objects by identity, preserving insertion
// order.
type includedSet struct {
	byIdentity map[resource.Identity]*Object
	order      []resource.Identity
}

func newIncludedSet() *includedSet {
	return &includedSet{byIdentity: make(map[resource.Identity]*Object)}
}

func (s *includedSet) contains(id resource.Identity) bool {
	_, ok := s.byIdentity[id]
	return ok
}

// reserve marks an identity as in-progress before its object is built
func (s *includedSet) reserve(id resource.Identity) {
	s.byIdentity[id] = nil
	s.order = append(s.order, id)
}

func (s *includedSet) set(id resource.Identity, obj *Object) {
	s.byIdentity[id] = obj
}

func (s *includedSet) objects() []*Object {
	var objects []*Object
	for _, id := range s.order {
		if obj := s.byIdentity[id]; obj != nil {
			objects = append(objects, obj)
		}
	}
	return objects
}

// Fieldsets maps a wire type to the attribute names the client requested
// via fields[type] parameters.
type Fieldsets map[string][]string

// ParseFieldsets extracts fields[type]=a,b,c query parameters
func ParseFieldsets(query url.Values) Fieldsets {
	fieldsets := make(Fieldsets)
	for key, values := range query {
		if !strings.HasPrefix(key, "fields[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		wireType := key[len("fields[") : len(key)-1]
		if wireType == "" {
			continue
		}
		var fields []string
		for _, part := range strings.Split(values[0], ",") {
			if part = strings.TrimSpace(part); part != "" {
				fields = append(fields, part)
			}
		}
		fieldsets[wireType] = fields
	}
	return fieldsets
}

// Apply prunes attributes the client did not request, on primary data and
// included objects alike. Types without an entry keep all attributes.
func (f Fieldsets) Apply(doc *Document) {
	if len(f) == 0 || doc == nil {
		return
	}
	switch data := doc.Data.(type) {
	case *Object:
		f.applyObject(data)
	case []*Object:
		for _, obj := range data {
			f.applyObject(obj)
		}
	}
	for _, obj := range doc.Included {
		f.applyObject(obj)
	}
}

func (f Fieldsets) applyObject(obj *Object) {
	if obj == nil {
		return
	}
	fields, ok := f[obj.Type]
	if !ok {
		return
	}
	kept := make(map[string]any, len(fields))
	for _, name := range fields {
		if value, present := obj.Attributes[name]; present {
			kept[name] = value
		}
	}
	if len(kept) == 0 {
		obj.Attributes = nil
		return
	}
	obj.Attributes = kept
}

// Render marshals the document before touching the response so a marshal
// failure never causes a partial write.
func Render(w http.ResponseWriter, status int, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// BuildPaginationLinks creates pagination links for collection documents
func BuildPaginationLinks(baseURL string, page, perPage, total int) *Links {
	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}

	links := &Links{
		Self:  buildPageURL(baseURL, page, perPage),
		First: buildPageURL(baseURL, 1, perPage),
		Last:  buildPageURL(baseURL, totalPages, perPage),
	}
	if page > 1 {
		links.Prev = buildPageURL(baseURL, page-1, perPage)
	}
	if page < totalPages {
		links.Next = buildPageURL(baseURL, page+1, perPage)
	}
	return links
}

func buildPageURL(baseURL string, page, perPage int) string {
	offset := (page - 1) * perPage

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Sprintf("%s?page[limit]=%d&page[offset]=%d", baseURL, perPage, offset)
	}
	q := u.Query()
	q.Set("page[limit]", strconv.Itoa(perPage))
	q.Set("page[offset]", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String()
}
