package resource

import (
	"fmt"
	"sync"
)

// Registry manages all resource schemas in the application. It is the
// metadata provider for the hook engine: given a resource type it supplies
// the declared relationship proxies and resolves their inverses.
type Registry struct {
	schemas map[string]*Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
	}
}

// Register registers a resource schema
func (r *Registry) Register(schema *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, schema.Name)
	}
	r.schemas[schema.Name] = schema
	return nil
}

// MustRegister registers schemas and panics on duplicates. Intended for
// application wiring at startup.
func (r *Registry) MustRegister(schemas ...*Schema) {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a schema by resource name
func (r *Registry) Get(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// All returns a copy of all registered schemas
func (r *Registry) All() map[string]*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Schema, len(r.schemas))
	for k, v := range r.schemas {
		result[k] = v
	}
	return result
}

// List returns all registered resource names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}

// Proxies returns relationship proxies for every relationship declared on
// the given resource type. Unknown types yield an empty slice: a resource
// without metadata simply has no navigable edges.
func (r *Registry) Proxies(resourceType string) []*Proxy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[resourceType]
	if !ok {
		return nil
	}
	proxies := make([]*Proxy, 0, len(schema.Relationships))
	for _, rel := range schema.Relationships {
		proxies = append(proxies, &Proxy{rel: rel, registry: r})
	}
	return proxies
}

// Proxy returns the proxy for one named relationship
func (r *Registry) Proxy(resourceType, relationship string) (*Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, resourceType)
	}
	rel, ok := schema.Relationships[relationship]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, resourceType, relationship)
	}
	return &Proxy{rel: rel, registry: r}, nil
}

// Inverse resolves the relationship on rel's right type that points back at
// rel's left type. Returns false when no inverse is declared or the inverse
// name does not resolve.
func (r *Registry) Inverse(rel *Relationship) (*Relationship, bool) {
	if rel.Inverse == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	right, ok := r.schemas[rel.RightType]
	if !ok {
		return nil, false
	}
	inv, ok := right.Relationships[rel.Inverse]
	return inv, ok
}

// RelationshipsInto returns every declared relationship, on any registered
// type, whose right side is the given resource type. Used to find edges
// pointing into a set of entities (e.g. when they are being deleted).
func (r *Registry) RelationshipsInto(resourceType string) []*Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Relationship
	for _, schema := range r.schemas {
		for _, rel := range schema.Relationships {
			if rel.RightType == resourceType {
				result = append(result, rel)
			}
		}
	}
	return result
}

// Validate checks that every relationship references a registered target
// and that declared inverses resolve. Called once at startup.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, schema := range r.schemas {
		for _, rel := range schema.Relationships {
			target, ok := r.schemas[rel.RightType]
			if !ok {
				return fmt.Errorf("resource %s: relationship %s references unregistered resource %s",
					schema.Name, rel.Name, rel.RightType)
			}
			if rel.Inverse != "" {
				if _, ok := target.Relationships[rel.Inverse]; !ok {
					return fmt.Errorf("resource %s: relationship %s declares inverse %s.%s which does not exist",
						schema.Name, rel.Name, rel.RightType, rel.Inverse)
				}
			}
			if rel.Type == HasManyThrough {
				if _, ok := r.schemas[rel.Through]; !ok {
					return fmt.Errorf("resource %s: relationship %s goes through unregistered resource %s",
						schema.Name, rel.Name, rel.Through)
				}
			}
		}
	}
	return nil
}
