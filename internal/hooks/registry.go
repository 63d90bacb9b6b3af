package hooks

import (
	"sync"
)

// Registry resolves user-supplied hook containers per resource type. The
// executor consults it on every (type, kind) pair; a nil result is the fast
// path that skips all traversal work for that hook.
type Registry struct {
	containers map[string]*Container
	mu         sync.RWMutex
}

// NewRegistry creates an empty hook container registry
func NewRegistry() *Registry {
	return &Registry{
		containers: make(map[string]*Container),
	}
}

// Register installs the hook container for a resource type, replacing any
// previous registration.
func (r *Registry) Register(resourceType string, container *Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[resourceType] = container
}

// Container returns the container for the resource type if it implements the
// given hook kind, nil otherwise. Absence is not an error: it means no
// customization.
func (r *Registry) Container(resourceType string, kind Kind) *Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.containers[resourceType]
	if !ok || !c.Implements(kind) {
		return nil
	}
	return c
}
