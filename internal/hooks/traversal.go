package hooks

import (
	"github.com/weft-api/weft/internal/resource"
)

// traversal owns the state of one breadth-first pass: the metadata to
// resolve relationship proxies and the set of already-visited identities.
// The visited set guarantees termination on cyclic object graphs: an entity
// reached a second time via another path does not expand a further layer.
type traversal struct {
	registry *resource.Registry
	visited  map[resource.Identity]resource.Record
}

func newTraversal(registry *resource.Registry) *traversal {
	return &traversal{
		registry: registry,
		visited:  make(map[resource.Identity]resource.Record),
	}
}

// reconcile substitutes an already-tracked instance for a freshly loaded
// record with the same identity, so the same logical entity never coexists
// as two instances within one pass.
func (t *traversal) reconcile(resourceType string, rec resource.Record) resource.Record {
	if known, ok := t.visited[resource.IdentityOf(resourceType, rec)]; ok {
		return known
	}
	return rec
}

// rootNode builds the layer-0 node from the homogeneous root entity set:
// entities deduplicated by id, with the type's declared outgoing proxies.
func (t *traversal) rootNode(resourceType string, records []resource.Record) *Node {
	node := newNode(resourceType, t.registry.Proxies(resourceType), nil)
	for _, rec := range records {
		node.add(rec)
		t.visited[resource.IdentityOf(resourceType, rec)] = rec
	}
	return node
}

// rootLayer wraps the root node in a single-node layer
func (t *traversal) rootLayer(node *Node) *Layer {
	return &Layer{nodes: []*Node{node}}
}

// nextLayer dereferences every declared relationship proxy on every unique
// entity of the current layer and groups the newly reached entities by their
// resource type, one child node per type. Each child node records exactly
// which (left entity, proxy) pairs produced which right entities.
func (t *traversal) nextLayer(layer *Layer) *Layer {
	type pending struct {
		node  *Node
		edges []Edge
	}
	var order []string
	byType := make(map[string]*pending)

	for _, node := range layer.nodes {
		for _, proxy := range node.ProxiesToNextLayer() {
			rightType := proxy.RightType()

			for _, left := range node.UniqueRecords() {
				value := proxy.GetValue(left)
				if value.IsZero() {
					continue
				}

				var fresh []resource.Record
				for _, right := range value.Many() {
					identity := resource.IdentityOf(rightType, right)
					if _, ok := t.visited[identity]; ok {
						continue
					}
					t.visited[identity] = right
					fresh = append(fresh, right)
				}
				if len(fresh) == 0 {
					continue
				}

				p, ok := byType[rightType]
				if !ok {
					p = &pending{}
					byType[rightType] = p
					order = append(order, rightType)
				}
				p.edges = append(p.edges, Edge{Proxy: proxy, Left: left, Right: fresh})
			}
		}
	}

	next := &Layer{}
	for _, rightType := range order {
		p := byType[rightType]
		node := newNode(rightType, t.registry.Proxies(rightType), &EdgeSet{edges: p.edges})
		for _, e := range p.edges {
			for _, rec := range e.Right {
				node.add(rec)
			}
		}
		next.nodes = append(next.nodes, node)
	}
	return next
}
