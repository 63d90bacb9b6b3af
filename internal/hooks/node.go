package hooks

import (
	"github.com/weft-api/weft/internal/resource"
)

// Edge records that dereferencing one relationship proxy on one left-side
// record produced the given right-side records. Edges are the bookkeeping
// that lets hook exclusions propagate backward onto the previous layer.
type Edge struct {
	Proxy *resource.Proxy
	Left  resource.Record
	Right []resource.Record
}

// EdgeGroup aggregates the edges of one proxy: all left records that hold
// the relationship and all right records reached through it.
type EdgeGroup struct {
	Proxy *resource.Proxy
	Left  []resource.Record
	Right []resource.Record
}

// EdgeSet is the set of edges that produced a node from the previous layer
type EdgeSet struct {
	edges []Edge
}

// Edges returns the raw edges
func (s *EdgeSet) Edges() []Edge {
	return s.edges
}

// Groups aggregates edges per proxy, preserving first-seen order
func (s *EdgeSet) Groups() []EdgeGroup {
	var order []*resource.Proxy
	byProxy := make(map[*resource.Proxy]*EdgeGroup)

	for _, e := range s.edges {
		g, ok := byProxy[e.Proxy]
		if !ok {
			g = &EdgeGroup{Proxy: e.Proxy}
			byProxy[e.Proxy] = g
			order = append(order, e.Proxy)
		}
		g.Left = append(g.Left, e.Left)
		g.Right = append(g.Right, e.Right...)
	}

	groups := make([]EdgeGroup, 0, len(order))
	for _, p := range order {
		groups = append(groups, *byProxy[p])
	}
	return groups
}

// Node holds one layer's deduplicated entities of a single resource type,
// plus the edges from the previous layer that produced them and the declared
// relationships leading to the next layer. Nodes live for exactly one
// execution pass.
type Node struct {
	resourceType string
	proxies      []*resource.Proxy
	fromPrev     *EdgeSet

	unique map[string]resource.Record
	order  []string
}

func newNode(resourceType string, proxies []*resource.Proxy, fromPrev *EdgeSet) *Node {
	return &Node{
		resourceType: resourceType,
		proxies:      proxies,
		fromPrev:     fromPrev,
		unique:       make(map[string]resource.Record),
	}
}

// ResourceType returns the entity type this node holds
func (n *Node) ResourceType() string {
	return n.resourceType
}

// IsRoot reports whether the node is the traversal root
func (n *Node) IsRoot() bool {
	return n.fromPrev == nil
}

// FromPreviousLayer returns the edges that produced this node, nil for root
func (n *Node) FromPreviousLayer() *EdgeSet {
	return n.fromPrev
}

// ProxiesToNextLayer returns the declared outgoing relationship proxies
func (n *Node) ProxiesToNextLayer() []*resource.Proxy {
	return n.proxies
}

// add inserts a record, deduplicating by id. The first instance wins so the
// same logical entity reached via several paths stays a single instance.
func (n *Node) add(rec resource.Record) {
	id := resource.RecordID(rec)
	if _, ok := n.unique[id]; ok {
		return
	}
	n.unique[id] = rec
	n.order = append(n.order, id)
}

// UniqueRecords returns the deduplicated entities in insertion order
func (n *Node) UniqueRecords() []resource.Record {
	records := make([]resource.Record, 0, len(n.order))
	for _, id := range n.order {
		records = append(records, n.unique[id])
	}
	return records
}

// Contains reports whether an entity with the given id is in the node
func (n *Node) Contains(id string) bool {
	_, ok := n.unique[id]
	return ok
}

// Get returns the node's instance for the given id
func (n *Node) Get(id string) (resource.Record, bool) {
	rec, ok := n.unique[id]
	return rec, ok
}

// IDs returns the entity ids in insertion order
func (n *Node) IDs() []string {
	ids := make([]string, len(n.order))
	copy(ids, n.order)
	return ids
}

// UpdateUnique replaces the node's entity set with the intersection of the
// current set and the records a hook returned. Returned instances substitute
// the originals so hook mutations flow forward.
func (n *Node) UpdateUnique(filtered []resource.Record) {
	kept := make(map[string]resource.Record, len(filtered))
	for _, rec := range filtered {
		id := resource.RecordID(rec)
		if _, ok := n.unique[id]; ok {
			kept[id] = rec
		}
	}

	newOrder := make([]string, 0, len(kept))
	for _, id := range n.order {
		if _, ok := kept[id]; ok {
			newOrder = append(newOrder, id)
		}
	}
	n.unique = kept
	n.order = newOrder
}

// UpdateUniqueIDs filters the entity set down to the given ids
func (n *Node) UpdateUniqueIDs(ids []string) {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	kept := make(map[string]resource.Record, len(keep))
	newOrder := make([]string, 0, len(keep))
	for _, id := range n.order {
		if keep[id] {
			kept[id] = n.unique[id]
			newOrder = append(newOrder, id)
		}
	}
	n.unique = kept
	n.order = newOrder
}

// Reassign writes the node's current entity set back onto the object graph
// of the previous layer: every left-side record loses references to entities
// a hook excluded (to-one values become nil, collections lose the member)
// and keeps the hook-returned instances for the rest. No-op on the root.
func (n *Node) Reassign() {
	if n.fromPrev == nil {
		return
	}
	for _, e := range n.fromPrev.edges {
		e.Proxy.Retain(e.Left, n.unique)
	}
}

// EntitySet builds the read-only view of this node for entity-scoped hooks
func (n *Node) EntitySet() *EntitySet {
	return NewEntitySet(n.resourceType, n.UniqueRecords(), n.relationshipSet(false))
}

// relationshipSet groups the node's entities by the relationship that
// produced them. With inverted true the grouping is keyed by the inverse
// attribute, the perspective of the node's own type; proxies without a
// declared inverse are omitted in that mode.
func (n *Node) relationshipSet(inverted bool) *RelationshipSet {
	if n.fromPrev == nil {
		return nil
	}

	var groups []RelationshipGroup
	for _, g := range n.fromPrev.Groups() {
		rights := n.retained(g.Right)
		if len(rights) == 0 {
			continue
		}
		rel := g.Proxy.Relationship()
		if inverted {
			inv, ok := g.Proxy.Inverse()
			if !ok {
				continue
			}
			rel = inv.Relationship()
		}
		groups = append(groups, RelationshipGroup{Relationship: rel, Records: rights})
	}
	return NewRelationshipSet(groups)
}

// retained filters records down to the ones still present in the node,
// substituting the node's instance, deduplicated by id.
func (n *Node) retained(records []resource.Record) []resource.Record {
	seen := make(map[string]bool)
	var result []resource.Record
	for _, rec := range records {
		id := resource.RecordID(rec)
		if seen[id] {
			continue
		}
		if current, ok := n.unique[id]; ok {
			seen[id] = true
			result = append(result, current)
		}
	}
	return result
}

// Layer is one breadth-first depth of the traversal: one node per distinct
// resource type present at that depth. The root layer is always homogeneous.
type Layer struct {
	nodes []*Node
}

// Nodes returns the layer's nodes
func (l *Layer) Nodes() []*Node {
	return l.nodes
}

// IsEmpty reports whether the layer holds no entities, which terminates the
// traversal.
func (l *Layer) IsEmpty() bool {
	for _, n := range l.nodes {
		if len(n.unique) > 0 {
			return false
		}
	}
	return true
}
