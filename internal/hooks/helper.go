package hooks

import (
	"context"
	"fmt"

	"github.com/weft-api/weft/internal/resource"
)

// ValueResolver is the persistence collaborator of the hook engine. Both
// methods are read-only round-trips to the backing store and may block; the
// engine calls them mid-traversal, one node at a time.
type ValueResolver interface {
	// LoadDBValues fetches the persisted versions of the entities with the
	// given ids, with only the listed relationships eagerly loaded.
	LoadDBValues(ctx context.Context, resourceType string, ids []string, relationships []*resource.Relationship) ([]resource.Record, error)

	// LoadImplicitlyAffected resolves the left-type entities whose value of
	// rel currently points at one of the given right-side ids, excluding
	// the left ids already part of the request.
	LoadImplicitlyAffected(ctx context.Context, rel *resource.Relationship, rightIDs []string, excludeLeftIDs []string) ([]resource.Record, error)
}

// helper resolves hook containers and loads database values and implicitly
// affected entities on demand for one execution pass.
type helper struct {
	registry *resource.Registry
	hooks    *Registry
	resolver ValueResolver
	trav     *traversal
}

func newHelper(registry *resource.Registry, hooks *Registry, resolver ValueResolver, trav *traversal) *helper {
	return &helper{registry: registry, hooks: hooks, resolver: resolver, trav: trav}
}

// container looks up the hook container for a (type, kind) pair. Nil means
// no customization; callers skip all related work.
func (h *helper) container(resourceType string, kind Kind) *Container {
	return h.hooks.Container(resourceType, kind)
}

// dbValues loads the persisted versions of a node's entities keyed by id,
// honoring the container's per-kind opt-in. Returns nil (not an error) when
// the hook did not request database values or no resolver is configured.
func (h *helper) dbValues(ctx context.Context, c *Container, kind Kind, node *Node, relationships []*resource.Relationship) (map[string]resource.Record, error) {
	if c == nil || !c.WantsDatabaseValues(kind) || h.resolver == nil {
		return nil, nil
	}

	records, err := h.resolver.LoadDBValues(ctx, node.ResourceType(), node.IDs(), relationships)
	if err != nil {
		return nil, fmt.Errorf("loading database values for %s: %w", node.ResourceType(), err)
	}

	values := make(map[string]resource.Record, len(records))
	for _, rec := range records {
		values[resource.RecordID(rec)] = rec
	}
	return values, nil
}

// previousHolders resolves the persisted right-side values of one edge group
// that the request is about to detach: entities that currently hold the
// relationship but are not among the newly assigned ones. They are not part
// of the request payload at all, so they are loaded from the store via the
// left side's persisted state.
func (h *helper) previousHolders(ctx context.Context, group EdgeGroup, node *Node) ([]resource.Record, error) {
	if h.resolver == nil {
		return nil, nil
	}

	rel := group.Proxy.Relationship()
	leftIDs := make([]string, 0, len(group.Left))
	for _, left := range group.Left {
		leftIDs = append(leftIDs, resource.RecordID(left))
	}

	dbLefts, err := h.resolver.LoadDBValues(ctx, rel.LeftType, leftIDs, []*resource.Relationship{rel})
	if err != nil {
		return nil, fmt.Errorf("loading previous %s values: %w", rel, err)
	}

	seen := make(map[string]bool)
	var previous []resource.Record
	for _, dbLeft := range dbLefts {
		for _, right := range group.Proxy.GetValue(dbLeft).Many() {
			id := resource.RecordID(right)
			if seen[id] || node.Contains(id) {
				// still attached after the update, not implicitly affected
				continue
			}
			seen[id] = true
			previous = append(previous, h.trav.reconcile(rel.RightType, right))
		}
	}
	return previous, nil
}

// conflictingHolders resolves left-type entities outside the request whose
// value of the relationship currently points at one of the node's newly
// assigned entities. Assigning the relationship to a new holder silently
// severs it for these.
func (h *helper) conflictingHolders(ctx context.Context, group EdgeGroup, node *Node) ([]resource.Record, error) {
	if h.resolver == nil {
		return nil, nil
	}

	rel := group.Proxy.Relationship()
	rightIDs := make([]string, 0, len(group.Right))
	for _, right := range group.Right {
		if id := resource.RecordID(right); node.Contains(id) {
			rightIDs = append(rightIDs, id)
		}
	}
	if len(rightIDs) == 0 {
		return nil, nil
	}

	excludeLeftIDs := make([]string, 0, len(group.Left))
	for _, left := range group.Left {
		excludeLeftIDs = append(excludeLeftIDs, resource.RecordID(left))
	}

	records, err := h.resolver.LoadImplicitlyAffected(ctx, rel, rightIDs, excludeLeftIDs)
	if err != nil {
		return nil, fmt.Errorf("loading implicitly affected %s: %w", rel.LeftType, err)
	}

	reconciled := make([]resource.Record, 0, len(records))
	for _, rec := range records {
		reconciled = append(reconciled, h.trav.reconcile(rel.LeftType, rec))
	}
	return reconciled, nil
}

// inboundAffected resolves, for one relationship pointing into the deleted
// set from elsewhere, the entities whose reference is about to be severed.
func (h *helper) inboundAffected(ctx context.Context, rel *resource.Relationship, deletedIDs []string) ([]resource.Record, error) {
	if h.resolver == nil {
		return nil, nil
	}

	records, err := h.resolver.LoadImplicitlyAffected(ctx, rel, deletedIDs, nil)
	if err != nil {
		return nil, fmt.Errorf("loading implicitly affected %s: %w", rel.LeftType, err)
	}
	return records, nil
}
