package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/resource"
)

// Executor drives hook execution for one request operation. Each public
// entry point is one atomic pass: it builds a fresh root node from the given
// entity set, fires the hook on the root type if implemented, and walks
// outward through declared relationships firing the nested equivalents layer
// by layer. Execution is synchronous and single-threaded per call.
//
// Hook implementations must not trigger a new top-level pass for the same
// request; the executor does not guard against that recursion.
type Executor struct {
	registry *resource.Registry
	hooks    *Registry
	resolver ValueResolver
	logger   *zap.Logger
}

// NewExecutor creates a hook executor. resolver may be nil, in which case
// database values and implicitly affected entities are never loaded.
func NewExecutor(registry *resource.Registry, hooks *Registry, resolver ValueResolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		hooks:    hooks,
		resolver: resolver,
		logger:   logger,
	}
}

func (e *Executor) begin(resourceType string, records []resource.Record) (*traversal, *helper, *Node, error) {
	if _, ok := e.registry.Get(resourceType); !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, resourceType)
	}
	trav := newTraversal(e.registry)
	h := newHelper(e.registry, e.hooks, e.resolver, trav)
	root := trav.rootNode(resourceType, records)
	return trav, h, root, nil
}

// BeforeRead fires the read hook on the root type and then, depth-first over
// the declared include chains, on every distinct included type exactly once.
func (e *Executor) BeforeRead(ctx context.Context, resourceType string, pipeline Pipeline, includes []string, ids []string) error {
	if _, ok := e.registry.Get(resourceType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResourceType, resourceType)
	}

	called := map[string]bool{resourceType: true}
	if c := e.hooks.Container(resourceType, BeforeRead); c != nil {
		if err := c.BeforeRead(ctx, pipeline, false, ids); err != nil {
			return err
		}
	}

	for _, include := range includes {
		currentType := resourceType
		for _, segment := range splitIncludePath(include) {
			proxy, err := e.registry.Proxy(currentType, segment)
			if err != nil {
				return err
			}
			currentType = proxy.RightType()
			if called[currentType] {
				continue
			}
			called[currentType] = true
			if c := e.hooks.Container(currentType, BeforeRead); c != nil {
				if err := c.BeforeRead(ctx, pipeline, true, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// BeforeCreate fires the create hook on the root set and propagates nested
// relationship hooks through the object graph. The returned records are the
// set the hooks allowed through, with exclusions already detached from the
// caller's graph.
func (e *Executor) BeforeCreate(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) ([]resource.Record, error) {
	trav, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing before-create hooks",
		zap.String("resource", resourceType),
		zap.Int("entities", len(records)),
		zap.Stringer("pipeline", pipeline))

	if c := h.container(resourceType, BeforeCreate); c != nil {
		filtered, err := c.BeforeCreate(ctx, root.EntitySet(), pipeline)
		if err != nil {
			return nil, err
		}
		root.UpdateUnique(filtered)
	}

	if err := e.traverseNestedBefore(ctx, h, trav, root, pipeline); err != nil {
		return nil, err
	}
	return root.UniqueRecords(), nil
}

// BeforeUpdate loads database values when the hook opted in, fires the
// update hook with the requested-vs-persisted diff, and propagates nested
// relationship hooks including implicit updates for entities whose
// relationships the update silently severs.
func (e *Executor) BeforeUpdate(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) ([]resource.Record, error) {
	trav, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing before-update hooks",
		zap.String("resource", resourceType),
		zap.Int("entities", len(records)),
		zap.Stringer("pipeline", pipeline))

	if c := h.container(resourceType, BeforeUpdate); c != nil {
		dbValues, err := h.dbValues(ctx, c, BeforeUpdate, root, e.declaredRelationships(resourceType))
		if err != nil {
			return nil, err
		}
		filtered, err := c.BeforeUpdate(ctx, NewEntityDiff(root.EntitySet(), dbValues), pipeline)
		if err != nil {
			return nil, err
		}
		root.UpdateUnique(filtered)
	}

	if err := e.traverseNestedBefore(ctx, h, trav, root, pipeline); err != nil {
		return nil, err
	}
	return root.UniqueRecords(), nil
}

// BeforeDelete fires the delete hook on the root set and notifies, via
// implicit-update hooks, every entity elsewhere in the model whose reference
// to the deleted set is about to be severed.
func (e *Executor) BeforeDelete(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) ([]resource.Record, error) {
	_, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("executing before-delete hooks",
		zap.String("resource", resourceType),
		zap.Int("entities", len(records)),
		zap.Stringer("pipeline", pipeline))

	if c := h.container(resourceType, BeforeDelete); c != nil {
		entities := root.UniqueRecords()
		dbValues, err := h.dbValues(ctx, c, BeforeDelete, root, e.declaredRelationships(resourceType))
		if err != nil {
			return nil, err
		}
		if dbValues != nil {
			// hand the hook the persisted versions where available
			for i, rec := range entities {
				if db, ok := dbValues[resource.RecordID(rec)]; ok {
					entities[i] = db
				}
			}
		}
		filtered, err := c.BeforeDelete(ctx, NewEntitySet(resourceType, entities, nil), pipeline)
		if err != nil {
			return nil, err
		}
		root.UpdateUnique(filtered)
	}

	deletedIDs := root.IDs()
	if len(deletedIDs) > 0 {
		for _, rel := range e.registry.RelationshipsInto(resourceType) {
			c := h.container(rel.LeftType, BeforeImplicitUpdateRelationship)
			if c == nil {
				continue
			}
			affected, err := h.inboundAffected(ctx, rel, deletedIDs)
			if err != nil {
				return nil, err
			}
			if len(affected) == 0 {
				continue
			}
			set := NewRelationshipSet([]RelationshipGroup{{Relationship: rel, Records: affected}})
			if err := c.BeforeImplicitUpdateRelationship(ctx, set, pipeline); err != nil {
				return nil, err
			}
		}
	}
	return root.UniqueRecords(), nil
}

// traverseNestedBefore computes successive layers from the root and fires
// the nested before-update logic on every node: first the relationship hook
// on the newly related entities, then implicit updates for previous holders
// and for conflicting current holders.
func (e *Executor) traverseNestedBefore(ctx context.Context, h *helper, trav *traversal, root *Node, pipeline Pipeline) error {
	for layer := trav.nextLayer(trav.rootLayer(root)); !layer.IsEmpty(); layer = trav.nextLayer(layer) {
		for _, node := range layer.Nodes() {
			if err := e.nestedBeforeUpdate(ctx, h, node, pipeline); err != nil {
				return err
			}
		}
	}
	return nil
}

// nestedBeforeUpdate fires the three relationship-scoped hook phases for one
// node, in the order real-world update semantics require:
//
//  1. BeforeUpdateRelationship on the newly related entities, grouped by the
//     inverse attribute so the hook sees the relationship from its own
//     type's perspective.
//  2. BeforeImplicitUpdateRelationship for the previous holders of the
//     relationship, resolved from persisted state. Skipped for create
//     pipelines: nothing previously existed to reassign from.
//  3. BeforeImplicitUpdateRelationship for any other entity currently
//     holding a conflicting reference to a newly assigned entity.
//
// Phases 2 and 3 require a declared inverse; without one the engine has no
// way to know the affected holder and skips silently.
func (e *Executor) nestedBeforeUpdate(ctx context.Context, h *helper, node *Node, pipeline Pipeline) error {
	if c := h.container(node.ResourceType(), BeforeUpdateRelationship); c != nil {
		set := node.relationshipSet(true)
		keptIDs, err := c.BeforeUpdateRelationship(ctx, node.IDs(), set, pipeline)
		if err != nil {
			return err
		}
		node.UpdateUniqueIDs(keptIDs)
		node.Reassign()
	}

	for _, group := range node.FromPreviousLayer().Groups() {
		inverse, ok := group.Proxy.Inverse()
		if !ok {
			continue
		}

		if pipeline != PipelinePost {
			if c := h.container(node.ResourceType(), BeforeImplicitUpdateRelationship); c != nil {
				previous, err := h.previousHolders(ctx, group, node)
				if err != nil {
					return err
				}
				if len(previous) > 0 {
					set := NewRelationshipSet([]RelationshipGroup{{Relationship: inverse.Relationship(), Records: previous}})
					if err := c.BeforeImplicitUpdateRelationship(ctx, set, pipeline); err != nil {
						return err
					}
				}
			}
		}

		if c := h.container(group.Proxy.LeftType(), BeforeImplicitUpdateRelationship); c != nil {
			conflicting, err := h.conflictingHolders(ctx, group, node)
			if err != nil {
				return err
			}
			if len(conflicting) > 0 {
				set := NewRelationshipSet([]RelationshipGroup{{Relationship: group.Proxy.Relationship(), Records: conflicting}})
				if err := c.BeforeImplicitUpdateRelationship(ctx, set, pipeline); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// OnReturn filters the outgoing response set through hooks at every layer of
// the graph that will be serialized. For single-resource pipelines a hook
// returning more than one root entity is a fatal consumer-code defect.
func (e *Executor) OnReturn(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) ([]resource.Record, error) {
	trav, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return nil, err
	}

	if c := h.container(resourceType, OnReturn); c != nil {
		returned, err := c.OnReturn(ctx, root.UniqueRecords(), pipeline)
		if err != nil {
			return nil, err
		}
		if pipeline == PipelineGetSingle && len(returned) > 1 {
			return nil, fmt.Errorf("%w: %s hook returned %d entities", ErrSingleCardinality, resourceType, len(returned))
		}
		root.UpdateUnique(returned)
	}

	for layer := trav.nextLayer(trav.rootLayer(root)); !layer.IsEmpty(); layer = trav.nextLayer(layer) {
		for _, node := range layer.Nodes() {
			c := h.container(node.ResourceType(), OnReturn)
			if c == nil {
				continue
			}
			returned, err := c.OnReturn(ctx, node.UniqueRecords(), pipeline)
			if err != nil {
				return nil, err
			}
			node.UpdateUnique(returned)
			node.Reassign()
		}
	}
	return root.UniqueRecords(), nil
}

// AfterRead fires read notifications for the root set and, layer by layer,
// for every related entity that was loaded with it.
func (e *Executor) AfterRead(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) error {
	trav, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return err
	}

	if c := h.container(resourceType, AfterRead); c != nil {
		if err := c.AfterRead(ctx, root.UniqueRecords(), pipeline, false); err != nil {
			return err
		}
	}

	for layer := trav.nextLayer(trav.rootLayer(root)); !layer.IsEmpty(); layer = trav.nextLayer(layer) {
		for _, node := range layer.Nodes() {
			if c := h.container(node.ResourceType(), AfterRead); c != nil {
				if err := c.AfterRead(ctx, node.UniqueRecords(), pipeline, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AfterCreate fires create notifications on the root set, then relationship
// notifications on every node of the subsequent layers, grouped by the
// inverse attribute as in the before phase.
func (e *Executor) AfterCreate(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) error {
	return e.afterWrite(ctx, AfterCreate, resourceType, records, pipeline)
}

// AfterUpdate is the update counterpart of AfterCreate
func (e *Executor) AfterUpdate(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline) error {
	return e.afterWrite(ctx, AfterUpdate, resourceType, records, pipeline)
}

func (e *Executor) afterWrite(ctx context.Context, kind Kind, resourceType string, records []resource.Record, pipeline Pipeline) error {
	trav, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return err
	}

	if c := h.container(resourceType, kind); c != nil {
		entities := root.UniqueRecords()
		switch kind {
		case AfterCreate:
			err = c.AfterCreate(ctx, entities, pipeline)
		case AfterUpdate:
			err = c.AfterUpdate(ctx, entities, pipeline)
		}
		if err != nil {
			return err
		}
	}

	for layer := trav.nextLayer(trav.rootLayer(root)); !layer.IsEmpty(); layer = trav.nextLayer(layer) {
		for _, node := range layer.Nodes() {
			c := h.container(node.ResourceType(), AfterUpdateRelationship)
			if c == nil {
				continue
			}
			set := node.relationshipSet(true)
			if set == nil || set.IsEmpty() {
				continue
			}
			if err := c.AfterUpdateRelationship(ctx, set, pipeline); err != nil {
				return err
			}
		}
	}
	return nil
}

// AfterDelete fires delete notifications on the root set. succeeded reports
// whether the persistence layer committed the delete.
func (e *Executor) AfterDelete(ctx context.Context, resourceType string, records []resource.Record, pipeline Pipeline, succeeded bool) error {
	_, h, root, err := e.begin(resourceType, records)
	if err != nil {
		return err
	}

	if c := h.container(resourceType, AfterDelete); c != nil {
		if err := c.AfterDelete(ctx, root.UniqueRecords(), pipeline, succeeded); err != nil {
			return err
		}
	}
	return nil
}

// declaredRelationships returns the declared relationships of a type, used
// as the eager-include list when loading database values.
func (e *Executor) declaredRelationships(resourceType string) []*resource.Relationship {
	schema, ok := e.registry.Get(resourceType)
	if !ok {
		return nil
	}
	rels := make([]*resource.Relationship, 0, len(schema.Relationships))
	for _, rel := range schema.Relationships {
		rels = append(rels, rel)
	}
	return rels
}

// splitIncludePath splits a dotted include chain ("owner.articles") into its
// relationship segments.
func splitIncludePath(include string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(include); i++ {
		if include[i] == '.' {
			if i > start {
				segments = append(segments, include[start:i])
			}
			start = i + 1
		}
	}
	if start < len(include) {
		segments = append(segments, include[start:])
	}
	return segments
}
