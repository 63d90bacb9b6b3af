// Package hooks implements Weft's resource lifecycle hook engine. Each
// request-level operation triggers one breadth-first pass over the object
// graph reachable from the root entity set: hooks fire per layer, hook
// results propagate backward onto already-visited layers, and entities whose
// relationships are implicitly severed by the change get their own
// callbacks. All traversal state is owned by a single execution pass; no
// state is shared across requests.
package hooks

import (
	"context"

	"github.com/weft-api/weft/internal/resource"
)

// Kind identifies a lifecycle hook
type Kind int

const (
	BeforeCreate Kind = iota
	BeforeRead
	BeforeUpdate
	BeforeDelete
	BeforeUpdateRelationship
	BeforeImplicitUpdateRelationship
	AfterCreate
	AfterRead
	AfterUpdate
	AfterDelete
	AfterUpdateRelationship
	OnReturn
)

// String returns the string representation of the hook kind
func (k Kind) String() string {
	switch k {
	case BeforeCreate:
		return "before_create"
	case BeforeRead:
		return "before_read"
	case BeforeUpdate:
		return "before_update"
	case BeforeDelete:
		return "before_delete"
	case BeforeUpdateRelationship:
		return "before_update_relationship"
	case BeforeImplicitUpdateRelationship:
		return "before_implicit_update_relationship"
	case AfterCreate:
		return "after_create"
	case AfterRead:
		return "after_read"
	case AfterUpdate:
		return "after_update"
	case AfterDelete:
		return "after_delete"
	case AfterUpdateRelationship:
		return "after_update_relationship"
	case OnReturn:
		return "on_return"
	default:
		return "unknown"
	}
}

// Pipeline identifies which endpoint shape triggered the current execution.
// Hooks receive it so business logic can branch by operation.
type Pipeline int

const (
	PipelineNone Pipeline = iota
	PipelineGet
	PipelineGetSingle
	PipelineGetRelationship
	PipelinePost
	PipelinePatch
	PipelinePatchRelationship
	PipelineDelete
)

// String returns the string representation of the pipeline
func (p Pipeline) String() string {
	switch p {
	case PipelineGet:
		return "get"
	case PipelineGetSingle:
		return "get_single"
	case PipelineGetRelationship:
		return "get_relationship"
	case PipelinePost:
		return "post"
	case PipelinePatch:
		return "patch"
	case PipelinePatchRelationship:
		return "patch_relationship"
	case PipelineDelete:
		return "delete"
	default:
		return "none"
	}
}

// Hook function signatures. Before-hooks that return a record slice act as
// filters: the returned set replaces the affected set, and exclusions are
// reassigned backward onto the caller's object graph.
type (
	BeforeCreateFunc func(ctx context.Context, affected *EntitySet, pipeline Pipeline) ([]resource.Record, error)
	BeforeReadFunc   func(ctx context.Context, pipeline Pipeline, nested bool, ids []string) error
	BeforeUpdateFunc func(ctx context.Context, affected *EntityDiff, pipeline Pipeline) ([]resource.Record, error)
	BeforeDeleteFunc func(ctx context.Context, affected *EntitySet, pipeline Pipeline) ([]resource.Record, error)

	// BeforeUpdateRelationshipFunc fires on the related type when one of its
	// entities is the target of a relationship change. ids are the affected
	// entity ids; the returned ids are the ones to keep.
	BeforeUpdateRelationshipFunc func(ctx context.Context, ids []string, affected *RelationshipSet, pipeline Pipeline) ([]string, error)

	// BeforeImplicitUpdateRelationshipFunc fires on entities not present in
	// the request whose relationships are silently altered as a side effect.
	BeforeImplicitUpdateRelationshipFunc func(ctx context.Context, affected *RelationshipSet, pipeline Pipeline) error

	AfterCreateFunc func(ctx context.Context, entities []resource.Record, pipeline Pipeline) error
	AfterReadFunc   func(ctx context.Context, entities []resource.Record, pipeline Pipeline, nested bool) error
	AfterUpdateFunc func(ctx context.Context, entities []resource.Record, pipeline Pipeline) error
	AfterDeleteFunc func(ctx context.Context, entities []resource.Record, pipeline Pipeline, succeeded bool) error

	AfterUpdateRelationshipFunc func(ctx context.Context, affected *RelationshipSet, pipeline Pipeline) error

	// OnReturnFunc filters the outgoing response set before serialization
	OnReturnFunc func(ctx context.Context, entities []resource.Record, pipeline Pipeline) ([]resource.Record, error)
)

// Container holds the hook implementations for one resource type. A nil
// function means the hook is not implemented, which is the normal case and
// never an error. Dispatch is by direct function call: hook errors reach the
// caller exactly as the hook raised them.
type Container struct {
	BeforeCreate                     BeforeCreateFunc
	BeforeRead                       BeforeReadFunc
	BeforeUpdate                     BeforeUpdateFunc
	BeforeDelete                     BeforeDeleteFunc
	BeforeUpdateRelationship         BeforeUpdateRelationshipFunc
	BeforeImplicitUpdateRelationship BeforeImplicitUpdateRelationshipFunc
	AfterCreate                      AfterCreateFunc
	AfterRead                        AfterReadFunc
	AfterUpdate                      AfterUpdateFunc
	AfterDelete                      AfterDeleteFunc
	AfterUpdateRelationship          AfterUpdateRelationshipFunc
	OnReturn                         OnReturnFunc

	// DatabaseValues lists the hook kinds for which persisted ("db") values
	// should be loaded and diffed against the request. Opt-in; only honored
	// for BeforeUpdate, BeforeUpdateRelationship and BeforeDelete.
	DatabaseValues []Kind
}

// Implements reports whether the container implements the given hook kind
func (c *Container) Implements(kind Kind) bool {
	switch kind {
	case BeforeCreate:
		return c.BeforeCreate != nil
	case BeforeRead:
		return c.BeforeRead != nil
	case BeforeUpdate:
		return c.BeforeUpdate != nil
	case BeforeDelete:
		return c.BeforeDelete != nil
	case BeforeUpdateRelationship:
		return c.BeforeUpdateRelationship != nil
	case BeforeImplicitUpdateRelationship:
		return c.BeforeImplicitUpdateRelationship != nil
	case AfterCreate:
		return c.AfterCreate != nil
	case AfterRead:
		return c.AfterRead != nil
	case AfterUpdate:
		return c.AfterUpdate != nil
	case AfterDelete:
		return c.AfterDelete != nil
	case AfterUpdateRelationship:
		return c.AfterUpdateRelationship != nil
	case OnReturn:
		return c.OnReturn != nil
	default:
		return false
	}
}

// WantsDatabaseValues reports whether db values were requested for the kind
func (c *Container) WantsDatabaseValues(kind Kind) bool {
	for _, k := range c.DatabaseValues {
		if k == kind {
			return true
		}
	}
	return false
}
