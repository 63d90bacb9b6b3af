package hooks

import "errors"

var (
	// ErrSingleCardinality is returned when an OnReturn hook yields more
	// than one entity for a single-resource pipeline. This is a defect in
	// the hook implementation, not a recoverable condition: serializing
	// multiple resources for a single-resource response would corrupt the
	// API contract.
	ErrSingleCardinality = errors.New("hook returned more than one entity for a single-resource pipeline")

	// ErrUnknownResourceType is returned when an entry point is invoked for
	// a resource type the metadata registry does not know
	ErrUnknownResourceType = errors.New("unknown resource type")
)
