package resource

import "errors"

var (
	// ErrUnknownResource is returned when a resource type is not registered
	ErrUnknownResource = errors.New("unknown resource")

	// ErrUnknownRelationship is returned when a relationship is not declared
	// on the resource it was requested from
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrDuplicateResource is returned when registering a resource name twice
	ErrDuplicateResource = errors.New("resource is already registered")

	// ErrNoInverse is returned when an inverse proxy is requested for a
	// relationship that has no declared inverse
	ErrNoInverse = errors.New("relationship has no declared inverse")
)
