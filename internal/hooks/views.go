package hooks

import (
	"reflect"

	"github.com/weft-api/weft/internal/resource"
)

// RelationshipGroup pairs one relationship with the records affected through
// it. The relationship is always expressed from the perspective of the type
// the hook fires on: for hooks on the related type the grouping is re-keyed
// by the inverse attribute.
type RelationshipGroup struct {
	Relationship *resource.Relationship
	Records      []resource.Record
}

// RelationshipSet is the read-only view handed to relationship-scoped hooks
// (BeforeUpdateRelationship, BeforeImplicitUpdateRelationship,
// AfterUpdateRelationship): the affected records grouped per relationship.
type RelationshipSet struct {
	groups []RelationshipGroup
}

// NewRelationshipSet builds a relationship set from its groups
func NewRelationshipSet(groups []RelationshipGroup) *RelationshipSet {
	return &RelationshipSet{groups: groups}
}

// Groups returns the per-relationship groupings
func (s *RelationshipSet) Groups() []RelationshipGroup {
	return s.groups
}

// Records returns all affected records, deduplicated by id
func (s *RelationshipSet) Records() []resource.Record {
	seen := make(map[string]bool)
	var records []resource.Record
	for _, g := range s.groups {
		for _, rec := range g.Records {
			id := resource.RecordID(rec)
			if !seen[id] {
				seen[id] = true
				records = append(records, rec)
			}
		}
	}
	return records
}

// IsEmpty reports whether no records are affected
func (s *RelationshipSet) IsEmpty() bool {
	for _, g := range s.groups {
		if len(g.Records) > 0 {
			return false
		}
	}
	return true
}

// EntitySet is the read-only view handed to entity-scoped before-hooks: the
// unique affected entities of one type, optionally grouped by the
// relationships through which they were reached.
type EntitySet struct {
	resourceType  string
	entities      []resource.Record
	relationships *RelationshipSet
}

// NewEntitySet builds an entity set. relationships may be nil for root-layer
// entities, which were not reached through any relationship.
func NewEntitySet(resourceType string, entities []resource.Record, relationships *RelationshipSet) *EntitySet {
	return &EntitySet{
		resourceType:  resourceType,
		entities:      entities,
		relationships: relationships,
	}
}

// ResourceType returns the entity type of the set
func (s *EntitySet) ResourceType() string {
	return s.resourceType
}

// Entities returns the unique affected entities
func (s *EntitySet) Entities() []resource.Record {
	return s.entities
}

// ByRelationship returns the entities grouped by the relationship through
// which they were reached, or nil for root entities.
func (s *EntitySet) ByRelationship() *RelationshipSet {
	return s.relationships
}

// IDs returns the ids of the affected entities
func (s *EntitySet) IDs() []string {
	ids := make([]string, 0, len(s.entities))
	for _, rec := range s.entities {
		ids = append(ids, resource.RecordID(rec))
	}
	return ids
}

// EntityDiff extends EntitySet with the persisted versions of the affected
// entities so update hooks can compare requested against ground-truth state.
// Database values are only present when the container opted in.
type EntityDiff struct {
	*EntitySet
	dbValues map[string]resource.Record
}

// NewEntityDiff builds a diff view. dbValues maps entity id to its persisted
// record and may be nil when database values were not requested.
func NewEntityDiff(set *EntitySet, dbValues map[string]resource.Record) *EntityDiff {
	return &EntityDiff{EntitySet: set, dbValues: dbValues}
}

// HasDatabaseValues reports whether persisted values were loaded
func (d *EntityDiff) HasDatabaseValues() bool {
	return d.dbValues != nil
}

// DatabaseValue returns the persisted version of the given requested record
func (d *EntityDiff) DatabaseValue(rec resource.Record) (resource.Record, bool) {
	if d.dbValues == nil {
		return nil, false
	}
	db, ok := d.dbValues[resource.RecordID(rec)]
	return db, ok
}

// Changed reports whether the requested value of a field differs from the
// persisted one. Without database values every field counts as changed.
func (d *EntityDiff) Changed(rec resource.Record, field string) bool {
	db, ok := d.DatabaseValue(rec)
	if !ok {
		return true
	}
	return !deepEqual(rec[field], db[field])
}

// Pairs returns (requested, database) record pairs for entities that have a
// persisted counterpart.
func (d *EntityDiff) Pairs() [][2]resource.Record {
	var pairs [][2]resource.Record
	for _, rec := range d.entities {
		if db, ok := d.DatabaseValue(rec); ok {
			pairs = append(pairs, [2]resource.Record{rec, db})
		}
	}
	return pairs
}

// deepEqual compares two field values, treating nil specially
func deepEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
