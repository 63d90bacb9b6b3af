package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/weft-api/weft/internal/resource"
)

// leftIDColumn is the scan alias for the join-table owner key when loading
// has_many_through values.
const leftIDColumn = "__left_id"

// LoadDBValues fetches the persisted versions of the given entities with the
// listed relationships eagerly attached. It is the ground-truth lookup the
// hook engine performs before update and delete hooks that opted into
// database values.
func (s *Store) LoadDBValues(ctx context.Context, resourceType string, ids []string, relationships []*resource.Relationship) ([]resource.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	schema, err := s.schema(resourceType)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(schema)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		quoteColumns(cols),
		pq.QuoteIdentifier(schema.TableName),
		pq.QuoteIdentifier(resource.IDField),
		placeholders(1, len(ids)))

	rows, err := s.db.QueryContext(ctx, query, anyValues(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s values: %w", resourceType, ConvertDBError(err))
	}
	records, err := scanRows(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s values: %w", resourceType, ConvertDBError(err))
	}

	for _, rel := range relationships {
		if err := s.attachRelationship(ctx, schema, records, rel); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// AttachRelationships eagerly loads the named relationships onto records
// already in hand, in place. Used by the HTTP layer to honor include chains
// without re-reading the base rows.
func (s *Store) AttachRelationships(ctx context.Context, resourceType string, records []resource.Record, names []string) error {
	if len(records) == 0 || len(names) == 0 {
		return nil
	}
	schema, err := s.schema(resourceType)
	if err != nil {
		return err
	}
	for _, name := range names {
		rel, ok := schema.Relationships[name]
		if !ok {
			return fmt.Errorf("%w: %s.%s", resource.ErrUnknownRelationship, resourceType, name)
		}
		if err := s.attachRelationship(ctx, schema, records, rel); err != nil {
			return err
		}
	}
	return nil
}

// LoadImplicitlyAffected resolves the left-type entities whose persisted
// value of rel currently points at one of the given right-side ids, excluding
// the left ids already part of the request.
func (s *Store) LoadImplicitlyAffected(ctx context.Context, rel *resource.Relationship, rightIDs []string, excludeLeftIDs []string) ([]resource.Record, error) {
	if len(rightIDs) == 0 {
		return nil, nil
	}
	leftSchema, err := s.schema(rel.LeftType)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(leftSchema)
	leftTable := pq.QuoteIdentifier(leftSchema.TableName)
	idCol := pq.QuoteIdentifier(resource.IDField)

	var query string
	values := anyValues(rightIDs)
	counter := len(rightIDs) + 1

	switch {
	case rel.Through != "":
		throughSchema, err := s.schema(rel.Through)
		if err != nil {
			return nil, err
		}
		rightSchema, err := s.schema(rel.RightType)
		if err != nil {
			return nil, err
		}
		query = fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s IN (%s))",
			quoteColumns(cols), leftTable, idCol,
			pq.QuoteIdentifier(joinKey(leftSchema)),
			pq.QuoteIdentifier(throughSchema.TableName),
			pq.QuoteIdentifier(joinKey(rightSchema)),
			placeholders(1, len(rightIDs)))

	case leftSchema.HasField(rel.ForeignKey):
		// reference column lives on the left table
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			quoteColumns(cols), leftTable,
			pq.QuoteIdentifier(rel.ForeignKey),
			placeholders(1, len(rightIDs)))

	default:
		// reference column lives on the right table, pointing back at left
		rightSchema, err := s.schema(rel.RightType)
		if err != nil {
			return nil, err
		}
		query = fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s IN (%s))",
			quoteColumns(cols), leftTable, idCol,
			pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(rightSchema.TableName),
			idCol,
			placeholders(1, len(rightIDs)))
	}

	if len(excludeLeftIDs) > 0 {
		query += fmt.Sprintf(" AND %s NOT IN (%s)", idCol, placeholders(counter, len(excludeLeftIDs)))
		values = append(values, anyValues(excludeLeftIDs)...)
	}

	rows, err := s.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to load implicitly affected %s: %w", rel.LeftType, ConvertDBError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan implicitly affected %s: %w", rel.LeftType, ConvertDBError(err))
	}
	return records, nil
}

// attachRelationship eagerly loads one relationship's values onto the given
// left-side records, under the relationship name.
func (s *Store) attachRelationship(ctx context.Context, leftSchema *resource.Schema, records []resource.Record, rel *resource.Relationship) error {
	if len(records) == 0 {
		return nil
	}

	switch {
	case rel.Through != "":
		return s.attachThrough(ctx, leftSchema, records, rel)
	case leftSchema.HasField(rel.ForeignKey):
		return s.attachByLeftKey(ctx, records, rel)
	default:
		return s.attachByRightKey(ctx, records, rel)
	}
}

// attachByLeftKey resolves a to-one relationship whose reference column lives
// on the left table.
func (s *Store) attachByLeftKey(ctx context.Context, records []resource.Record, rel *resource.Relationship) error {
	rightSchema, err := s.schema(rel.RightType)
	if err != nil {
		return err
	}

	var rightIDs []string
	seen := make(map[string]bool)
	for _, rec := range records {
		fk, ok := rec[rel.ForeignKey].(string)
		if !ok || fk == "" || seen[fk] {
			continue
		}
		seen[fk] = true
		rightIDs = append(rightIDs, fk)
	}
	if len(rightIDs) == 0 {
		for _, rec := range records {
			rec[rel.Name] = nil
		}
		return nil
	}

	cols := sortedColumns(rightSchema)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		quoteColumns(cols),
		pq.QuoteIdentifier(rightSchema.TableName),
		pq.QuoteIdentifier(resource.IDField),
		placeholders(1, len(rightIDs)))

	rows, err := s.db.QueryContext(ctx, query, anyValues(rightIDs)...)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", rel, ConvertDBError(err))
	}
	defer rows.Close()

	rights, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", rel, ConvertDBError(err))
	}

	byID := make(map[string]resource.Record, len(rights))
	for _, right := range rights {
		byID[resource.RecordID(right)] = right
	}
	for _, rec := range records {
		if fk, ok := rec[rel.ForeignKey].(string); ok {
			if right, found := byID[fk]; found {
				rec[rel.Name] = right
				continue
			}
		}
		rec[rel.Name] = nil
	}
	return nil
}

// attachByRightKey resolves a relationship whose reference column lives on
// the right table pointing back at the left.
func (s *Store) attachByRightKey(ctx context.Context, records []resource.Record, rel *resource.Relationship) error {
	rightSchema, err := s.schema(rel.RightType)
	if err != nil {
		return err
	}

	leftIDs := make([]string, 0, len(records))
	for _, rec := range records {
		leftIDs = append(leftIDs, resource.RecordID(rec))
	}

	cols := sortedColumns(rightSchema)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		quoteColumns(cols),
		pq.QuoteIdentifier(rightSchema.TableName),
		pq.QuoteIdentifier(rel.ForeignKey),
		placeholders(1, len(leftIDs)))

	rows, err := s.db.QueryContext(ctx, query, anyValues(leftIDs)...)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", rel, ConvertDBError(err))
	}
	defer rows.Close()

	rights, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", rel, ConvertDBError(err))
	}

	byLeft := make(map[string][]resource.Record)
	for _, right := range rights {
		owner, _ := right[rel.ForeignKey].(string)
		byLeft[owner] = append(byLeft[owner], right)
	}
	for _, rec := range records {
		group := byLeft[resource.RecordID(rec)]
		if rel.Type.ToMany() {
			rec[rel.Name] = group
		} else if len(group) > 0 {
			rec[rel.Name] = group[0]
		} else {
			rec[rel.Name] = nil
		}
	}
	return nil
}

// attachThrough resolves a many-to-many relationship via its join table. The
// join table's key columns follow the <table>_id convention.
func (s *Store) attachThrough(ctx context.Context, leftSchema *resource.Schema, records []resource.Record, rel *resource.Relationship) error {
	rightSchema, err := s.schema(rel.RightType)
	if err != nil {
		return err
	}
	throughSchema, err := s.schema(rel.Through)
	if err != nil {
		return err
	}

	leftIDs := make([]string, 0, len(records))
	for _, rec := range records {
		leftIDs = append(leftIDs, resource.RecordID(rec))
	}

	cols := sortedColumns(rightSchema)
	prefixed := make([]string, len(cols))
	for i, c := range cols {
		prefixed[i] = "r." + pq.QuoteIdentifier(c)
	}
	query := fmt.Sprintf(
		"SELECT %s, j.%s AS %s FROM %s r JOIN %s j ON j.%s = r.%s WHERE j.%s IN (%s)",
		strings.Join(prefixed, ", "),
		pq.QuoteIdentifier(joinKey(leftSchema)),
		pq.QuoteIdentifier(leftIDColumn),
		pq.QuoteIdentifier(rightSchema.TableName),
		pq.QuoteIdentifier(throughSchema.TableName),
		pq.QuoteIdentifier(joinKey(rightSchema)),
		pq.QuoteIdentifier(resource.IDField),
		pq.QuoteIdentifier(joinKey(leftSchema)),
		placeholders(1, len(leftIDs)))

	rows, err := s.db.QueryContext(ctx, query, anyValues(leftIDs)...)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", rel, ConvertDBError(err))
	}
	defer rows.Close()

	joined, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", rel, ConvertDBError(err))
	}

	byLeft := make(map[string][]resource.Record)
	for _, right := range joined {
		owner, _ := right[leftIDColumn].(string)
		delete(right, leftIDColumn)
		byLeft[owner] = append(byLeft[owner], right)
	}
	for _, rec := range records {
		rec[rel.Name] = byLeft[resource.RecordID(rec)]
	}
	return nil
}

// joinKey is the join-table column referencing the given resource's row
func joinKey(schema *resource.Schema) string {
	return schema.TableName + "_id"
}
