package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/weft-api/weft/internal/resource"
)

// Create inserts a new record, auto-populating the primary key and the
// created_at/updated_at columns when the schema declares them.
func (s *Store) Create(ctx context.Context, resourceType string, data resource.Record) (resource.Record, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return nil, err
	}

	// copy so auto fields never leak into the caller's map
	record := make(resource.Record, len(data)+3)
	for k, v := range data {
		record[k] = v
	}
	populateAutoFields(schema, record, true)

	var fields []string
	var values []any
	for _, col := range sortedColumns(schema) {
		if value, ok := record[col]; ok {
			fields = append(fields, col)
			values = append(values, value)
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to insert for %s", resourceType)
	}

	returnCols := sortedColumns(schema)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(schema.TableName),
		quoteColumns(fields),
		placeholders(1, len(fields)),
		quoteColumns(returnCols),
	)

	row := s.db.QueryRowContext(ctx, query, values...)
	inserted, err := scanRowWithColumns(row, returnCols)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", resourceType, ConvertDBError(err))
	}
	return inserted, nil
}

// Find retrieves a record by its primary key
func (s *Store) Find(ctx context.Context, resourceType, id string) (resource.Record, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(schema)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		quoteColumns(cols),
		pq.QuoteIdentifier(schema.TableName),
		pq.QuoteIdentifier(resource.IDField))

	row := s.db.QueryRowContext(ctx, query, id)
	record, err := scanRowWithColumns(row, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", resourceType, ConvertDBError(err))
	}
	return record, nil
}

// FindAll retrieves all records matching the given column conditions.
// Conditions are ANDed; an empty map returns every record.
func (s *Store) FindAll(ctx context.Context, resourceType string, conditions resource.Record) ([]resource.Record, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return nil, err
	}

	cols := sortedColumns(schema)
	query := fmt.Sprintf("SELECT %s FROM %s",
		quoteColumns(cols),
		pq.QuoteIdentifier(schema.TableName))

	var values []any
	if len(conditions) > 0 {
		var clauses []string
		counter := 1
		for _, field := range sortedKeys(conditions) {
			if err := validateColumn(schema, field); err != nil {
				return nil, err
			}
			clauses = append(clauses, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(field), counter))
			values = append(values, conditions[field])
			counter++
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", resourceType, ConvertDBError(err))
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s rows: %w", resourceType, ConvertDBError(err))
	}
	return results, nil
}

// Update applies the given column changes to a record by primary key and
// returns the persisted row. The id and created_at columns are immutable.
func (s *Store) Update(ctx context.Context, resourceType, id string, data resource.Record) (resource.Record, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return nil, err
	}

	record := make(resource.Record, len(data)+1)
	for k, v := range data {
		record[k] = v
	}
	populateAutoFields(schema, record, false)

	var sets []string
	var values []any
	counter := 1
	for _, field := range sortedKeys(record) {
		if field == resource.IDField || field == "created_at" {
			continue
		}
		if !schema.HasField(field) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(field), counter))
		values = append(values, record[field])
		counter++
	}
	if len(sets) == 0 {
		return s.Find(ctx, resourceType, id)
	}

	returnCols := sortedColumns(schema)
	values = append(values, id)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		pq.QuoteIdentifier(schema.TableName),
		strings.Join(sets, ", "),
		pq.QuoteIdentifier(resource.IDField),
		counter,
		quoteColumns(returnCols),
	)

	row := s.db.QueryRowContext(ctx, query, values...)
	updated, err := scanRowWithColumns(row, returnCols)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", resourceType, ConvertDBError(err))
	}
	return updated, nil
}

// Delete removes a record by primary key. Deleting a missing record is
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, resourceType, id string) error {
	schema, err := s.schema(resourceType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pq.QuoteIdentifier(schema.TableName),
		pq.QuoteIdentifier(resource.IDField))

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", resourceType, ConvertDBError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", resourceType, id, ErrNotFound)
	}
	return nil
}

// Exists checks whether a record with the given primary key exists
func (s *Store) Exists(ctx context.Context, resourceType, id string) (bool, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)",
		pq.QuoteIdentifier(schema.TableName),
		pq.QuoteIdentifier(resource.IDField))

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", resourceType, ConvertDBError(err))
	}
	return exists, nil
}

// Count returns the number of records matching the conditions
func (s *Store) Count(ctx context.Context, resourceType string, conditions resource.Record) (int, error) {
	schema, err := s.schema(resourceType)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(schema.TableName))

	var values []any
	if len(conditions) > 0 {
		var clauses []string
		counter := 1
		for _, field := range sortedKeys(conditions) {
			if err := validateColumn(schema, field); err != nil {
				return 0, err
			}
			clauses = append(clauses, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(field), counter))
			values = append(values, conditions[field])
			counter++
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, values...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", resourceType, ConvertDBError(err))
	}
	return count, nil
}

// populateAutoFields fills in the primary key and timestamp columns
func populateAutoFields(schema *resource.Schema, record resource.Record, create bool) {
	now := time.Now()

	if create {
		if _, ok := record[resource.IDField]; !ok {
			record[resource.IDField] = uuid.NewString()
		}
		if schema.HasField("created_at") {
			if _, ok := record["created_at"]; !ok {
				record["created_at"] = now
			}
		}
	}
	if schema.HasField("updated_at") {
		record["updated_at"] = now
	}
}

// sortedKeys returns the record's keys in sorted order for deterministic SQL
func sortedKeys(record resource.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
