// Package store persists resource records. It executes schema-driven SQL
// against PostgreSQL (via pgx) or SQLite and implements the persisted-state
// lookups the hook engine performs mid-traversal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/resource"
)

// Store executes CRUD operations using the registered schema metadata.
// Records cross the boundary as plain maps keyed by column name.
type Store struct {
	db       *sql.DB
	registry *resource.Registry
	logger   *zap.Logger
}

// New creates a store over an open database handle
func New(db *sql.DB, registry *resource.Registry, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, registry: registry, logger: logger}
}

// OpenPostgres opens a pgx-backed connection pool and verifies connectivity
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a file-backed SQLite database, mainly for local
// development and tests.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTransaction runs fn inside a transaction, committing on nil and
// rolling back on error.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// schema resolves the schema for a resource type
func (s *Store) schema(resourceType string) (*resource.Schema, error) {
	schema, ok := s.registry.Get(resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", resource.ErrUnknownResource, resourceType)
	}
	return schema, nil
}

// validateColumn checks that a field names an actual database column and not
// a relationship, which cannot appear in a WHERE clause.
func validateColumn(schema *resource.Schema, field string) error {
	if schema.HasRelationship(field) {
		return fmt.Errorf("%s: %w", field, ErrRelationshipField)
	}
	if !schema.HasField(field) {
		return fmt.Errorf("%s: %w", field, ErrFieldNotFound)
	}
	return nil
}

// sortedColumns returns the schema's column names in sorted order so
// generated SQL is deterministic.
func sortedColumns(schema *resource.Schema) []string {
	cols := schema.Columns()
	sort.Strings(cols)
	return cols
}

// quoteColumns quotes each identifier and joins with commas
func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// placeholders renders "$start, $start+1, ..." for n values
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// anyValues widens a string slice to query arguments
func anyValues(ids []string) []any {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}
