package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-api/weft/internal/resource"
)

func testRegistry() *resource.Registry {
	article := resource.NewSchema("Article").
		AddField("title", resource.FieldString, false).
		AddField("owner_id", resource.FieldUUID, true).
		AddField("created_at", resource.FieldTimestamp, false).
		AddField("updated_at", resource.FieldTimestamp, false)
	article.AddRelationship(&resource.Relationship{
		Name: "owner", Type: resource.HasOne, RightType: "Person",
		ForeignKey: "owner_id", Inverse: "articles",
	})
	article.AddRelationship(&resource.Relationship{
		Name: "tags", Type: resource.HasManyThrough, RightType: "Tag",
		Through: "ArticleTag", Inverse: "articles",
	})

	person := resource.NewSchema("Person").
		AddField("name", resource.FieldString, false)
	person.AddRelationship(&resource.Relationship{
		Name: "articles", Type: resource.HasMany, RightType: "Article",
		ForeignKey: "owner_id", Inverse: "owner",
	})

	tag := resource.NewSchema("Tag").
		AddField("name", resource.FieldString, false)

	registry := resource.NewRegistry()
	registry.MustRegister(article, person, tag, resource.NewSchema("ArticleTag"))
	return registry
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, testRegistry(), nil), mock
}

// sorted Article columns as they appear in generated SQL
var articleColumns = []string{"created_at", "id", "owner_id", "title", "updated_at"}

func TestStore_Create(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "article" ("created_at", "id", "owner_id", "title", "updated_at") VALUES ($1, $2, $3, $4, $5) RETURNING "created_at", "id", "owner_id", "title", "updated_at"`,
	)).WillReturnRows(
		sqlmock.NewRows(articleColumns).AddRow(now, "a1", "p1", "Hello", now),
	)

	created, err := s.Create(context.Background(), "Article", resource.Record{
		"title":    "Hello",
		"owner_id": "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", resource.RecordID(created))
	assert.Equal(t, "Hello", created["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_DoesNotMutateInput(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("INSERT INTO").WillReturnRows(
		sqlmock.NewRows(articleColumns).AddRow(time.Now(), "a1", nil, "Hello", time.Now()),
	)

	data := resource.Record{"title": "Hello"}
	_, err := s.Create(context.Background(), "Article", data)
	require.NoError(t, err)
	assert.NotContains(t, data, "id")
	assert.NotContains(t, data, "created_at")
}

func TestStore_Find(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT "created_at", "id", "owner_id", "title", "updated_at" FROM "article" WHERE "id" = $1`,
	)).WithArgs("a1").WillReturnRows(
		sqlmock.NewRows(articleColumns).AddRow(time.Now(), "a1", "p1", "Hello", time.Now()),
	)

	found, err := s.Find(context.Background(), "Article", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", found["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Find_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)

	_, err := s.Find(context.Background(), "Article", "missing")
	assert.True(t, IsNotFound(err))
}

func TestStore_Find_UnknownResource(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Find(context.Background(), "Widget", "a1")
	assert.ErrorIs(t, err, resource.ErrUnknownResource)
}

func TestStore_FindAll_WithConditions(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT "created_at", "id", "owner_id", "title", "updated_at" FROM "article" WHERE "owner_id" = $1`,
	)).WithArgs("p1").WillReturnRows(
		sqlmock.NewRows(articleColumns).
			AddRow(time.Now(), "a1", "p1", "First", time.Now()).
			AddRow(time.Now(), "a2", "p1", "Second", time.Now()),
	)

	records, err := s.FindAll(context.Background(), "Article", resource.Record{"owner_id": "p1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "First", records[0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindAll_RejectsRelationshipCondition(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.FindAll(context.Background(), "Article", resource.Record{"owner": "p1"})
	assert.ErrorIs(t, err, ErrRelationshipField)

	_, err = s.FindAll(context.Background(), "Article", resource.Record{"bogus": "x"})
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestStore_Update(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`UPDATE "article" SET "title" = $1, "updated_at" = $2 WHERE "id" = $3 RETURNING "created_at", "id", "owner_id", "title", "updated_at"`,
	)).WillReturnRows(
		sqlmock.NewRows(articleColumns).AddRow(time.Now(), "a1", "p1", "Renamed", time.Now()),
	)

	updated, err := s.Update(context.Background(), "Article", "a1", resource.Record{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Update_IgnoresImmutableColumns(t *testing.T) {
	s, mock := newTestStore(t)

	// id and created_at never appear in the SET clause
	mock.ExpectQuery(regexp.QuoteMeta(
		`UPDATE "article" SET "title" = $1, "updated_at" = $2 WHERE "id" = $3`,
	)).WillReturnRows(
		sqlmock.NewRows(articleColumns).AddRow(time.Now(), "a1", nil, "Renamed", time.Now()),
	)

	_, err := s.Update(context.Background(), "Article", "a1", resource.Record{
		"id":         "evil",
		"created_at": time.Now(),
		"title":      "Renamed",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`DELETE FROM "article" WHERE "id" = $1`,
	)).WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), "Article", "a1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), "Article", "missing")
	assert.True(t, IsNotFound(err))
}

func TestStore_Exists(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT EXISTS(SELECT 1 FROM "article" WHERE "id" = $1)`,
	)).WithArgs("a1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.Exists(context.Background(), "Article", "a1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Count(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT COUNT(*) FROM "article" WHERE "owner_id" = $1`,
	)).WithArgs("p1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := s.Count(context.Background(), "Article", resource.Record{"owner_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_WithTransaction(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err := s.WithTransaction(context.Background(), func(tx *sql.Tx) error { return nil })
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = s.WithTransaction(context.Background(), func(tx *sql.Tx) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertDBError(t *testing.T) {
	assert.Nil(t, ConvertDBError(nil))
	assert.ErrorIs(t, ConvertDBError(sql.ErrNoRows), ErrNotFound)
	assert.Equal(t, assert.AnError, ConvertDBError(assert.AnError))
}
