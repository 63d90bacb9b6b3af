package hooks

import (
	"context"

	"github.com/weft-api/weft/internal/resource"
)

// testModel builds the Article/Person/Tag model used across the engine
// tests. Article.owner has a declared inverse (Person.articles);
// Article.reviewer deliberately has none.
func testModel() *resource.Registry {
	article := resource.NewSchema("Article").
		AddField("title", resource.FieldString, false).
		AddField("owner_id", resource.FieldUUID, true).
		AddField("reviewer_id", resource.FieldUUID, true)
	article.AddRelationship(&resource.Relationship{
		Name: "owner", Type: resource.HasOne, RightType: "Person",
		ForeignKey: "owner_id", Inverse: "articles",
	})
	article.AddRelationship(&resource.Relationship{
		Name: "reviewer", Type: resource.HasOne, RightType: "Person",
		ForeignKey: "reviewer_id",
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
	tag.AddRelationship(&resource.Relationship{
		Name: "articles", Type: resource.HasManyThrough, RightType: "Article",
		Through: "ArticleTag", Inverse: "tags",
	})

	registry := resource.NewRegistry()
	registry.MustRegister(article, person, tag, resource.NewSchema("ArticleTag"))
	return registry
}

// fakeResolver is an in-memory ValueResolver. dbValues holds the persisted
// records per resource type, relationships already embedded. implicit, when
// set, answers LoadImplicitlyAffected.
type fakeResolver struct {
	dbValues map[string][]resource.Record
	implicit func(rel *resource.Relationship, rightIDs, excludeLeftIDs []string) []resource.Record

	dbValueCalls  int
	implicitCalls int
}

func (f *fakeResolver) LoadDBValues(_ context.Context, resourceType string, ids []string, _ []*resource.Relationship) ([]resource.Record, error) {
	f.dbValueCalls++
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var result []resource.Record
	for _, rec := range f.dbValues[resourceType] {
		if want[resource.RecordID(rec)] {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (f *fakeResolver) LoadImplicitlyAffected(_ context.Context, rel *resource.Relationship, rightIDs, excludeLeftIDs []string) ([]resource.Record, error) {
	f.implicitCalls++
	if f.implicit == nil {
		return nil, nil
	}
	return f.implicit(rel, rightIDs, excludeLeftIDs), nil
}

func recordIDs(records []resource.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, resource.RecordID(rec))
	}
	return ids
}
