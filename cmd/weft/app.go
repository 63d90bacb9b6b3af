package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/hooks"
	"github.com/weft-api/weft/internal/resource"
)

// buildRegistry declares the sample blog model served by default. Projects
// embedding Weft register their own schemas the same way.
func buildRegistry() (*resource.Registry, error) {
	registry := resource.NewRegistry()

	article := resource.NewSchema("Article").
		AddField("title", resource.FieldString, false).
		AddField("body", resource.FieldText, true).
		AddField("published", resource.FieldBool, false).
		AddField("owner_id", resource.FieldUUID, true).
		AddField("created_at", resource.FieldTimestamp, false).
		AddField("updated_at", resource.FieldTimestamp, false).
		AddRelationship(&resource.Relationship{
			Name:       "owner",
			Type:       resource.BelongsTo,
			RightType:  "Person",
			ForeignKey: "owner_id",
			Inverse:    "articles",
			Nullable:   true,
		}).
		AddRelationship(&resource.Relationship{
			Name:       "comments",
			Type:       resource.HasMany,
			RightType:  "Comment",
			ForeignKey: "article_id",
			Inverse:    "article",
		}).
		AddRelationship(&resource.Relationship{
			Name:      "tags",
			Type:      resource.HasManyThrough,
			RightType: "Tag",
			Through:   "ArticleTag",
			Inverse:   "articles",
		})

	person := resource.NewSchema("Person").
		AddField("name", resource.FieldString, false).
		AddField("email", resource.FieldString, false).
		AddField("created_at", resource.FieldTimestamp, false).
		AddField("updated_at", resource.FieldTimestamp, false).
		AddRelationship(&resource.Relationship{
			Name:       "articles",
			Type:       resource.HasMany,
			RightType:  "Article",
			ForeignKey: "owner_id",
			Inverse:    "owner",
		})

	comment := resource.NewSchema("Comment").
		AddField("body", resource.FieldText, false).
		AddField("article_id", resource.FieldUUID, false).
		AddField("author_id", resource.FieldUUID, true).
		AddField("created_at", resource.FieldTimestamp, false).
		AddRelationship(&resource.Relationship{
			Name:       "article",
			Type:       resource.BelongsTo,
			RightType:  "Article",
			ForeignKey: "article_id",
			Inverse:    "comments",
		}).
		AddRelationship(&resource.Relationship{
			Name:       "author",
			Type:       resource.BelongsTo,
			RightType:  "Person",
			ForeignKey: "author_id",
			Nullable:   true,
		})

	tag := resource.NewSchema("Tag").
		AddField("name", resource.FieldString, false).
		AddRelationship(&resource.Relationship{
			Name:      "articles",
			Type:      resource.HasManyThrough,
			RightType: "Article",
			Through:   "ArticleTag",
			Inverse:   "tags",
		})

	articleTag := resource.NewSchema("ArticleTag").
		AddField("article_id", resource.FieldUUID, false).
		AddField("tag_id", resource.FieldUUID, false)

	registry.MustRegister(article, person, comment, tag, articleTag)
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildHooks wires the sample model's lifecycle hooks: unpublished articles
// are hidden from collection responses, and comment authors are notified in
// the log when their comment's article disappears.
func buildHooks(logger *zap.Logger) *hooks.Registry {
	registry := hooks.NewRegistry()

	registry.Register("Article", &hooks.Container{
		OnReturn: func(ctx context.Context, entities []resource.Record, pipeline hooks.Pipeline) ([]resource.Record, error) {
			if pipeline != hooks.PipelineGet {
				return entities, nil
			}
			visible := make([]resource.Record, 0, len(entities))
			for _, entity := range entities {
				if published, ok := entity["published"].(bool); ok && !published {
					continue
				}
				visible = append(visible, entity)
			}
			return visible, nil
		},
	})

	registry.Register("Comment", &hooks.Container{
		BeforeImplicitUpdateRelationship: func(ctx context.Context, affected *hooks.RelationshipSet, pipeline hooks.Pipeline) error {
			for _, group := range affected.Groups() {
				logger.Info("comments detached from article",
					zap.String("relationship", group.Relationship.Name),
					zap.Int("comments", len(group.Records)))
			}
			return nil
		},
	})

	return registry
}
