package hooks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/weft-api/weft/internal/resource"
)

func newTestExecutor(registry *resource.Registry, hooks *Registry, resolver ValueResolver) *Executor {
	return NewExecutor(registry, hooks, resolver, nil)
}

func TestExecutor_UnknownResourceType(t *testing.T) {
	e := newTestExecutor(testModel(), NewRegistry(), nil)

	_, err := e.BeforeCreate(context.Background(), "Widget", nil, PipelinePost)
	if !errors.Is(err, ErrUnknownResourceType) {
		t.Errorf("expected ErrUnknownResourceType, got %v", err)
	}
	if err := e.BeforeRead(context.Background(), "Widget", PipelineGet, nil, nil); !errors.Is(err, ErrUnknownResourceType) {
		t.Errorf("expected ErrUnknownResourceType, got %v", err)
	}
}

func TestExecutor_NoHooksRegistered_IsNoOp(t *testing.T) {
	e := newTestExecutor(testModel(), NewRegistry(), nil)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	got, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{article}, PipelinePatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || resource.RecordID(got[0]) != "1" {
		t.Errorf("entity set altered without any hook registered: %v", got)
	}
	if article["owner"] == nil {
		t.Error("object graph altered without any hook registered")
	}
}

func TestExecutor_BeforeCreate_FiltersRootSet(t *testing.T) {
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		BeforeCreate: func(_ context.Context, affected *EntitySet, _ Pipeline) ([]resource.Record, error) {
			var kept []resource.Record
			for _, rec := range affected.Entities() {
				if rec["title"] != "spam" {
					kept = append(kept, rec)
				}
			}
			return kept, nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	got, err := e.BeforeCreate(context.Background(), "Article", []resource.Record{
		{"id": "1", "title": "ok"},
		{"id": "2", "title": "spam"},
	}, PipelinePost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0]["title"] != "ok" {
		t.Errorf("root set not filtered by BeforeCreate: %v", got)
	}
}

func TestExecutor_BeforeCreate_HookErrorStopsExecution(t *testing.T) {
	boom := errors.New("title is immutable")
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		BeforeCreate: func(context.Context, *EntitySet, Pipeline) ([]resource.Record, error) {
			return nil, boom
		},
	})
	personFired := false
	hooks.Register("Person", &Container{
		BeforeUpdateRelationship: func(_ context.Context, ids []string, _ *RelationshipSet, _ Pipeline) ([]string, error) {
			personFired = true
			return ids, nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	_, err := e.BeforeCreate(context.Background(), "Article", []resource.Record{article}, PipelinePost)
	if !errors.Is(err, boom) {
		t.Fatalf("hook error not surfaced verbatim: %v", err)
	}
	if personFired {
		t.Error("nested hooks fired after the root hook failed")
	}
}

// Excluding the newly assigned right-side entity detaches it from the
// requesting entity: the article goes through with owner set to nil.
func TestExecutor_BeforeUpdate_RelationshipHookExclusionNullsToOne(t *testing.T) {
	hooks := NewRegistry()
	hooks.Register("Person", &Container{
		BeforeUpdateRelationship: func(_ context.Context, ids []string, affected *RelationshipSet, _ Pipeline) ([]string, error) {
			if len(affected.Groups()) != 1 || affected.Groups()[0].Relationship.Name != "articles" {
				t.Errorf("relationship set not keyed by the inverse attribute: %v", affected.Groups())
			}
			return nil, nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	got, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{article}, PipelinePatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("root set must survive a nested exclusion, got %d records", len(got))
	}
	if article["owner"] != nil {
		t.Errorf("excluded owner still attached: %v", article["owner"])
	}
}

// Reassigning a to-one relationship fires three hook phases in a fixed
// order: the relationship hook on the new holder, the implicit hook for the
// previous holder resolved from persisted state, and the implicit hook for
// the entity whose conflicting reference the assignment severs.
func TestExecutor_BeforeUpdate_ImplicitUpdateFiringOrder(t *testing.T) {
	var events []string

	resolver := &fakeResolver{
		dbValues: map[string][]resource.Record{
			"Article": {{"id": "7", "owner": resource.Record{"id": "5"}}},
		},
		implicit: func(rel *resource.Relationship, rightIDs, excludeLeftIDs []string) []resource.Record {
			if rel.Name != "owner" {
				return nil
			}
			if len(rightIDs) != 1 || rightIDs[0] != "9" {
				t.Errorf("unexpected rightIDs: %v", rightIDs)
			}
			if len(excludeLeftIDs) != 1 || excludeLeftIDs[0] != "7" {
				t.Errorf("request entities not excluded: %v", excludeLeftIDs)
			}
			return []resource.Record{{"id": "8"}}
		},
	}

	hooks := NewRegistry()
	hooks.Register("Person", &Container{
		BeforeUpdateRelationship: func(_ context.Context, ids []string, _ *RelationshipSet, _ Pipeline) ([]string, error) {
			events = append(events, fmt.Sprintf("update_rel:Person:%v", ids))
			return ids, nil
		},
		BeforeImplicitUpdateRelationship: func(_ context.Context, affected *RelationshipSet, _ Pipeline) error {
			g := affected.Groups()[0]
			events = append(events, fmt.Sprintf("implicit:%s.%s:%v", g.Relationship.LeftType, g.Relationship.Name, recordIDs(g.Records)))
			return nil
		},
	})
	hooks.Register("Article", &Container{
		BeforeImplicitUpdateRelationship: func(_ context.Context, affected *RelationshipSet, _ Pipeline) error {
			g := affected.Groups()[0]
			events = append(events, fmt.Sprintf("implicit:%s.%s:%v", g.Relationship.LeftType, g.Relationship.Name, recordIDs(g.Records)))
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	article := resource.Record{"id": "7", "owner": resource.Record{"id": "9"}}
	if _, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{article}, PipelinePatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"update_rel:Person:[9]",
		"implicit:Person.articles:[5]",
		"implicit:Article.owner:[8]",
	}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("got events %v, want %v", events, want)
		}
	}
}

// Creating never has previous holders: the persisted-state lookup is skipped
// while the conflicting-holder check still runs.
func TestExecutor_BeforeCreate_SkipsPreviousHolderLookup(t *testing.T) {
	resolver := &fakeResolver{
		implicit: func(*resource.Relationship, []string, []string) []resource.Record { return nil },
	}
	hooks := NewRegistry()
	hooks.Register("Person", &Container{
		BeforeImplicitUpdateRelationship: func(context.Context, *RelationshipSet, Pipeline) error { return nil },
	})
	hooks.Register("Article", &Container{
		BeforeImplicitUpdateRelationship: func(context.Context, *RelationshipSet, Pipeline) error { return nil },
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	if _, err := e.BeforeCreate(context.Background(), "Article", []resource.Record{article}, PipelinePost); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolver.dbValueCalls != 0 {
		t.Errorf("persisted state loaded on a create pipeline: %d calls", resolver.dbValueCalls)
	}
	if resolver.implicitCalls != 1 {
		t.Errorf("expected 1 conflicting-holder lookup, got %d", resolver.implicitCalls)
	}
}

// A relationship without a declared inverse cannot resolve its implicitly
// affected entities: the engine skips silently instead of failing.
func TestExecutor_BeforeUpdate_NoInverseSkipsImplicitHooks(t *testing.T) {
	resolver := &fakeResolver{}
	implicitFired := false
	hooks := NewRegistry()
	hooks.Register("Person", &Container{
		BeforeImplicitUpdateRelationship: func(context.Context, *RelationshipSet, Pipeline) error {
			implicitFired = true
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	article := resource.Record{"id": "1", "reviewer": resource.Record{"id": "10"}}
	if _, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{article}, PipelinePatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if implicitFired {
		t.Error("implicit hook fired for a relationship without a declared inverse")
	}
	if resolver.dbValueCalls != 0 || resolver.implicitCalls != 0 {
		t.Error("resolver consulted for a relationship without a declared inverse")
	}
}

func TestExecutor_BeforeUpdate_DatabaseValueDiff(t *testing.T) {
	resolver := &fakeResolver{
		dbValues: map[string][]resource.Record{
			"Article": {{"id": "1", "title": "old title"}},
		},
	}
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		DatabaseValues: []Kind{BeforeUpdate},
		BeforeUpdate: func(_ context.Context, diff *EntityDiff, _ Pipeline) ([]resource.Record, error) {
			if !diff.HasDatabaseValues() {
				t.Error("database values not loaded despite opt-in")
			}
			rec := diff.Entities()[0]
			if !diff.Changed(rec, "title") {
				t.Error("changed field not detected")
			}
			if diff.Changed(rec, "id") {
				t.Error("unchanged field reported as changed")
			}
			return diff.Entities(), nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	article := resource.Record{"id": "1", "title": "new title"}
	if _, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{article}, PipelinePatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolver.dbValueCalls != 1 {
		t.Errorf("expected exactly 1 db-value load, got %d", resolver.dbValueCalls)
	}
}

func TestExecutor_BeforeUpdate_NoOptInSkipsDBValues(t *testing.T) {
	resolver := &fakeResolver{}
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		BeforeUpdate: func(_ context.Context, diff *EntityDiff, _ Pipeline) ([]resource.Record, error) {
			if diff.HasDatabaseValues() {
				t.Error("database values loaded without opt-in")
			}
			return diff.Entities(), nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	if _, err := e.BeforeUpdate(context.Background(), "Article", []resource.Record{{"id": "1"}}, PipelinePatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolver.dbValueCalls != 0 {
		t.Errorf("resolver consulted without opt-in: %d calls", resolver.dbValueCalls)
	}
}

func TestExecutor_BeforeRead_IncludeChainOncePerType(t *testing.T) {
	articleCalls := 0
	personCalls := 0
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		BeforeRead: func(_ context.Context, _ Pipeline, nested bool, ids []string) error {
			articleCalls++
			if nested {
				t.Error("root type fired as nested")
			}
			if len(ids) != 1 || ids[0] != "1" {
				t.Errorf("root ids not forwarded: %v", ids)
			}
			return nil
		},
	})
	hooks.Register("Person", &Container{
		BeforeRead: func(_ context.Context, _ Pipeline, nested bool, ids []string) error {
			personCalls++
			if !nested {
				t.Error("included type fired as root")
			}
			if ids != nil {
				t.Errorf("included types have no id filter, got %v", ids)
			}
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	// owner.articles revisits Article; the chain fires each type once.
	err := e.BeforeRead(context.Background(), "Article", PipelineGetSingle, []string{"owner.articles", "owner"}, []string{"1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if articleCalls != 1 {
		t.Errorf("Article fired %d times, want 1", articleCalls)
	}
	if personCalls != 1 {
		t.Errorf("Person fired %d times, want 1", personCalls)
	}
}

func TestExecutor_BeforeRead_UnknownInclude(t *testing.T) {
	e := newTestExecutor(testModel(), NewRegistry(), nil)
	err := e.BeforeRead(context.Background(), "Article", PipelineGet, []string{"nonexistent"}, nil)
	if !errors.Is(err, resource.ErrUnknownRelationship) {
		t.Errorf("expected ErrUnknownRelationship, got %v", err)
	}
}

func TestExecutor_BeforeDelete_SubstitutesPersistedValues(t *testing.T) {
	resolver := &fakeResolver{
		dbValues: map[string][]resource.Record{
			"Article": {{"id": "1", "title": "persisted"}},
		},
	}
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		DatabaseValues: []Kind{BeforeDelete},
		BeforeDelete: func(_ context.Context, affected *EntitySet, _ Pipeline) ([]resource.Record, error) {
			if affected.Entities()[0]["title"] != "persisted" {
				t.Errorf("hook did not receive the persisted version: %v", affected.Entities()[0])
			}
			return affected.Entities(), nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	if _, err := e.BeforeDelete(context.Background(), "Article", []resource.Record{{"id": "1"}}, PipelineDelete); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Deleting entities notifies, per inbound relationship, the entities
// elsewhere in the model whose reference is about to be severed.
func TestExecutor_BeforeDelete_InboundImplicitUpdates(t *testing.T) {
	resolver := &fakeResolver{
		implicit: func(rel *resource.Relationship, rightIDs, excludeLeftIDs []string) []resource.Record {
			if rel.Name != "owner" {
				return nil
			}
			if len(rightIDs) != 1 || rightIDs[0] != "10" {
				t.Errorf("deleted ids not forwarded: %v", rightIDs)
			}
			return []resource.Record{{"id": "1"}}
		},
	}

	var fired []string
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		BeforeImplicitUpdateRelationship: func(_ context.Context, affected *RelationshipSet, _ Pipeline) error {
			g := affected.Groups()[0]
			fired = append(fired, fmt.Sprintf("%s.%s:%v", g.Relationship.LeftType, g.Relationship.Name, recordIDs(g.Records)))
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, resolver)

	got, err := e.BeforeDelete(context.Background(), "Person", []resource.Record{{"id": "10"}}, PipelineDelete)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("deleted set altered: %v", got)
	}
	if len(fired) != 1 || fired[0] != "Article.owner:[1]" {
		t.Errorf("inbound implicit updates fired %v, want [Article.owner:[1]]", fired)
	}
}

func TestExecutor_OnReturn_FiltersRootSet(t *testing.T) {
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		OnReturn: func(_ context.Context, entities []resource.Record, _ Pipeline) ([]resource.Record, error) {
			var visible []resource.Record
			for _, rec := range entities {
				if rec["draft"] != true {
					visible = append(visible, rec)
				}
			}
			return visible, nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	got, err := e.OnReturn(context.Background(), "Article", []resource.Record{
		{"id": "1"},
		{"id": "2", "draft": true},
	}, PipelineGet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || resource.RecordID(got[0]) != "1" {
		t.Errorf("response set not filtered: %v", got)
	}
}

// Filtering a nested many-to-many collection drops exactly the excluded
// members from the serialized graph.
func TestExecutor_OnReturn_FiltersNestedCollection(t *testing.T) {
	hooks := NewRegistry()
	hooks.Register("Tag", &Container{
		OnReturn: func(_ context.Context, entities []resource.Record, _ Pipeline) ([]resource.Record, error) {
			var visible []resource.Record
			for _, rec := range entities {
				if rec["hidden"] != true {
					visible = append(visible, rec)
				}
			}
			return visible, nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	article := resource.Record{"id": "1", "tags": []resource.Record{
		{"id": "t1"},
		{"id": "t2", "hidden": true},
	}}
	got, err := e.OnReturn(context.Background(), "Article", []resource.Record{article}, PipelineGetSingle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("root set altered: %v", got)
	}
	tags := article["tags"].([]resource.Record)
	if len(tags) != 1 || resource.RecordID(tags[0]) != "t1" {
		t.Errorf("nested collection not filtered: %v", tags)
	}
}

func TestExecutor_OnReturn_SingleCardinalityViolation(t *testing.T) {
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		OnReturn: func(_ context.Context, entities []resource.Record, _ Pipeline) ([]resource.Record, error) {
			return append(entities, resource.Record{"id": "extra"}), nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	_, err := e.OnReturn(context.Background(), "Article", []resource.Record{{"id": "1"}}, PipelineGetSingle)
	if !errors.Is(err, ErrSingleCardinality) {
		t.Errorf("expected ErrSingleCardinality, got %v", err)
	}

	// Multi-resource pipelines allow any cardinality.
	if _, err := e.OnReturn(context.Background(), "Article", []resource.Record{{"id": "1"}}, PipelineGet); err != nil {
		t.Errorf("unexpected error on collection pipeline: %v", err)
	}
}

func TestExecutor_AfterRead_RootAndNested(t *testing.T) {
	var fired []string
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		AfterRead: func(_ context.Context, entities []resource.Record, _ Pipeline, nested bool) error {
			fired = append(fired, fmt.Sprintf("Article:%v:nested=%t", recordIDs(entities), nested))
			return nil
		},
	})
	hooks.Register("Person", &Container{
		AfterRead: func(_ context.Context, entities []resource.Record, _ Pipeline, nested bool) error {
			fired = append(fired, fmt.Sprintf("Person:%v:nested=%t", recordIDs(entities), nested))
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	if err := e.AfterRead(context.Background(), "Article", []resource.Record{article}, PipelineGetSingle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Article:[1]:nested=false", "Person:[10]:nested=true"}
	if len(fired) != 2 || fired[0] != want[0] || fired[1] != want[1] {
		t.Errorf("got %v, want %v", fired, want)
	}
}

func TestExecutor_AfterCreate_NotifiesRelatedEntities(t *testing.T) {
	createFired := false
	var relFired []string
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		AfterCreate: func(_ context.Context, entities []resource.Record, _ Pipeline) error {
			createFired = true
			if len(entities) != 1 {
				t.Errorf("expected 1 created entity, got %d", len(entities))
			}
			return nil
		},
	})
	hooks.Register("Person", &Container{
		AfterUpdateRelationship: func(_ context.Context, affected *RelationshipSet, _ Pipeline) error {
			g := affected.Groups()[0]
			relFired = append(relFired, fmt.Sprintf("%s.%s:%v", g.Relationship.LeftType, g.Relationship.Name, recordIDs(g.Records)))
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	if err := e.AfterCreate(context.Background(), "Article", []resource.Record{article}, PipelinePost); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !createFired {
		t.Error("root AfterCreate did not fire")
	}
	if len(relFired) != 1 || relFired[0] != "Person.articles:[10]" {
		t.Errorf("related-entity notification fired %v, want [Person.articles:[10]]", relFired)
	}
}

func TestExecutor_AfterDelete_ReportsOutcome(t *testing.T) {
	var outcomes []bool
	hooks := NewRegistry()
	hooks.Register("Article", &Container{
		AfterDelete: func(_ context.Context, _ []resource.Record, _ Pipeline, succeeded bool) error {
			outcomes = append(outcomes, succeeded)
			return nil
		},
	})
	e := newTestExecutor(testModel(), hooks, nil)

	ctx := context.Background()
	records := []resource.Record{{"id": "1"}}
	if err := e.AfterDelete(ctx, "Article", records, PipelineDelete, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.AfterDelete(ctx, "Article", records, PipelineDelete, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 || !outcomes[0] || outcomes[1] {
		t.Errorf("delete outcomes not forwarded: %v", outcomes)
	}
}
