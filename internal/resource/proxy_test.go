package resource

import (
	"testing"
)

func ownerProxy(t *testing.T) *Proxy {
	t.Helper()
	registry := testRegistry(t)
	proxy, err := registry.Proxy("Article", "owner")
	if err != nil {
		t.Fatalf("Proxy failed: %v", err)
	}
	return proxy
}

func tagsProxy(t *testing.T) *Proxy {
	t.Helper()
	registry := testRegistry(t)
	proxy, err := registry.Proxy("Article", "tags")
	if err != nil {
		t.Fatalf("Proxy failed: %v", err)
	}
	return proxy
}

func TestProxy_GetValue_HasOne(t *testing.T) {
	proxy := ownerProxy(t)

	person := Record{"id": "10", "name": "sam"}
	article := Record{"id": "1", "owner": person}

	v := proxy.GetValue(article)
	if v.IsCollection() {
		t.Error("has_one value reported as collection")
	}
	if v.One() == nil || RecordID(v.One()) != "10" {
		t.Errorf("unexpected value: %v", v.One())
	}
	if many := v.Many(); len(many) != 1 {
		t.Errorf("Many() on to-one should yield one record, got %d", len(many))
	}
}

func TestProxy_GetValue_Unset(t *testing.T) {
	proxy := ownerProxy(t)

	v := proxy.GetValue(Record{"id": "1"})
	if !v.IsZero() {
		t.Error("expected zero value for unset relationship")
	}
	if v.Many() != nil {
		t.Error("expected nil Many() for unset relationship")
	}
}

func TestProxy_GetValue_HasMany(t *testing.T) {
	proxy := tagsProxy(t)

	article := Record{"id": "1", "tags": []Record{
		{"id": "1", "name": "go"},
		{"id": "2", "name": "api"},
	}}

	v := proxy.GetValue(article)
	if !v.IsCollection() {
		t.Error("has_many value not reported as collection")
	}
	if len(v.Many()) != 2 {
		t.Errorf("expected 2 tags, got %d", len(v.Many()))
	}
}

func TestProxy_SetValue(t *testing.T) {
	one := ownerProxy(t)
	many := tagsProxy(t)

	article := Record{"id": "1"}

	one.SetValue(article, []Record{{"id": "10"}})
	if RecordID(article["owner"].(Record)) != "10" {
		t.Error("SetValue did not assign has_one value")
	}

	one.SetValue(article, nil)
	if article["owner"] != nil {
		t.Error("SetValue(nil) did not clear has_one value")
	}

	many.SetValue(article, []Record{{"id": "1"}, {"id": "2"}})
	if len(article["tags"].([]Record)) != 2 {
		t.Error("SetValue did not assign has_many value")
	}
}

func TestProxy_Remove(t *testing.T) {
	one := ownerProxy(t)
	many := tagsProxy(t)

	owner := Record{"id": "10"}
	article := Record{"id": "1", "owner": owner, "tags": []Record{
		{"id": "1"}, {"id": "2"},
	}}

	// Removing a non-matching member leaves the to-one value intact
	one.Remove(article, Record{"id": "99"})
	if article["owner"] == nil {
		t.Error("Remove detached a non-matching has_one value")
	}

	one.Remove(article, owner)
	if article["owner"] != nil {
		t.Error("Remove did not null the has_one value")
	}

	many.Remove(article, Record{"id": "1"})
	tags := article["tags"].([]Record)
	if len(tags) != 1 || RecordID(tags[0]) != "2" {
		t.Errorf("Remove did not drop exactly the matching member: %v", tags)
	}
}

func TestProxy_Retain_SubstitutesKeptInstance(t *testing.T) {
	proxy := tagsProxy(t)

	article := Record{"id": "1", "tags": []Record{
		{"id": "1", "name": "go"},
		{"id": "2", "name": "drop-me"},
	}}

	// The kept instance carries a mutation; Retain must surface it.
	mutated := Record{"id": "1", "name": "golang"}
	proxy.Retain(article, map[string]Record{"1": mutated})

	tags := article["tags"].([]Record)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag after Retain, got %d", len(tags))
	}
	if tags[0]["name"] != "golang" {
		t.Errorf("Retain did not substitute the kept instance: %v", tags[0])
	}
}

func TestProxy_Inverse(t *testing.T) {
	proxy := ownerProxy(t)

	inv, ok := proxy.Inverse()
	if !ok {
		t.Fatal("expected inverse proxy")
	}
	if inv.LeftType() != "Person" || inv.Name() != "articles" {
		t.Errorf("wrong inverse proxy: %s.%s", inv.LeftType(), inv.Name())
	}
}
