package hooks

import (
	"testing"

	"github.com/weft-api/weft/internal/resource"
)

func personLayerNode(t *testing.T, articles ...resource.Record) *Node {
	t.Helper()
	trav := newTraversal(testModel())
	root := trav.rootNode("Article", articles)
	layer := trav.nextLayer(trav.rootLayer(root))
	for _, n := range layer.Nodes() {
		if n.ResourceType() == "Person" {
			return n
		}
	}
	t.Fatal("no Person node produced")
	return nil
}

func TestNode_UpdateUnique_IntersectsAndSubstitutes(t *testing.T) {
	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10", "name": "sam"}}
	node := personLayerNode(t, article)

	// The hook returns a mutated instance plus an id the node never held.
	node.UpdateUnique([]resource.Record{
		{"id": "10", "name": "renamed"},
		{"id": "999", "name": "intruder"},
	})

	records := node.UniqueRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 record after UpdateUnique, got %d", len(records))
	}
	if records[0]["name"] != "renamed" {
		t.Error("UpdateUnique did not substitute the hook's instance")
	}
	if node.Contains("999") {
		t.Error("UpdateUnique admitted a record outside the original set")
	}
}

// Propagation invariant: excluding an entity at layer N detaches it from
// every layer N-1 entity that referenced it.
func TestNode_Reassign_DetachesExcluded(t *testing.T) {
	owner := resource.Record{"id": "10"}
	keptOwner := resource.Record{"id": "11"}
	article1 := resource.Record{"id": "1", "owner": owner}
	article2 := resource.Record{"id": "2", "owner": keptOwner}

	node := personLayerNode(t, article1, article2)
	node.UpdateUniqueIDs([]string{"11"})
	node.Reassign()

	if article1["owner"] != nil {
		t.Error("excluded owner still referenced by article1")
	}
	got, ok := article2["owner"].(resource.Record)
	if !ok || resource.RecordID(got) != "11" {
		t.Error("kept owner lost from article2")
	}
}

func TestNode_Reassign_CollectionLosesExactlyExcludedMember(t *testing.T) {
	trav := newTraversal(testModel())
	article := resource.Record{"id": "1", "tags": []resource.Record{
		{"id": "t1", "name": "keep"},
		{"id": "t2", "name": "drop"},
	}}
	root := trav.rootNode("Article", []resource.Record{article})
	layer := trav.nextLayer(trav.rootLayer(root))

	tagNode := layer.Nodes()[0]
	tagNode.UpdateUniqueIDs([]string{"t1"})
	tagNode.Reassign()

	tags := article["tags"].([]resource.Record)
	if len(tags) != 1 || resource.RecordID(tags[0]) != "t1" {
		t.Errorf("collection did not lose exactly the excluded member: %v", tags)
	}
}

func TestNode_RelationshipSet_InverseKeyed(t *testing.T) {
	article := resource.Record{"id": "1", "owner": resource.Record{"id": "10"}}
	node := personLayerNode(t, article)

	set := node.relationshipSet(true)
	groups := set.Groups()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	rel := groups[0].Relationship
	if rel.LeftType != "Person" || rel.Name != "articles" {
		t.Errorf("grouping not keyed by the inverse attribute: %s", rel)
	}
}

func TestNode_RelationshipSet_OmitsProxiesWithoutInverse(t *testing.T) {
	article := resource.Record{"id": "1", "reviewer": resource.Record{"id": "10"}}
	node := personLayerNode(t, article)

	set := node.relationshipSet(true)
	if len(set.Groups()) != 0 {
		t.Error("inverse-keyed grouping must omit relationships without a declared inverse")
	}
}

func TestEdgeSet_Groups_AggregatesPerProxy(t *testing.T) {
	owner1 := resource.Record{"id": "10"}
	owner2 := resource.Record{"id": "11"}
	node := personLayerNode(t,
		resource.Record{"id": "1", "owner": owner1},
		resource.Record{"id": "2", "owner": owner2},
	)

	groups := node.FromPreviousLayer().Groups()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group for the owner proxy, got %d", len(groups))
	}
	if len(groups[0].Left) != 2 || len(groups[0].Right) != 2 {
		t.Errorf("group did not aggregate both edges: %d left, %d right",
			len(groups[0].Left), len(groups[0].Right))
	}
}

func TestLayer_IsEmpty(t *testing.T) {
	trav := newTraversal(testModel())
	root := trav.rootNode("Article", nil)
	if layer := trav.rootLayer(root); !layer.IsEmpty() {
		t.Error("layer with no entities should be empty")
	}
}
