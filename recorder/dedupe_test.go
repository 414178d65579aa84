package recorder

import (
	"testing"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

func snapshotEvent(ts int64, node map[string]any) replay.RecordedEvent {
	return replay.RecordedEvent{
		Type:      replay.EventFullSnapshot,
		Timestamp: ts,
		Data:      map[string]any{"node": node},
	}
}

func mutationEvent(ts int64, adds []any) replay.RecordedEvent {
	return replay.RecordedEvent{
		Type:      replay.EventIncrementalSnapshot,
		Timestamp: ts,
		Data:      map[string]any{"source": float64(0), "adds": adds},
	}
}

func childIDs(node map[string]any) []float64 {
	children, _ := node["childNodes"].([]any)
	ids := make([]float64, 0, len(children))
	for _, c := range children {
		if m, ok := c.(map[string]any); ok {
			if id, ok := m["id"].(float64); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func TestDedupeFullSnapshotDuplicateSibling(t *testing.T) {
	// A redundant re-render serialized node 2 twice in one snapshot;
	// only the first occurrence survives.
	ev := snapshotEvent(1000, map[string]any{
		"id": float64(1),
		"childNodes": []any{
			map[string]any{"id": float64(2), "tagName": "div"},
			map[string]any{"id": float64(2), "tagName": "div"},
			map[string]any{"id": float64(3)},
		},
	})

	out := DedupeFullSnapshot(ev)

	ids := childIDs(out.Data["node"].(map[string]any))
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("surviving child ids = %v, want [2 3]", ids)
	}
}

func TestDedupeFullSnapshotNestedDuplicate(t *testing.T) {
	// The duplicate sits deeper in the tree and carries a subtree of
	// its own; the whole subtree is dropped.
	ev := snapshotEvent(1000, map[string]any{
		"id": float64(1),
		"childNodes": []any{
			map[string]any{
				"id": float64(2),
				"childNodes": []any{
					map[string]any{"id": float64(3)},
				},
			},
			map[string]any{
				"id": float64(4),
				"childNodes": []any{
					map[string]any{
						"id": float64(3),
						"childNodes": []any{
							map[string]any{"id": float64(5)},
						},
					},
					map[string]any{"id": float64(6)},
				},
			},
		},
	})

	out := DedupeFullSnapshot(ev)

	node := out.Data["node"].(map[string]any)
	children := node["childNodes"].([]any)
	inner := children[1].(map[string]any)
	ids := childIDs(inner)
	if len(ids) != 1 || ids[0] != 6 {
		t.Fatalf("surviving nested child ids = %v, want [6]", ids)
	}
}

func TestDedupeFullSnapshotSeenSetPerEvent(t *testing.T) {
	// A later snapshot (a checkout) repeats ids from an earlier one.
	// Each snapshot is filtered against itself only, so the second
	// tree comes through whole.
	tree := func() map[string]any {
		return map[string]any{
			"id": float64(1),
			"childNodes": []any{
				map[string]any{"id": float64(2)},
				map[string]any{"id": float64(3)},
			},
		}
	}

	DedupeFullSnapshot(snapshotEvent(1000, tree()))
	out := DedupeFullSnapshot(snapshotEvent(5000, tree()))

	ids := childIDs(out.Data["node"].(map[string]any))
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("checkout snapshot child ids = %v, want [2 3]", ids)
	}
}

func addEntry(parent, id float64, attrs map[string]any) any {
	node := map[string]any{"id": id}
	if attrs != nil {
		node["attributes"] = attrs
	}
	return map[string]any{"parentId": parent, "node": node}
}

func TestDedupeMutationsDuplicateAdd(t *testing.T) {
	ev := mutationEvent(1000, []any{
		addEntry(1, 100, map[string]any{"class": "btn"}),
		addEntry(1, 100, map[string]any{"class": "btn"}),
		addEntry(1, 100, map[string]any{"class": "btn active"}),
		addEntry(2, 102, nil),
	})

	out := DedupeMutations(ev)

	// The exact duplicate is dropped; the same node with different
	// attributes and the unrelated add both survive, in order.
	adds := out.Data["adds"].([]any)
	if len(adds) != 3 {
		t.Fatalf("kept %d adds, want 3", len(adds))
	}
	first := adds[0].(map[string]any)["node"].(map[string]any)
	if first["id"] != float64(100) {
		t.Fatalf("first surviving add node id = %v, want 100", first["id"])
	}
	last := adds[2].(map[string]any)["node"].(map[string]any)
	if last["id"] != float64(102) {
		t.Fatalf("last surviving add node id = %v, want 102", last["id"])
	}
}

func TestDedupeMutationsKeysPerEvent(t *testing.T) {
	// The same add in a later mutation event is a legitimate
	// re-insert and is kept.
	DedupeMutations(mutationEvent(1000, []any{addEntry(1, 100, nil)}))
	out := DedupeMutations(mutationEvent(2000, []any{addEntry(1, 100, nil)}))

	if got := len(out.Data["adds"].([]any)); got != 1 {
		t.Fatalf("later event kept %d adds, want 1", got)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	// Requeued batches pass through the filters again; a second pass
	// over an already-filtered event changes nothing.
	snapshot := snapshotEvent(1000, map[string]any{
		"id": float64(1),
		"childNodes": []any{
			map[string]any{"id": float64(2)},
			map[string]any{"id": float64(2)},
		},
	})
	mutation := mutationEvent(1500, []any{
		addEntry(1, 3, nil),
		addEntry(1, 3, nil),
	})

	snapshot = DedupeFullSnapshot(DedupeFullSnapshot(snapshot))
	mutation = DedupeMutations(DedupeMutations(mutation))

	ids := childIDs(snapshot.Data["node"].(map[string]any))
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("snapshot children after second pass = %v, want [2]", ids)
	}
	if got := len(mutation.Data["adds"].([]any)); got != 1 {
		t.Fatalf("adds after second pass = %d, want 1", got)
	}
}

func TestDedupeLeavesOtherEventsAlone(t *testing.T) {
	meta := replay.RecordedEvent{Type: replay.EventMeta, Timestamp: 1, Data: map[string]any{"href": "https://example.com"}}
	scroll := replay.RecordedEvent{Type: replay.EventIncrementalSnapshot, Timestamp: 2, Data: map[string]any{"source": float64(3), "y": float64(120)}}

	meta = DedupeMutations(DedupeFullSnapshot(meta))
	scroll = DedupeMutations(DedupeFullSnapshot(scroll))

	if meta.Data["href"] != "https://example.com" {
		t.Error("meta event payload changed")
	}
	if scroll.Data["y"] != float64(120) {
		t.Error("scroll event payload changed")
	}
}
