package recorder

import (
	"encoding/json"
	"fmt"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

// DedupeFullSnapshot prunes duplicate DOM subtrees from a full snapshot
// event. Reactive frameworks can re-render large subtrees redundantly,
// so one serialized snapshot may carry the same node id more than once;
// the first occurrence wins and later ones are dropped together with
// their subtree. The seen set is scoped to this single event, so a
// later snapshot (a checkout) starts from a clean slate. Applying the
// filter twice to the same event is a no-op.
func DedupeFullSnapshot(ev replay.RecordedEvent) replay.RecordedEvent {
	if ev.Type != replay.EventFullSnapshot || ev.Data == nil {
		return ev
	}
	node, ok := ev.Data["node"].(map[string]any)
	if !ok {
		return ev
	}
	pruneNode(node, make(map[float64]bool))
	return ev
}

// pruneNode walks the serialized DOM tree depth-first, dropping child
// subtrees whose root id already appeared earlier in the same walk.
func pruneNode(node map[string]any, seen map[float64]bool) {
	if id, ok := node["id"].(float64); ok {
		seen[id] = true
	}

	children, ok := node["childNodes"].([]any)
	if !ok {
		return
	}

	kept := children[:0]
	for _, child := range children {
		childNode, ok := child.(map[string]any)
		if !ok {
			kept = append(kept, child)
			continue
		}
		if id, ok := childNode["id"].(float64); ok && seen[id] {
			continue
		}
		pruneNode(childNode, seen)
		kept = append(kept, child)
	}
	node["childNodes"] = kept
}

// DedupeMutations filters a mutation event's adds list down to first
// occurrences. The identity key combines the parent id, the node id,
// and a prefix of the serialized attributes, so a node re-added with
// different attributes still goes through. The key set is scoped to
// this single event; the same add in a later mutation event is a
// legitimate re-insert.
func DedupeMutations(ev replay.RecordedEvent) replay.RecordedEvent {
	if ev.Type != replay.EventIncrementalSnapshot || ev.Data == nil {
		return ev
	}
	if src, ok := ev.Source(); !ok || src != replay.SourceMutation {
		return ev
	}
	adds, ok := ev.Data["adds"].([]any)
	if !ok || len(adds) == 0 {
		return ev
	}

	seen := make(map[string]bool)
	kept := adds[:0]
	for _, add := range adds {
		key, ok := addKey(add)
		if !ok {
			kept = append(kept, add)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, add)
	}
	ev.Data["adds"] = kept
	return ev
}

func addKey(add any) (string, bool) {
	m, ok := add.(map[string]any)
	if !ok {
		return "", false
	}
	node, ok := m["node"].(map[string]any)
	if !ok {
		return "", false
	}
	nodeID, ok := node["id"].(float64)
	if !ok {
		return "", false
	}

	parentID, _ := m["parentId"].(float64)

	attrs := ""
	if raw, err := json.Marshal(node["attributes"]); err == nil {
		attrs = string(raw)
		if len(attrs) > 50 {
			attrs = attrs[:50]
		}
	}

	return fmt.Sprintf("%v_%v%s", parentID, nodeID, attrs), true
}
