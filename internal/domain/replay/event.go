// Package replay defines the core domain types for recorded browser
// sessions: the event stream captured by the recorder, the visitor
// identity derived from a device fingerprint, and the session record
// that ties both to an owning account.
package replay

// EventType identifies the kind of a recorded event. The numeric
// values are part of the wire format and must not be reordered.
type EventType int

const (
	EventDOMContentLoaded    EventType = 0
	EventLoad                EventType = 1
	EventFullSnapshot        EventType = 2
	EventIncrementalSnapshot EventType = 3
	EventMeta                EventType = 4
	EventCustom              EventType = 5
)

// IncrementalSource distinguishes the payload of an incremental
// snapshot event (Type == EventIncrementalSnapshot, data.source).
type IncrementalSource int

const (
	SourceMutation         IncrementalSource = 0
	SourceMouseInteraction IncrementalSource = 2
	SourceScroll           IncrementalSource = 3
	SourceInput            IncrementalSource = 5
	SourceTouchMove        IncrementalSource = 6
	SourceMediaInteraction IncrementalSource = 7
)

// RecordedEvent is one captured event. Data is an opaque variant
// payload whose shape depends on Type; it is stored and replayed
// verbatim except for the deduplication pruning applied at capture
// time.
type RecordedEvent struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Source returns the incremental source of the event and whether the
// event carries one at all.
func (e RecordedEvent) Source() (IncrementalSource, bool) {
	if e.Type != EventIncrementalSnapshot || e.Data == nil {
		return 0, false
	}
	src, ok := e.Data["source"].(float64)
	if !ok {
		return 0, false
	}
	return IncrementalSource(src), true
}
