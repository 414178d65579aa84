// Package performance provides lightweight operation tracking for the
// ingestion and retrieval paths.
package performance

import (
	"fmt"
	"sync"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g. "session:record", "session:get"
	OwnerID   string         `json:"ownerId"`   // Owning account, when known
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Completed bool           `json:"completed"`
}

// Complete marks the operation as finished and freezes its duration.
func (m *Marker) Complete() {
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// Tracker manages performance markers and bounded retention.
type Tracker struct {
	markers    map[string]*Marker
	maxMarkers int
	mu         sync.RWMutex
	started    time.Time
}

// NewTracker creates a new performance tracker.
func NewTracker(maxMarkers int) *Tracker {
	if maxMarkers <= 0 {
		maxMarkers = 10000
	}
	return &Tracker{
		markers:    make(map[string]*Marker),
		maxMarkers: maxMarkers,
		started:    time.Now(),
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, ownerID string) *Marker {
	marker := &Marker{
		Operation: operation,
		OwnerID:   ownerID,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
	}

	markerID := fmt.Sprintf("%s_%s_%d", ownerID, operation, time.Now().UnixNano())

	t.mu.Lock()
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// GetRecentMetrics returns completed markers that finished within the window.
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var recent []Marker
	for _, m := range t.markers {
		if m.Completed && m.EndTime.After(cutoff) {
			recent = append(recent, *m)
		}
	}
	return recent
}

// Cleanup drops the oldest completed markers once retention is exceeded.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.markers) <= t.maxMarkers {
		return
	}

	var oldestID string
	for len(t.markers) > t.maxMarkers {
		oldest := time.Now()
		oldestID = ""
		for id, m := range t.markers {
			if m.Completed && m.EndTime.Before(oldest) {
				oldest = m.EndTime
				oldestID = id
			}
		}
		if oldestID == "" {
			return
		}
		delete(t.markers, oldestID)
	}
}

// Uptime reports how long this tracker has been alive.
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.started)
}
