// Package recorder is the client-side recording pipeline: it collects
// DOM events from a capture engine, deduplicates and batches them, and
// delivers the batches to the ingestion endpoint with retry on failure.
package recorder

import (
	"context"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

// CaptureEngine produces recorded events for the duration of a session.
// Implementations wrap whatever is observing the page (an embedded
// browser binding, a test generator) and push every observed event
// through emit in capture order.
type CaptureEngine interface {
	// Start begins capture. emit must be called from a single
	// goroutine so event order is preserved.
	Start(ctx context.Context, emit func(replay.RecordedEvent)) error

	// Stop ends capture. No emit calls may happen after Stop returns.
	Stop() error
}
