package replay

// VisitorRepository persists visitor identities. Implementations
// return (nil, nil) when no row matches.
type VisitorRepository interface {
	FindByFingerprint(fingerprint string) (*Visitor, error)
	FindByID(id string) (*Visitor, error)
	Create(visitor *Visitor) error
}

// SessionRepository persists sessions and their append-only batch
// blob lists.
type SessionRepository interface {
	FindBySessionID(sessionID string) (*Session, error)

	// Create stores a brand-new session together with its first
	// batch blob in a single transaction.
	Create(session *Session, blob []byte) error

	// AppendBatch adds one more blob to an existing session and
	// bumps its event count atomically. The blob list only ever
	// grows; batches are never merged or rewritten.
	AppendBatch(sessionID string, blob []byte, eventCount int) error

	// Batches returns the stored blobs for a session in insertion
	// order.
	Batches(sessionID string) ([]StoredBatch, error)

	// ListByOwner returns summaries of an owner's sessions whose
	// event count exceeds minEvents, newest first.
	ListByOwner(ownerID string, minEvents int) ([]SessionSummary, error)
}
