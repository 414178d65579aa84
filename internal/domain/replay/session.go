package replay

import "time"

// Visitor is a returning device identity, keyed by its client-derived
// fingerprint. Geo fields are resolved once, the first time the
// fingerprint is seen, and never refreshed afterwards.
type Visitor struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fp"`
	IP          string    `json:"ip"`
	Country     string    `json:"country,omitempty"`
	Region      string    `json:"region,omitempty"`
	City        string    `json:"city,omitempty"`
	Latitude    string    `json:"latitude,omitempty"`
	Longitude   string    `json:"longitude,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	ISP         string    `json:"isp,omitempty"`
	Org         string    `json:"org,omitempty"`
	ASN         string    `json:"as,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Session is one recorded browsing session. The event payload itself
// lives in an append-only list of compressed batch blobs; EventCount
// is a running total kept alongside so listings never need to
// decompress anything to know a session's size.
type Session struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	VisitorID  string    `json:"visitorId"`
	OwnerID    string    `json:"ownerId"`
	URL        string    `json:"url,omitempty"`
	EventCount int       `json:"eventCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Visitor is populated on retrieval paths that join the visitor
	// record; it is nil on the ingestion path.
	Visitor *Visitor `json:"visitor,omitempty"`
}

// StoredBatch is one persisted batch blob. Seq preserves insertion
// order; Blob is opaque to the storage layer and interpreted by the
// codec on retrieval.
type StoredBatch struct {
	ID        string
	SessionID string
	Seq       int
	Blob      []byte
	CreatedAt time.Time
}

// VisitorSummary is the public projection of a visitor used in
// session listings.
type VisitorSummary struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fp"`
	Country     string `json:"country,omitempty"`
	City        string `json:"city,omitempty"`
}

// SessionSummary is the listing projection of a session. It never
// carries batch blobs or decoded events.
type SessionSummary struct {
	SessionID  string         `json:"sessionId"`
	URL        string         `json:"url,omitempty"`
	EventCount int            `json:"eventCount"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Visitor    VisitorSummary `json:"visitor"`
}
