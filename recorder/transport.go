package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
)

// PageMetadata describes the page a session was recorded on. It is
// captured once at session start and sent with every batch.
type PageMetadata struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Language  string `json:"language,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Batch is one upload: the page metadata plus a run of events in
// capture order.
type Batch struct {
	Metadata PageMetadata           `json:"metadata"`
	Events   []replay.RecordedEvent `json:"events"`
}

// Transport delivers batches to the ingestion endpoint. A non-nil
// error means the batch was not accepted and its events must be
// requeued.
type Transport interface {
	Send(ctx context.Context, batch Batch) error
}

// DetachedSender is implemented by transports that can fire a final
// batch without waiting for the reply. Used when the page is going
// away and there is no time for a round trip.
type DetachedSender interface {
	SendDetached(batch Batch)
}

// HTTPTransport posts batches as JSON to the record endpoint.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPTransport builds a transport for one owner and fingerprint.
// baseURL is the service root, e.g. https://api.sessionstory.co.
func NewHTTPTransport(baseURL, ownerID, fingerprint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		endpoint:   fmt.Sprintf("%s/session/record/%s?fp=%s", baseURL, url.PathEscape(ownerID), url.QueryEscape(fingerprint)),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts one batch and waits for acceptance.
func (t *HTTPTransport) Send(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload batch: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// SendDetached fires the batch without waiting for the reply. The
// request still carries a short deadline so the goroutine cannot leak.
func (t *HTTPTransport) SendDetached(batch Batch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.Send(ctx, batch)
	}()
}
