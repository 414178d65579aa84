// Package geo resolves visitor location details from an IP address via
// an external lookup service. The service is an opaque collaborator:
// one lookup per new fingerprint, never refreshed.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

// Details holds the public location fields returned by the lookup
// service for one IP address.
type Details struct {
	Status     string  `json:"status"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Timezone   string  `json:"timezone"`
	ISP        string  `json:"isp"`
	Org        string  `json:"org"`
	AS         string  `json:"as"`
}

// Latitude renders the latitude the way visitor rows store it.
func (d *Details) Latitude() string {
	return strconv.FormatFloat(d.Lat, 'f', -1, 64)
}

// Longitude renders the longitude the way visitor rows store it.
func (d *Details) Longitude() string {
	return strconv.FormatFloat(d.Lon, 'f', -1, 64)
}

// Client calls the IP lookup service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.ChanneledLogger
}

// NewClient creates a lookup client against the given base URL
// (e.g. http://ip-api.com/json).
func NewClient(baseURL string, timeout time.Duration, logger *logging.ChanneledLogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Lookup resolves location details for one IP. A failed lookup is not
// fatal to ingestion; callers create the visitor with empty geo fields.
func (c *Client) Lookup(ctx context.Context, ip string) (*Details, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build geo request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Ingest().Warn("Geo lookup failed", "ip", ip, "error", err.Error())
		return nil, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
	}

	var details Details
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decode geo response: %w", err)
	}

	c.logger.Ingest().Debug("Geo lookup completed", "ip", ip, "country", details.Country, "duration", time.Since(start))
	return &details, nil
}
