package tui

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/go-chatgate/go-chatgate/lib/httpapi"
)

// Client polls a gateway's monitoring endpoints.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a poller for the gateway listening at address (host:port).
func NewClient(address string) *Client {
	return &Client{
		baseURL: "http://" + address,
		httpc:   &http.Client{Timeout: 3 * time.Second},
	}
}

// Stats is one complete poll of the gateway.
type Stats struct {
	Sessions  httpapi.SessionsResponse
	Health    httpapi.HealthResponse
	FetchedAt time.Time
}

// FetchStats queries the session listing and health endpoints in one pass.
func (c *Client) FetchStats() (*Stats, error) {
	var stats Stats
	if err := c.getJSON("/sessions", &stats.Sessions); err != nil {
		return nil, err
	}
	if err := c.getJSON("/health", &stats.Health); err != nil {
		return nil, err
	}
	stats.FetchedAt = time.Now()
	return &stats, nil
}

func (c *Client) getJSON(path string, dst interface{}) error {
	resp, err := c.httpc.Get(c.baseURL + path)
	if err != nil {
		return oops.Wrapf(err, "querying gateway %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oops.Errorf("gateway returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return oops.Wrapf(err, "decoding gateway response for %s", path)
	}
	return nil
}
