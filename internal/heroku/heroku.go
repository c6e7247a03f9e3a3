// Package heroku resolves database connection strings from the Heroku
// addon config API.
package heroku

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.heroku.com"

// configVar is one entry of the addon config response.
type configVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client calls the Heroku platform API. The response is treated as
// untrusted and parsed defensively.
type Client struct {
	APIKey  string
	BaseURL string // defaults to the public API; overridable for tests
	HTTP    *http.Client
}

// NewClient builds a Client with a bounded request timeout.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey: apiKey,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ConnString fetches the addon's config vars and returns the first value,
// which for a Postgres addon is its connection string.
func (c *Client) ConnString(ctx context.Context, addonID string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/addons/"+addonID+"/config", nil)
	if err != nil {
		return "", fmt.Errorf("build addon config request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/vnd.heroku+json; version=3")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch addon config: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("addon config %s: status %d: %s", addonID, res.StatusCode, body)
	}

	var vars []configVar
	if err := json.NewDecoder(res.Body).Decode(&vars); err != nil {
		return "", fmt.Errorf("decode addon config: %w", err)
	}
	if len(vars) == 0 || vars[0].Value == "" {
		return "", fmt.Errorf("addon config %s: no connection string", addonID)
	}
	return vars[0].Value, nil
}
