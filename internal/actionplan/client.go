// Package actionplan checks for the existence of a person's action plan in
// the case notes service. A review schedule only starts once a plan exists.
package actionplan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client calls the case notes service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an action plan client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Exists reports whether the person has an action plan.
func (c *Client) Exists(ctx context.Context, personID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/action-plans/%s", c.baseURL, url.PathEscape(personID))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("action plan request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("action plan service returned %d", resp.StatusCode)
	}
}
