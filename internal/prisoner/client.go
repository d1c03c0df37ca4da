// Package prisoner reads demographics from the prisoner search API: the
// planned release date that drives pre-release review decisions and the
// person's current prison.
package prisoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrNotFound means the search service has no record for the person.
var ErrNotFound = errors.New("prisoner not found")

// Details is the subset of the search record the engines need.
type Details struct {
	PersonID    string     `json:"prisonerNumber"`
	PrisonID    string     `json:"prisonId"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
}

// Client calls the prisoner search API behind a circuit breaker, so a
// degraded upstream fails fast instead of stalling event processing.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Details]
	logger  *slog.Logger
}

// NewClient creates a search client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "prisoner-search",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker[*Details](settings),
		logger:  logger,
	}
}

// Get fetches the person's search record.
func (c *Client) Get(ctx context.Context, personID string) (*Details, error) {
	return c.breaker.Execute(func() (*Details, error) {
		return c.fetch(ctx, personID)
	})
}

// ReleaseDate returns the person's planned release date, or nil when the
// record carries none.
func (c *Client) ReleaseDate(ctx context.Context, personID string) (*time.Time, error) {
	d, err := c.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	return d.ReleaseDate, nil
}

// CurrentPrison returns the person's current prison code.
func (c *Client) CurrentPrison(ctx context.Context, personID string) (string, error) {
	d, err := c.Get(ctx, personID)
	if err != nil {
		return "", err
	}
	return d.PrisonID, nil
}

func (c *Client) fetch(ctx context.Context, personID string) (*Details, error) {
	endpoint := fmt.Sprintf("%s/prisoner/%s", c.baseURL, url.PathEscape(personID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prisoner search request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, personID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("prisoner search returned %d: %s", resp.StatusCode, body)
	}

	var d Details
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode prisoner search response: %w", err)
	}
	return &d, nil
}
