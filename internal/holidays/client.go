// Package holidays answers "is this date a public holiday in that country"
// from the Nager.Date public holiday API, cached in Redis per country and year.
package holidays

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultBaseURL = "https://date.nager.at"

// Holiday is one row of the PublicHolidays endpoint.
type Holiday struct {
	Date        string   `json:"date"`
	LocalName   string   `json:"localName"`
	Name        string   `json:"name"`
	CountryCode string   `json:"countryCode"`
	Global      bool     `json:"global"`
	Types       []string `json:"types"`
}

// Source returns every public holiday of a country in a year.
type Source interface {
	Fetch(ctx context.Context, countryCode string, year int) ([]Holiday, error)
}

type Client struct {
	BaseURL    string
	HTTP       *http.Client
	MaxElapsed time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: timeout},
		MaxElapsed: 3 * timeout,
	}
}

// Fetch retries network errors and 5xx responses with exponential backoff.
// An unknown country (404) yields an empty list.
func (c *Client) Fetch(ctx context.Context, countryCode string, year int) ([]Holiday, error) {
	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", c.BaseURL, year, strings.ToUpper(countryCode))

	var out []Holiday
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("holiday api request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			out = nil
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("holiday api status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("holiday api status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode holidays: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.MaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("fetch holidays %s/%d: %w", countryCode, year, err)
	}
	return out, nil
}
