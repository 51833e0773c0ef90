// Package geoip resolves a profile's remote endpoint to a human-readable
// location using the ip-api.com JSON endpoint.
//
// Lookups are cached, rate limited to stay inside the free tier, and guarded
// by a circuit breaker so a flaky upstream degrades to "Unknown" instead of
// stalling callers.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "http://ip-api.com/json"

// Location describes where an endpoint host appears to be.
type Location struct {
	City        string
	Region      string
	CountryCode string
	Country     string
	Zip         string
}

// String renders "City, Region, CC", falling back to the country name and
// finally "Unknown".
func (l Location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.Region, l.CountryCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		if l.Country != "" {
			return l.Country
		}
		return "Unknown"
	}
	return strings.Join(parts, ", ")
}

// Client performs cached, rate-limited lookups.
type Client struct {
	http    *http.Client
	cache   *gocache.Cache
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	baseURL string
}

// New creates a lookup client. Results are cached for 24 hours; requests are
// capped at 40 per minute (ip-api.com allows 45).
func New() *Client {
	return &Client{
		http:  &http.Client{Timeout: 8 * time.Second},
		cache: gocache.New(24*time.Hour, time.Hour),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "geoip",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		limiter: rate.NewLimiter(rate.Every(time.Minute/40), 5),
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the upstream endpoint. Intended for tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// Lookup resolves the location for a host. Cached answers are returned
// without touching the network.
func (c *Client) Lookup(ctx context.Context, host string) (Location, error) {
	if host == "" {
		return Location{}, fmt.Errorf("empty host")
	}
	if cached, ok := c.cache.Get(host); ok {
		return cached.(Location), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Location{}, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, host)
	})
	if err != nil {
		return Location{}, err
	}

	loc := result.(Location)
	c.cache.SetDefault(host, loc)
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, host string) (Location, error) {
	u := fmt.Sprintf("%s/%s?fields=status,country,city,regionName,countryCode,zip&lang=en",
		c.baseURL, url.PathEscape(host))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geoip request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geoip request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Location{}, err
	}

	var payload struct {
		Status      string `json:"status"`
		Country     string `json:"country"`
		City        string `json:"city"`
		RegionName  string `json:"regionName"`
		CountryCode string `json:"countryCode"`
		Zip         string `json:"zip"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Location{}, fmt.Errorf("geoip response is not valid JSON: %w", err)
	}
	if payload.Status != "success" {
		return Location{}, fmt.Errorf("geoip lookup failed for %s", host)
	}

	return Location{
		City:        strings.TrimSpace(payload.City),
		Region:      strings.TrimSpace(payload.RegionName),
		CountryCode: strings.TrimSpace(payload.CountryCode),
		Country:     strings.TrimSpace(payload.Country),
		Zip:         strings.TrimSpace(payload.Zip),
	}, nil
}
