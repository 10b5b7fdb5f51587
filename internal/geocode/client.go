// Package geocode provides an HTTP client for the Nominatim geocoding service
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
)

// ErrAddressNotFound is returned when no match exists for a query
var ErrAddressNotFound = errors.New("address not found")

// Config holds geocoder client configuration
type Config struct {
	BaseURL   string        // Nominatim base URL
	UserAgent string        // required by Nominatim usage policy
	Timeout   time.Duration // HTTP request timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://nominatim.openstreetmap.org",
		UserAgent: "go-hint/1.0",
		Timeout:   10 * time.Second,
	}
}

// Client is the HTTP client for Nominatim
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	// Stats
	lookups      atomic.Uint64
	lookupErrors atomic.Uint64
}

// NewClient creates a geocoder client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a free-text address to a coordinate
func (c *Client) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []searchResult
	if err := c.get(ctx, "/search?"+q.Encode(), &results); err != nil {
		c.lookupErrors.Add(1)
		return geo.Coordinate{}, err
	}

	if len(results) == 0 {
		return geo.Coordinate{}, fmt.Errorf("%q: %w", address, ErrAddressNotFound)
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		c.lookupErrors.Add(1)
		return geo.Coordinate{}, fmt.Errorf("malformed coordinates for %q", address)
	}

	coord := geo.Coordinate{Lat: lat, Lon: lon}
	c.lookups.Add(1)
	c.logger.Debug("geocoded", "address", address, "coordinate", coord.String())
	return coord, nil
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
}

// ReverseGeocode resolves a coordinate to a display address
func (c *Client) ReverseGeocode(ctx context.Context, coord geo.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	q.Set("format", "json")

	var result reverseResult
	if err := c.get(ctx, "/reverse?"+q.Encode(), &result); err != nil {
		c.lookupErrors.Add(1)
		return "", err
	}

	if result.DisplayName == "" {
		return "", fmt.Errorf("%s: %w", coord, ErrAddressNotFound)
	}

	c.lookups.Add(1)
	return result.DisplayName, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Stats contains client counters
type Stats struct {
	Lookups      uint64 `json:"lookups"`
	LookupErrors uint64 `json:"lookup_errors"`
}

// GetStats returns client counters
func (c *Client) GetStats() Stats {
	return Stats{
		Lookups:      c.lookups.Load(),
		LookupErrors: c.lookupErrors.Load(),
	}
}
