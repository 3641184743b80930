package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/isaac-evs/safeway-etl/internal/config"
	"github.com/isaac-evs/safeway-etl/internal/domain"
	"github.com/isaac-evs/safeway-etl/internal/ports"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// MapboxGeocoder resolves free-text locations to coordinates through the
// Mapbox places API, country-scoped to Mexico and limited to one result.
type MapboxGeocoder struct {
	baseURL     string
	accessToken string
	maxRetries  int
	retryDelay  time.Duration
	http        *http.Client
	logger      *slog.Logger
}

var _ ports.Geocoder = (*MapboxGeocoder)(nil)

// NewMapboxGeocoder wires the shared HTTP client and retry policy.
func NewMapboxGeocoder(cfg config.GeocoderConfig, logger *slog.Logger) *MapboxGeocoder {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &MapboxGeocoder{
		baseURL:     defaultBaseURL,
		accessToken: cfg.AccessToken,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

type geocodeResponse struct {
	Features []struct {
		Center []float64 `json:"center"`
	} `json:"features"`
}

// Resolve returns the first match's coordinates. Transport errors and
// non-200 statuses are retried with a constant delay up to the configured
// attempt count; a well-formed empty result returns nil immediately, since
// retrying a legitimate no-match would not change the answer.
func (g *MapboxGeocoder) Resolve(ctx context.Context, location string) (*domain.Coordinates, error) {
	bo := backoff.NewConstantBackOff(g.retryDelay)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		coords, retryable, err := g.lookup(ctx, location)
		if err == nil {
			return coords, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		g.warn("geocoding attempt failed", "location", location, "attempt", attempt, "error", err)
		if attempt < g.maxRetries {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	g.warn("geocoding retries exhausted", "location", location, "attempts", g.maxRetries)
	return nil, fmt.Errorf("geocode %q after %d attempts: %w", location, g.maxRetries, lastErr)
}

// lookup performs a single geocoding request. retryable is true for
// transport-level failures only; an empty feature list is a final answer
// reported as (nil, false, nil) through Resolve's nil-coordinates return.
func (g *MapboxGeocoder) lookup(ctx context.Context, location string) (coords *domain.Coordinates, retryable bool, err error) {
	endpoint := fmt.Sprintf("%s/%s.json?access_token=%s&country=mx&limit=1",
		g.baseURL, url.PathEscape(location), url.QueryEscape(g.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("new request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("geocoding status %s", resp.Status)
	}

	var parsed geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, true, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Features) == 0 || len(parsed.Features[0].Center) < 2 {
		g.warn("no geocoding results", "location", location)
		return nil, false, nil
	}

	center := parsed.Features[0].Center
	return &domain.Coordinates{Longitude: center[0], Latitude: center[1]}, false, nil
}

func (g *MapboxGeocoder) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
