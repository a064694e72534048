package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	textSearchURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

	// maxResults caps how many candidates a single search surfaces. More
	// than a few is noise on the in-car map.
	maxResults = 3
)

// GoogleConfig configures the Places text search client.
type GoogleConfig struct {
	APIKey string

	// Language for result names and addresses, e.g. "ja" or "en".
	Language string

	// Latitude and Longitude bias results toward the vehicle's area.
	Latitude  float64
	Longitude float64

	// RadiusM is the bias radius in meters. Zero disables location bias.
	RadiusM int

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Google resolves queries through the Places text search API.
type Google struct {
	cfg    GoogleConfig
	client *http.Client
	log    *slog.Logger
}

// NewGoogle creates a Places client.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = textSearchURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Google{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Logger.With("component", "places.google"),
	}, nil
}

// Search runs a text search and returns up to three candidates.
func (g *Google) Search(ctx context.Context, query string) ([]Place, error) {
	if query == "" {
		return nil, ErrNoResults
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("key", g.cfg.APIKey)
	if g.cfg.Language != "" {
		q.Set("language", g.cfg.Language)
	}
	if g.cfg.RadiusM > 0 {
		q.Set("location", fmt.Sprintf("%f,%f", g.cfg.Latitude, g.cfg.Longitude))
		q.Set("radius", strconv.Itoa(g.cfg.RadiusM))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("places: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places: search returned %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Results []struct {
			Name             string `json:"name"`
			FormattedAddress string `json:"formatted_address"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("places: decode response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		return nil, fmt.Errorf("places: search status %s", body.Status)
	}

	n := len(body.Results)
	if n > maxResults {
		n = maxResults
	}
	out := make([]Place, 0, n)
	for _, r := range body.Results[:n] {
		out = append(out, Place{
			Name:    r.Name,
			Address: r.FormattedAddress,
			Lat:     r.Geometry.Location.Lat,
			Lng:     r.Geometry.Location.Lng,
		})
	}

	g.log.Debug("resolved place query", "query", query, "results", len(out))
	return out, nil
}

var _ Resolver = (*Google)(nil)
