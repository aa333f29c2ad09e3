package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/kvollan/ridgeline/internal/model"
)

// NominatimGeocoder resolves place names against a Nominatim endpoint.
// Results are cached and requests rate-limited to one per second, per the
// public instance's usage policy.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// NewNominatim creates a Nominatim geocoder from config.
func NewNominatim(cfg model.GeoConfig) *NominatimGeocoder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Ridgeline/0.1 (+https://github.com/kvollan/ridgeline)"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &NominatimGeocoder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		cache:      gocache.New(24*time.Hour, time.Hour),
	}
}

// Geocode resolves a place name, constrained to the jurisdiction's bounding
// box when one is known.
func (g *NominatimGeocoder) Geocode(ctx context.Context, name, jurisdiction string) ([]Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	cacheKey := name + "|" + jurisdiction
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.([]Candidate), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "jsonv2")
	q.Set("limit", "5")
	if box, ok := Bounds(jurisdiction); ok {
		// viewbox is lon1,lat1,lon2,lat2
		q.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", box.MinLon, box.MaxLat, box.MaxLon, box.MinLat))
		q.Set("bounded", "1")
	}

	reqURL := fmt.Sprintf("%s/search?%s", g.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q: HTTP %d", name, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:   r.DisplayName,
			Coords: model.LatLon{Lat: lat, Lon: lon},
		})
	}

	g.cache.Set(cacheKey, candidates, gocache.DefaultExpiration)
	return candidates, nil
}
