package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kvollan/ridgeline/internal/model"
)

func TestDistanceKM(t *testing.T) {
	tests := []struct {
		name    string
		a, b    model.LatLon
		wantMin float64
		wantMax float64
	}{
		{
			name:    "same point",
			a:       model.LatLon{Lat: 49.7, Lon: -123.1},
			b:       model.LatLon{Lat: 49.7, Lon: -123.1},
			wantMin: 0,
			wantMax: 0.001,
		},
		{
			name: "Squamish to Whistler",
			a:    model.LatLon{Lat: 49.7016, Lon: -123.1558},
			b:    model.LatLon{Lat: 50.1163, Lon: -122.9574},
			// Roughly 48 km great-circle
			wantMin: 45,
			wantMax: 50,
		},
		{
			name:    "Vancouver to Calgary",
			a:       model.LatLon{Lat: 49.2827, Lon: -123.1207},
			b:       model.LatLon{Lat: 51.0447, Lon: -114.0719},
			wantMin: 650,
			wantMax: 700,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKM(tt.a, tt.b)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("DistanceKM = %f, want in [%f, %f]", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestInJurisdiction(t *testing.T) {
	tests := []struct {
		name         string
		jurisdiction string
		point        model.LatLon
		want         bool
	}{
		{"Atwell Peak in BC", "BC", model.LatLon{Lat: 49.7550, Lon: -123.0550}, true},
		{"Mount Rainier in WA", "WA", model.LatLon{Lat: 46.8523, Lon: -121.7603}, true},
		{"Mount Rainier not in BC", "BC", model.LatLon{Lat: 46.8523, Lon: -121.7603}, false},
		{"Banff in AB", "AB", model.LatLon{Lat: 51.1784, Lon: -115.5708}, true},
		{"unknown jurisdiction", "YT", model.LatLon{Lat: 60.7, Lon: -135.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InJurisdiction(tt.jurisdiction, tt.point); got != tt.want {
				t.Errorf("InJurisdiction(%s) = %v, want %v", tt.jurisdiction, got, tt.want)
			}
		})
	}
}

func TestNominatimGeocoder_Geocode(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/search" {
			t.Errorf("Expected path /search, got %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent header")
		}
		if r.URL.Query().Get("bounded") != "1" {
			t.Error("Expected bounded search for a known jurisdiction")
		}

		_ = json.NewEncoder(w).Encode([]nominatimResult{
			{DisplayName: "Atwell Peak, Squamish-Lillooet, British Columbia, Canada", Lat: "49.7550", Lon: "-123.0550"},
		})
	}))
	defer server.Close()

	g := NewNominatim(model.GeoConfig{BaseURL: server.URL, Timeout: 5})

	candidates, err := g.Geocode(context.Background(), "Atwell Peak", "BC")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Coords.Lat != 49.7550 {
		t.Errorf("Unexpected latitude: %f", candidates[0].Coords.Lat)
	}

	// Second lookup must come from cache.
	_, err = g.Geocode(context.Background(), "Atwell Peak", "BC")
	if err != nil {
		t.Fatalf("Cached geocode failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 HTTP call, got %d", calls)
	}
}

func TestNominatimGeocoder_EmptyName(t *testing.T) {
	g := NewNominatim(model.GeoConfig{})
	candidates, err := g.Geocode(context.Background(), "  ", "BC")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if candidates != nil {
		t.Errorf("Expected no candidates for empty name, got %v", candidates)
	}
}
