// Package geo resolves place names to coordinates and answers containment
// and distance questions for the covered jurisdictions.
package geo

import (
	"context"
	"math"

	"github.com/kvollan/ridgeline/internal/model"
)

// Candidate is one geocoding result.
type Candidate struct {
	Name   string
	Coords model.LatLon
}

// Geocoder resolves a place name within a jurisdiction. Zero candidates
// means unresolvable, one is unambiguous, more than one is ambiguous and
// callers should route for review rather than pick arbitrarily.
type Geocoder interface {
	Geocode(ctx context.Context, name, jurisdiction string) ([]Candidate, error)
}

// Box is a lat/lon bounding box.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point is inside the box.
func (b Box) Contains(p model.LatLon) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// jurisdictionBounds are generous boxes for the covered regions. They are
// used for sanity checks, not authoritative boundaries.
var jurisdictionBounds = map[string]Box{
	"BC": {MinLat: 48.2, MaxLat: 60.0, MinLon: -139.1, MaxLon: -114.0},
	"AB": {MinLat: 48.9, MaxLat: 60.0, MinLon: -120.0, MaxLon: -109.9},
	"WA": {MinLat: 45.5, MaxLat: 49.1, MinLon: -124.9, MaxLon: -116.9},
}

// Bounds returns the bounding box for a jurisdiction code.
func Bounds(jurisdiction string) (Box, bool) {
	b, ok := jurisdictionBounds[jurisdiction]
	return b, ok
}

// InJurisdiction reports whether the point falls inside the jurisdiction's
// bounding box. Unknown jurisdictions contain nothing.
func InJurisdiction(jurisdiction string, p model.LatLon) bool {
	b, ok := jurisdictionBounds[jurisdiction]
	return ok && b.Contains(p)
}

const earthRadiusKM = 6371.0

// DistanceKM is the great-circle distance between two points.
func DistanceKM(a, b model.LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
