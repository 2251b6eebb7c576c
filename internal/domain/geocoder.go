package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Geo              Geo
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves free-text location strings to coordinates.
type Geocoder interface {
	// Geocode converts a location query (e.g. "Dodecanese Islands, Greece")
	// to coordinates. A zero-valued result with nil error means no match.
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}
