package domain

import "math"

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate is the unset zero value. The exact
// point (0,0) sits in the Gulf of Guinea and never appears in classifier
// output, so it doubles as the "no coordinates" sentinel.
func (g Geo) IsZero() bool {
	return g.Lat == 0 && g.Lng == 0
}

// Valid reports whether the coordinate is within WGS-84 bounds.
func (g Geo) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lng >= -180 && g.Lng <= 180
}

// DistanceKm returns the haversine great-circle distance between a and b in
// kilometers. The arcsine argument is clamped to [0,1] so that antipodal
// points, where floating-point error can push it fractionally above 1, do not
// produce NaN.
func DistanceKm(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	root := math.Sqrt(h)
	if root > 1 {
		root = 1
	}
	return 2 * earthRadiusKm * math.Asin(root)
}

// Centroid returns the arithmetic mean of the given coordinates.
// Returns the zero Geo for an empty slice.
func Centroid(points []Geo) Geo {
	if len(points) == 0 {
		return Geo{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return Geo{Lat: sumLat / n, Lng: sumLng / n}
}
