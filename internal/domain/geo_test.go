package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	t.Run("known city pair", func(t *testing.T) {
		// Paris to London, roughly 344 km.
		paris := Geo{Lat: 48.8566, Lng: 2.3522}
		london := Geo{Lat: 51.5074, Lng: -0.1278}

		dist := DistanceKm(paris, london)
		assert.InDelta(t, 344, dist, 5)
	})

	t.Run("identical points", func(t *testing.T) {
		p := Geo{Lat: 35.6762, Lng: 139.6503}
		assert.Equal(t, 0.0, DistanceKm(p, p))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Geo{Lat: 27.9506, Lng: -82.4572}
		b := Geo{Lat: 39.4699, Lng: -0.3763}
		assert.Equal(t, DistanceKm(a, b), DistanceKm(b, a))
	})

	t.Run("antipodal points do not produce NaN", func(t *testing.T) {
		a := Geo{Lat: 45, Lng: 90}
		b := Geo{Lat: -45, Lng: -90}

		dist := DistanceKm(a, b)
		assert.False(t, math.IsNaN(dist))
		// Half the Earth's circumference.
		assert.InDelta(t, math.Pi*earthRadiusKm, dist, 1)
	})

	t.Run("short distance precision", func(t *testing.T) {
		// Two points ~1.11 km apart on the equator (0.01 degrees).
		a := Geo{Lat: 0, Lng: 10}
		b := Geo{Lat: 0, Lng: 10.01}
		assert.InDelta(t, 1.11, DistanceKm(a, b), 0.01)
	})
}

func TestCentroid(t *testing.T) {
	t.Run("empty slice", func(t *testing.T) {
		assert.Equal(t, Geo{}, Centroid(nil))
	})

	t.Run("single point", func(t *testing.T) {
		p := Geo{Lat: 36.4349, Lng: 28.2176}
		assert.Equal(t, p, Centroid([]Geo{p}))
	})

	t.Run("arithmetic mean", func(t *testing.T) {
		got := Centroid([]Geo{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 2}})
		assert.Equal(t, Geo{Lat: 0, Lng: 1}, got)
	})
}

func TestGeoValid(t *testing.T) {
	tests := []struct {
		name  string
		geo   Geo
		valid bool
	}{
		{"in range", Geo{Lat: 48.85, Lng: 2.35}, true},
		{"boundary", Geo{Lat: 90, Lng: -180}, true},
		{"latitude too high", Geo{Lat: 91, Lng: 0}, false},
		{"latitude too low", Geo{Lat: -91, Lng: 0}, false},
		{"longitude too high", Geo{Lat: 0, Lng: 181}, false},
		{"longitude too low", Geo{Lat: 0, Lng: -181}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.geo.Valid())
		})
	}
}

func TestGeoIsZero(t *testing.T) {
	assert.True(t, Geo{}.IsZero())
	assert.False(t, Geo{Lat: 0.0001, Lng: 0}.IsZero())
}
