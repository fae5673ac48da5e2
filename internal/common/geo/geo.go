// internal/common/geo/geo.go
package geo

import (
	"math"

	"caserank/internal/models"
)

// earthRadiusMiles is the mean Earth radius in statute miles.
const earthRadiusMiles = 3958.8

// Valid reports whether the pair is a usable coordinate: finite and inside
// the lat/lon ranges. (0,0) is treated as a missing-location sentinel.
func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// NewCoordinates validates and wraps a lat/lon pair, returning nil when the
// pair is unusable.
func NewCoordinates(lat, lon float64) *models.Coordinates {
	if !Valid(lat, lon) {
		return nil
	}
	return &models.Coordinates{Latitude: lat, Longitude: lon}
}

// Distance returns the haversine great-circle distance in miles between two
// points, rounded to two decimal places. A nil point, or one carrying a
// non-finite or out-of-range coordinate, yields nil rather than a poisoned
// number.
func Distance(a, b *models.Coordinates) *float64 {
	if a == nil || b == nil {
		return nil
	}
	if !Valid(a.Latitude, a.Longitude) || !Valid(b.Latitude, b.Longitude) {
		return nil
	}
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	d := 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))

	rounded := math.Round(d*100) / 100
	return &rounded
}
