// internal/common/geo/geo_test.go
package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserank/internal/models"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{"valid point", 38.12, -85.64, true},
		{"zero pair is sentinel", 0, 0, false},
		{"nan latitude", math.NaN(), -85.64, false},
		{"inf longitude", 38.12, math.Inf(1), false},
		{"latitude out of range", 91, 0.1, false},
		{"longitude out of range", 38.12, -181, false},
		{"boundary latitude", 90, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.lat, tt.lon))
		})
	}
}

func TestNewCoordinates(t *testing.T) {
	assert.Nil(t, NewCoordinates(math.NaN(), 10))
	assert.Nil(t, NewCoordinates(0, 0))

	c := NewCoordinates(38.2527, -85.7585)
	require.NotNil(t, c)
	assert.Equal(t, 38.2527, c.Latitude)
	assert.Equal(t, -85.7585, c.Longitude)
}

func TestDistance(t *testing.T) {
	louisville := &models.Coordinates{Latitude: 38.2527, Longitude: -85.7585}
	lexington := &models.Coordinates{Latitude: 38.0406, Longitude: -84.5037}

	t.Run("nil inputs yield nil", func(t *testing.T) {
		assert.Nil(t, Distance(nil, lexington))
		assert.Nil(t, Distance(louisville, nil))
		assert.Nil(t, Distance(nil, nil))
	})

	t.Run("non-finite coordinates yield nil", func(t *testing.T) {
		assert.Nil(t, Distance(&models.Coordinates{Latitude: math.NaN(), Longitude: -85.0}, lexington))
		assert.Nil(t, Distance(louisville, &models.Coordinates{Latitude: 38.0, Longitude: math.Inf(1)}))
	})

	t.Run("same point is zero", func(t *testing.T) {
		d := Distance(louisville, louisville)
		require.NotNil(t, d)
		assert.Equal(t, 0.0, *d)
	})

	t.Run("known city pair", func(t *testing.T) {
		d := Distance(louisville, lexington)
		require.NotNil(t, d)
		// Louisville to Lexington is roughly 70 miles great circle.
		assert.InDelta(t, 70.0, *d, 3.0)
	})

	t.Run("rounded to two decimals", func(t *testing.T) {
		d := Distance(louisville, lexington)
		require.NotNil(t, d)
		assert.Equal(t, math.Round(*d*100)/100, *d)
	})

	t.Run("symmetric", func(t *testing.T) {
		d1 := Distance(louisville, lexington)
		d2 := Distance(lexington, louisville)
		require.NotNil(t, d1)
		require.NotNil(t, d2)
		assert.Equal(t, *d1, *d2)
	})
}
