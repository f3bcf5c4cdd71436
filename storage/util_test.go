package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidbyt.dev/ztm/model"
)

func TestHaversineDistance(t *testing.T) {
	var loc = map[string][2]float64{
		"nyc":    {40.700000, -74.100000},
		"philly": {40.000000, -75.200000},
		"sf":     {37.800000, -122.500000},
		"la":     {34.000000, -118.500000},
		"sto":    {59.300000, 17.900000},
		"lon":    {51.500000, -0.200000},
		"rey":    {64.100000, -21.900000},
	}

	for _, tc := range []struct {
		a, b     string
		expected float64
	}{
		{"nyc", "philly", 121.438585},
		{"nyc", "sf", 4127.311071},
		{"nyc", "la", 3951.861367},
		{"nyc", "sto", 6318.636281},
		{"nyc", "lon", 5572.804939},
		{"philly", "rey", 4325.964058},
		{"sf", "la", 555.165790},
		{"la", "sto", 8891.306919},
		{"sto", "lon", 1426.989197},
		{"lon", "rey", 1882.845837},
	} {
		a, b := loc[tc.a], loc[tc.b]
		assert.InDelta(t, tc.expected, HaversineDistance(a[0], a[1], b[0], b[1]), 0.001, "%s-%s", tc.a, tc.b)
		assert.InDelta(t, tc.expected, HaversineDistance(b[0], b[1], a[0], a[1]), 0.001, "%s-%s", tc.b, tc.a)
	}
}

func TestNearest(t *testing.T) {
	lat := func(f float64) *float64 { return &f }

	stops := []*model.Stop{
		{ID: "c", Lat: lat(52.3), Lon: lat(21.0)},
		{ID: "b", Lat: lat(52.2), Lon: lat(21.0)},
		{ID: "x"},
		{ID: "a", Lat: lat(52.2), Lon: lat(21.0)},
		{ID: "d", Lat: lat(52.0), Lon: lat(21.0)},
	}

	ids := func(stops []*model.Stop) []string {
		out := []string{}
		for _, s := range stops {
			out = append(out, s.ID)
		}
		return out
	}

	// Ties broken by ID, stops without location dropped
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(nearest(stops, 52.2, 21.0, 0)))
	assert.Equal(t, []string{"a", "b"}, ids(nearest(stops, 52.2, 21.0, 2)))
	assert.Equal(t, []string{"d"}, ids(nearest(stops, 51.0, 21.0, 1)))
	assert.Equal(t, []string{}, ids(nearest([]*model.Stop{{ID: "x"}}, 0, 0, 0)))
}

func TestSortEdgePairs(t *testing.T) {
	pairs := []model.EdgePair{
		{From: "2", To: "1"},
		{From: "1", To: "3"},
		{From: "1", To: "2"},
	}
	sortEdgePairs(pairs)
	assert.Equal(t, []model.EdgePair{
		{From: "1", To: "2"},
		{From: "1", To: "3"},
		{From: "2", To: "1"},
	}, pairs)
}
