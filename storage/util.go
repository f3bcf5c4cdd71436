package storage

import (
	"math"
	"sort"

	"tidbyt.dev/ztm/model"
)

func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	const earthRadiusKm = 6371

	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}

// Drops stops without coordinates and orders the rest by distance
// from lat/lon. Ties are broken by stop ID.
func nearest(stops []*model.Stop, lat float64, lon float64, limit int) []*model.Stop {
	located := []*model.Stop{}
	for _, s := range stops {
		if s.HasLocation() {
			located = append(located, s)
		}
	}

	sort.SliceStable(located, func(i, j int) bool {
		di := HaversineDistance(lat, lon, *located[i].Lat, *located[i].Lon)
		dj := HaversineDistance(lat, lon, *located[j].Lat, *located[j].Lon)
		if di != dj {
			return di < dj
		}
		return located[i].ID < located[j].ID
	})

	if limit > 0 && len(located) > limit {
		located = located[:limit]
	}

	return located
}

func sortEdgePairs(pairs []model.EdgePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].From != pairs[j].From {
			return pairs[i].From < pairs[j].From
		}
		return pairs[i].To < pairs[j].To
	})
}
