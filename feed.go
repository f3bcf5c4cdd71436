package ztm

import (
	"fmt"

	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/storage"
)

// A schedule previously imported into storage.
type Feed struct {
	Metadata *storage.FeedMetadata
	Reader   storage.FeedReader
}

func NewFeed(reader storage.FeedReader, metadata *storage.FeedMetadata) *Feed {
	return &Feed{
		Metadata: metadata,
		Reader:   reader,
	}
}

func (f *Feed) SimpleEdgeList() ([]model.EdgePair, error) {
	pairs, err := f.Reader.SimpleEdges()
	if err != nil {
		return nil, fmt.Errorf("getting simple edges: %w", err)
	}
	return pairs, nil
}

// Returns stops with known coordinates ordered by distance from
// lat,lon.
//
// If limit is >0, at most limit stops are returned.
func (f *Feed) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops, err := f.Reader.NearbyStops(lat, lon, limit)
	if err != nil {
		return nil, fmt.Errorf("getting nearby stops: %w", err)
	}
	return stops, nil
}

// Returns edges leaving a stop with departures between start and end
// (minutes after midnight, inclusive). If end is before start, the
// window wraps past midnight.
func (f *Feed) Departures(stopID string, start int, end int) ([]*model.Edge, error) {
	start = ((start % model.MinutesPerDay) + model.MinutesPerDay) % model.MinutesPerDay
	end = ((end % model.MinutesPerDay) + model.MinutesPerDay) % model.MinutesPerDay

	if start <= end {
		edges, err := f.Reader.Edges(storage.EdgeFilter{
			From:           stopID,
			DepartureStart: start,
			DepartureEnd:   end,
		})
		if err != nil {
			return nil, fmt.Errorf("getting edges: %w", err)
		}
		return edges, nil
	}

	late, err := f.Reader.Edges(storage.EdgeFilter{
		From:           stopID,
		DepartureStart: start,
		DepartureEnd:   -1,
	})
	if err != nil {
		return nil, fmt.Errorf("getting edges: %w", err)
	}
	early, err := f.Reader.Edges(storage.EdgeFilter{
		From:           stopID,
		DepartureStart: -1,
		DepartureEnd:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("getting edges: %w", err)
	}

	return append(late, early...), nil
}
