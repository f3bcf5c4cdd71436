package storage

import (
	"fmt"
	"sort"

	"tidbyt.dev/ztm/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type MemoryStorage struct {
	Feeds    map[string]*MemoryStorageFeed
	Metadata map[memoryMetadataKey]*FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds:    map[string]*MemoryStorageFeed{},
		Metadata: map[memoryMetadataKey]*FeedMetadata{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	feeds := []*FeedMetadata{}
	for _, metadata := range s.Metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		feeds = append(feeds, metadata)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	copied := *feed
	s.Metadata[memoryMetadataKey{feed.URL, feed.Hash}] = &copied
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, hash string) error {
	key := memoryMetadataKey{url, hash}
	if _, found := s.Metadata[key]; !found {
		return fmt.Errorf("feed not found")
	}
	delete(s.Metadata, key)
	return nil
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	f, ok := s.Feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	f := &MemoryStorageFeed{
		stopGroups: map[int]*model.StopGroup{},
		stops:      map[string]*model.Stop{},
		edges:      []*model.Edge{},
	}

	s.Feeds[feed] = f

	return f, nil
}

type MemoryStorageFeed struct {
	stopGroups map[int]*model.StopGroup
	stops      map[string]*model.Stop
	edges      []*model.Edge
}

func (f *MemoryStorageFeed) WriteStopGroup(group *model.StopGroup) error {
	copied := *group
	f.stopGroups[group.ID] = &copied
	return nil
}

func (f *MemoryStorageFeed) WriteStop(stop *model.Stop) error {
	copied := *stop
	f.stops[stop.ID] = &copied
	return nil
}

func (f *MemoryStorageFeed) BeginEdges() error {
	return nil
}

func (f *MemoryStorageFeed) WriteEdge(edge *model.Edge) error {
	copied := *edge
	f.edges = append(f.edges, &copied)
	return nil
}

func (f *MemoryStorageFeed) EndEdges() error {
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	return nil
}

func (f *MemoryStorageFeed) StopGroups() ([]*model.StopGroup, error) {
	groups := []*model.StopGroup{}
	for _, g := range f.stopGroups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (f *MemoryStorageFeed) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for _, s := range f.stops {
		stops = append(stops, s)
	}
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].ID < stops[j].ID
	})
	return stops, nil
}

func (f *MemoryStorageFeed) Stop(id string) (*model.Stop, error) {
	return f.stops[id], nil
}

func (f *MemoryStorageFeed) Edges(filter EdgeFilter) ([]*model.Edge, error) {
	edges := []*model.Edge{}
	for _, e := range f.edges {
		if filter.Match(e) {
			edges = append(edges, e)
		}
	}
	return edges, nil
}

func (f *MemoryStorageFeed) SimpleEdges() ([]model.EdgePair, error) {
	seen := map[model.EdgePair]bool{}
	pairs := []model.EdgePair{}
	for _, e := range f.edges {
		pair := model.EdgePair{From: e.From, To: e.To}
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}
	sortEdgePairs(pairs)
	return pairs, nil
}

func (f *MemoryStorageFeed) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops, err := f.Stops()
	if err != nil {
		return nil, err
	}
	return nearest(stops, lat, lon, limit), nil
}
