package storage

import (
	"time"

	"tidbyt.dev/ztm/model"
)

type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	DeleteFeedMetadata(url string, hash string) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash. Any data
	// previously written for the hash is replaced.
	GetWriter(feed string) (FeedWriter, error)
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for an imported timetable export. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL         string
	Hash        string
	RetrievedAt time.Time
	StopGroups  int
	Stops       int
	Edges       int
}

// Writes the records of a single feed.
//
// Exports hold a lot of edges, so BeginEdges() and EndEdges() are
// called before and after all calls to WriteEdge(), allowing
// transactions/batching.
type FeedWriter interface {
	WriteStopGroup(group *model.StopGroup) error
	WriteStop(stop *model.Stop) error
	BeginEdges() error
	WriteEdge(edge *model.Edge) error
	EndEdges() error
	Close() error
}

type FeedReader interface {
	StopGroups() ([]*model.StopGroup, error)
	Stops() ([]*model.Stop, error)

	// Returns nil if there's no such stop.
	Stop(id string) (*model.Stop, error)

	// Edges matching the filter, in the order they were written.
	Edges(filter EdgeFilter) ([]*model.Edge, error)

	// Distinct (from, to) pairs over all edges, ordered by from
	// and then to.
	SimpleEdges() ([]model.EdgePair, error)

	// Stops with known coordinates, ordered by distance from
	// lat/lon. At most limit results (pass 0 for no limit.)
	NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error)
}

// Filter for Edges(). Blank string fields match everything. The
// departure bounds need -1 to be open, so start from AllEdges.
type EdgeFilter struct {
	Route string
	From  string
	To    string

	// Limit results to edges departing within a range of minutes
	// after midnight (inclusive.) Pass -1 for an open end.
	DepartureStart int
	DepartureEnd   int
}

// Filter matching every edge.
var AllEdges = EdgeFilter{DepartureStart: -1, DepartureEnd: -1}

func (f EdgeFilter) Match(edge *model.Edge) bool {
	if f.Route != "" && edge.Route != f.Route {
		return false
	}
	if f.From != "" && edge.From != f.From {
		return false
	}
	if f.To != "" && edge.To != f.To {
		return false
	}
	if f.DepartureStart >= 0 && edge.StartTime < f.DepartureStart {
		return false
	}
	if f.DepartureEnd >= 0 && edge.StartTime > f.DepartureEnd {
		return false
	}
	return true
}
