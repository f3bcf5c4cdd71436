package ztm

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/parse"
)

var ErrNotReady = errors.New("schedule has not been read")

// A transit network read from a ZTM timetable export. Stops are the
// nodes and Edges the timed hops between them.
//
// Read must complete before the derived views (SimpleEdgeList,
// Adjacency) are available. A Schedule is not safe for concurrent
// use while reading, and should be treated as read-only afterwards.
type Schedule struct {
	Tags   parse.Tags
	Logger zerolog.Logger

	source     Source
	stopGroups map[int]string
	stops      map[string]model.Stop
	edges      []model.Edge
	isRead     bool
}

func NewSchedule(source Source) *Schedule {
	return &Schedule{
		Tags:   parse.DefaultTags,
		Logger: zerolog.Nop(),

		source:     source,
		stopGroups: map[int]string{},
		stops:      map[string]model.Stop{},
		edges:      []model.Edge{},
	}
}

// Reads the source in three passes: stop group names, then stops
// (which reference groups), then route occurrences (which reference
// stops). Each pass opens the source anew.
func (s *Schedule) Read() error {
	started := time.Now()

	s.isRead = false
	s.stopGroups = map[int]string{}
	s.stops = map[string]model.Stop{}
	s.edges = []model.Edge{}

	err := s.pass("stop groups", s.readStopGroups)
	if err != nil {
		return err
	}

	err = s.pass("stops", s.readStops)
	if err != nil {
		return err
	}

	err = s.pass("routes", s.readRoutes)
	if err != nil {
		return err
	}

	s.isRead = true

	s.Logger.Info().
		Int("stop_groups", len(s.stopGroups)).
		Int("stops", len(s.stops)).
		Int("edges", len(s.edges)).
		Dur("elapsed", time.Since(started)).
		Msg("Read schedule")

	return nil
}

func (s *Schedule) pass(name string, read func(src io.Reader) error) error {
	rc, err := s.source.Open()
	if err != nil {
		return fmt.Errorf("opening source for %s: %w", name, err)
	}
	defer rc.Close()

	err = read(rc)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}

	s.Logger.Debug().Str("pass", name).Msg("Pass complete")
	return nil
}

func (s *Schedule) readStopGroups(src io.Reader) error {
	groups, err := parse.ReadStopGroups(src, s.Tags)
	if err != nil {
		return err
	}
	for _, group := range groups {
		s.stopGroups[group.ID] = group.Name
	}
	return nil
}

func (s *Schedule) readStops(src io.Reader) error {
	stops, err := parse.ReadStops(src, s.Tags, parse.GroupMap(s.stopGroups))
	if err != nil {
		return err
	}
	for _, stop := range stops {
		s.stops[stop.ID] = stop
	}
	return nil
}

func (s *Schedule) readRoutes(src io.Reader) error {
	edges, err := parse.ReadEdges(src, s.Tags)
	if err != nil {
		return err
	}
	s.edges = append(s.edges, edges...)
	return nil
}

// Whether Read has completed.
func (s *Schedule) IsRead() bool {
	return s.isRead
}

// Stop group names, by group ID.
func (s *Schedule) StopGroups() map[int]string {
	return s.stopGroups
}

// All stops, by ID.
func (s *Schedule) Stops() map[string]model.Stop {
	return s.stops
}

func (s *Schedule) Stop(id string) (model.Stop, bool) {
	stop, found := s.stops[id]
	return stop, found
}

// All edges, in the order their route occurrences appear in the
// source.
func (s *Schedule) Edges() []model.Edge {
	return s.edges
}

// Returns the distinct (from, to) stop pairs connected by at least
// one edge, ordered by from and then to.
func (s *Schedule) SimpleEdgeList() ([]model.EdgePair, error) {
	if !s.isRead {
		return nil, ErrNotReady
	}
	return SimpleEdges(s.edges), nil
}

// Returns the distinct successors of every stop with outgoing edges.
func (s *Schedule) Adjacency() (map[string][]string, error) {
	pairs, err := s.SimpleEdgeList()
	if err != nil {
		return nil, err
	}

	adjacency := map[string][]string{}
	for _, pair := range pairs {
		adjacency[pair.From] = append(adjacency[pair.From], pair.To)
	}
	return adjacency, nil
}

// Deduplicates edges into (from, to) pairs, ordered by from and then
// to.
func SimpleEdges(edges []model.Edge) []model.EdgePair {
	seen := map[model.EdgePair]bool{}
	pairs := []model.EdgePair{}
	for _, edge := range edges {
		pair := model.EdgePair{From: edge.From, To: edge.To}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].From != pairs[j].From {
			return pairs[i].From < pairs[j].From
		}
		return pairs[i].To < pairs[j].To
	})

	return pairs
}
