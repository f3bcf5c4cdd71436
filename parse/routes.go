package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tidbyt.dev/ztm/model"
)

// Parses a HH.MM time into minutes after midnight. Hours past 24 are
// used for trips running after midnight; these wrap around to the
// start of the day.
func ParseTime(s string) (int, error) {
	split := strings.Split(s, ".")
	if len(split) != 2 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hm := [2]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		if j < 0 || str[0] == '+' {
			return 0, fmt.Errorf("negative or signed value in '%s' pos %d", s, i)
		}
		hm[i] = j
	}

	return (hm[0]*60 + hm[1]) % model.MinutesPerDay, nil
}

// A stop visit within a route occurrence.
type RouteVisit struct {
	Route  string
	StopID string
	Type   string
	Time   int
}

// Parses a route occurrence line, holding route ID, stop ID, type and
// time separated by whitespace. Returns false for malformed lines.
func ParseRouteLine(line string) (RouteVisit, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 4 {
		return RouteVisit{}, false
	}

	t, err := ParseTime(tokens[3])
	if err != nil {
		return RouteVisit{}, false
	}

	return RouteVisit{
		Route:  tokens[0],
		StopID: tokens[1],
		Type:   tokens[2],
		Time:   t,
	}, true
}

// Builds the edges of a single route occurrence. Each visit after the
// first produces an edge from the preceding visit, as long as both
// are on the same route. A change of route starts over from the
// visit where it happens.
func ParseRouteOccurrence(section []string) []model.Edge {
	edges := []model.Edge{}

	var last *RouteVisit
	for _, line := range section {
		visit, ok := ParseRouteLine(line)
		if !ok {
			continue
		}

		if last != nil && last.Route == visit.Route {
			edges = append(edges, model.Edge{
				Route:       visit.Route,
				From:        last.StopID,
				To:          visit.StopID,
				StartTime:   last.Time,
				EndTime:     visit.Time,
				TimeBetween: visit.Time - last.Time,
				Type:        visit.Type,
			})
		}

		last = &visit
	}

	return edges
}

// Reads every route occurrence section in r and returns the edges of
// all of them, in file order.
func ReadEdges(r io.Reader, tags Tags) ([]model.Edge, error) {
	tags = tags.WithDefaults()

	edges := []model.Edge{}
	scanner := NewSectionScanner(NewLineReader(r), tags.Routes)
	for i := 0; ; i++ {
		section, found, err := scanner.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s section %d", tags.Routes, i)
		}
		if !found {
			break
		}
		edges = append(edges, ParseRouteOccurrence(section)...)
	}

	return edges, nil
}
