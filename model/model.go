package model

import (
	"fmt"
)

// Holds all external facing types and constants.

const MinutesPerDay = 24 * 60

// A named cluster of co-located stops. Stops belonging to the group
// share the group's 4 digit ID as prefix.
type StopGroup struct {
	ID   int
	Name string
}

// A single boarding point. Coordinates are missing for some stops in
// the source data, hence the pointers.
type Stop struct {
	ID        string
	GroupName string
	Street    string
	Lat       *float64
	Lon       *float64
}

// GroupID is the 4 digit prefix of the stop ID.
func (s *Stop) GroupID() string {
	if len(s.ID) < 4 {
		return s.ID
	}
	return s.ID[0:4]
}

// HasLocation reports whether both coordinates are known.
func (s *Stop) HasLocation() bool {
	return s.Lat != nil && s.Lon != nil
}

// A directed hop between two consecutive stops of a single route
// occurrence.
//
// Times are minutes after midnight, in [0, MinutesPerDay). Hours past
// 24 are wrapped independently for start and end, so TimeBetween is
// negative for hops crossing midnight.
type Edge struct {
	Route       string
	From        string
	To          string
	StartTime   int
	EndTime     int
	TimeBetween int
	Type        string
}

// Projection of an Edge without route, timing and type.
type EdgePair struct {
	From string
	To   string
}

// Formats minutes after midnight as HH.MM, the notation used in the
// source data.
func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%02d.%02d", minutes/60, minutes%60)
}
