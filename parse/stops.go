package parse

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"tidbyt.dev/ztm/model"
)

var ErrUnresolvedGroup = errors.New("unresolved stop group")

// Returned for stops whose group has not been defined. Group
// definitions always precede the stops in a well-formed export, so
// this is fatal.
type UnresolvedGroupError struct {
	StopID  string
	GroupID int
}

func (e *UnresolvedGroupError) Error() string {
	return fmt.Sprintf("stop %s references unknown group %04d", e.StopID, e.GroupID)
}

func (e *UnresolvedGroupError) Is(target error) bool {
	return target == ErrUnresolvedGroup
}

// Resolves a group ID to its name.
type GroupLookup func(groupID int) (string, bool)

// GroupLookup backed by a map.
func GroupMap(groups map[int]string) GroupLookup {
	return func(groupID int) (string, bool) {
		name, found := groups[groupID]
		return name, found
	}
}

// A stop definition, before its group is resolved.
type StopRecord struct {
	ID      string
	GroupID int
	Street  string
	Lat     *float64
	Lon     *float64
}

var decimal = regexp.MustCompile(`\d+\.\d+`)

// First decimal number in s, if any.
func findDecimal(s string) *float64 {
	match := decimal.FindString(s)
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Parses a stop definition, e.g.
//
//	100101   2      Ul./Pl.: Kijowska,   Kier.: Tarchomin,   Y= 52.248455     X= 21.044827    Pu=0
//
// Fields are ID, stop type, street, direction, latitude and
// longitude. Returns false if the line isn't a stop definition.
func ParseStopLine(line string) (StopRecord, bool) {
	if !hasNumericPrefix(line, 6) {
		return StopRecord{}, false
	}

	fields := splitFields(line)
	if len(fields) < 6 {
		return StopRecord{}, false
	}

	id := fields[0]
	groupID, err := strconv.Atoi(id[0:4])
	if err != nil {
		return StopRecord{}, false
	}

	return StopRecord{
		ID:      id,
		GroupID: groupID,
		Street:  trimCommas(fields[2]),
		Lat:     findDecimal(fields[4]),
		Lon:     findDecimal(fields[5]),
	}, true
}

// Parses all stop definitions in the body of a stop sub-section,
// resolving each stop's group via groups. Lines that aren't stop
// definitions are skipped.
func ParseStops(section []string, groups GroupLookup) ([]model.Stop, error) {
	stops := []model.Stop{}
	for _, line := range section {
		rec, ok := ParseStopLine(line)
		if !ok {
			continue
		}

		name, found := groups(rec.GroupID)
		if !found {
			return nil, &UnresolvedGroupError{StopID: rec.ID, GroupID: rec.GroupID}
		}

		stops = append(stops, model.Stop{
			ID:        rec.ID,
			GroupName: name,
			Street:    rec.Street,
			Lat:       rec.Lat,
			Lon:       rec.Lon,
		})
	}
	return stops, nil
}

// Reads the group listing section from r and parses the stops of
// every stop sub-section nested within it.
func ReadStops(r io.Reader, tags Tags, groups GroupLookup) ([]model.Stop, error) {
	tags = tags.WithDefaults()

	listing, err := ScanSection(NewLineReader(r), tags.Groups)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "scanning %s section", tags.Groups)
	}

	stops := []model.Stop{}
	scanner := NewSectionScanner(NewLineSlice(listing), tags.Stops)
	for i := 0; ; i++ {
		section, found, err := scanner.Next()
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "scanning %s section %d", tags.Stops, i)
		}
		if !found {
			break
		}

		sectionStops, err := ParseStops(section, groups)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "parsing %s section %d", tags.Stops, i)
		}
		stops = append(stops, sectionStops...)
	}

	return stops, nil
}
