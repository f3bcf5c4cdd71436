package parse

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"tidbyt.dev/ztm/model"
)

// Parses a stop group definition, e.g.
//
//	1001   Kijowska,   KODY:  --
//
// Returns false if the line isn't a group definition.
func ParseGroupLine(line string) (model.StopGroup, bool) {
	if !hasNumericPrefix(line, 4) {
		return model.StopGroup{}, false
	}

	fields := splitFields(line)
	if len(fields) < 2 {
		return model.StopGroup{}, false
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return model.StopGroup{}, false
	}

	return model.StopGroup{
		ID:   id,
		Name: trimCommas(fields[1]),
	}, true
}

// Parses all group definitions in the body of a group listing
// section. Other lines are skipped.
func ParseStopGroups(section []string) []model.StopGroup {
	groups := []model.StopGroup{}
	for _, line := range section {
		group, ok := ParseGroupLine(line)
		if !ok {
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

// Reads the first group listing section from r.
func ReadStopGroups(r io.Reader, tags Tags) ([]model.StopGroup, error) {
	tags = tags.WithDefaults()

	section, err := ScanSection(NewLineReader(r), tags.Groups)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning %s section", tags.Groups)
	}

	return ParseStopGroups(section), nil
}
