package parse

import (
	"regexp"
	"strings"
)

// Section tags of a ZTM timetable export.
type Tags struct {
	// Lists stop groups. Also holds one stop sub-section per
	// group.
	Groups string

	// Stop sub-section nested in the group listing.
	Stops string

	// One section per route occurrence.
	Routes string
}

var DefaultTags = Tags{
	Groups: "ZP",
	Stops:  "PR",
	Routes: "WK",
}

// Fills in blank tags with their defaults.
func (t Tags) WithDefaults() Tags {
	if t.Groups == "" {
		t.Groups = DefaultTags.Groups
	}
	if t.Stops == "" {
		t.Stops = DefaultTags.Stops
	}
	if t.Routes == "" {
		t.Routes = DefaultTags.Routes
	}
	return t
}

// Group and stop records delimit their fields with two or more
// spaces, since single spaces occur inside names.
var fieldSeparator = regexp.MustCompile(`\s{2,}`)

func splitFields(line string) []string {
	return fieldSeparator.Split(line, -1)
}

// Reports whether line starts with exactly n digits followed by
// whitespace.
func hasNumericPrefix(line string, n int) bool {
	if len(line) <= n {
		return false
	}
	for i := 0; i < n; i++ {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	switch line[n] {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

func trimCommas(s string) string {
	return strings.Trim(s, ",")
}
