package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/ztm/model"
)

func TestParseTime(t *testing.T) {
	for _, tc := range []struct {
		in      string
		minutes int
		err     bool
	}{
		{"00.00", 0, false},
		{"08.15", 495, false},
		{"8.05", 485, false},
		{"23.59", 1439, false},
		{"24.00", 0, false},
		{"25.30", 90, false},
		{"47.59", 1439, false},
		{"48.01", 1, false},
		{"", 0, true},
		{"08", 0, true},
		{"08:15", 0, true},
		{"08.15.00", 0, true},
		{"ab.cd", 0, true},
		{"-1.30", 0, true},
		{"+1.30", 0, true},
		{"1.", 0, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			minutes, err := ParseTime(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.minutes, minutes)
			assert.True(t, minutes >= 0 && minutes < model.MinutesPerDay)
		})
	}
}

func TestParseRouteLine(t *testing.T) {
	visit, ok := ParseRouteLine("R1 000101 1 08.00")
	require.True(t, ok)
	assert.Equal(t, RouteVisit{Route: "R1", StopID: "000101", Type: "1", Time: 480}, visit)

	visit, ok = ParseRouteLine("  TX-1   100101\tDP   25.30   extra")
	require.True(t, ok)
	assert.Equal(t, RouteVisit{Route: "TX-1", StopID: "100101", Type: "DP", Time: 90}, visit)

	_, ok = ParseRouteLine("R1 000101 1")
	assert.False(t, ok)

	_, ok = ParseRouteLine("R1 000101 1 soon")
	assert.False(t, ok)

	_, ok = ParseRouteLine("")
	assert.False(t, ok)
}

func TestParseRouteOccurrence(t *testing.T) {
	for _, tc := range []struct {
		name    string
		section []string
		edges   []model.Edge
	}{
		{
			"three stops",
			[]string{
				"R1 S0 1 08.00",
				"R1 S1 1 08.10",
				"R1 S2 2 08.25",
			},
			[]model.Edge{
				{Route: "R1", From: "S0", To: "S1", StartTime: 480, EndTime: 490, TimeBetween: 10, Type: "1"},
				{Route: "R1", From: "S1", To: "S2", StartTime: 490, EndTime: 505, TimeBetween: 15, Type: "2"},
			},
		},

		{
			"single stop",
			[]string{"R1 S0 1 08.00"},
			[]model.Edge{},
		},

		{
			"empty",
			[]string{},
			[]model.Edge{},
		},

		{
			"crossing midnight",
			[]string{
				"N1 A 1 23.50",
				"N1 B 1 24.10",
			},
			[]model.Edge{
				{Route: "N1", From: "A", To: "B", StartTime: 1430, EndTime: 10, TimeBetween: -1420, Type: "1"},
			},
		},

		{
			"route change re-anchors",
			[]string{
				"R1 A 1 08.00",
				"R1 B 1 08.05",
				"R2 C 1 08.10",
				"R2 D 1 08.20",
			},
			[]model.Edge{
				{Route: "R1", From: "A", To: "B", StartTime: 480, EndTime: 485, TimeBetween: 5, Type: "1"},
				{Route: "R2", From: "C", To: "D", StartTime: 490, EndTime: 500, TimeBetween: 10, Type: "1"},
			},
		},

		{
			"malformed lines skipped",
			[]string{
				"R1 A 1 08.00",
				"garbage",
				"R1 B 1 xx.yy",
				"R1 C 1 08.30",
			},
			[]model.Edge{
				{Route: "R1", From: "A", To: "C", StartTime: 480, EndTime: 510, TimeBetween: 30, Type: "1"},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.edges, ParseRouteOccurrence(tc.section))
		})
	}
}

func TestReadEdgesSessionsDontLeak(t *testing.T) {
	content := `
*ZP
0001  Group,
#ZP
*TR  1
  *WK  2
     R1 000101 1 08.00
     R1 000102 1 08.15
  #WK
  some other record
  *WK  2
     R1 000103 1 09.00
     R1 000104 1 09.05
  #WK
#TR
*WK 1
  R2 000104 3 10.00
#WK
`
	edges, err := ReadEdges(strings.NewReader(content), DefaultTags)
	require.NoError(t, err)

	// No edge from 000102 to 000103 across occurrences, and none
	// for the lone R2 visit.
	assert.Equal(t, []model.Edge{
		{Route: "R1", From: "000101", To: "000102", StartTime: 480, EndTime: 495, TimeBetween: 15, Type: "1"},
		{Route: "R1", From: "000103", To: "000104", StartTime: 540, EndTime: 545, TimeBetween: 5, Type: "1"},
	}, edges)
}

func TestReadEdgesNoRoutes(t *testing.T) {
	edges, err := ReadEdges(strings.NewReader("*ZP\n#ZP\n"), DefaultTags)
	require.NoError(t, err)
	assert.Equal(t, []model.Edge{}, edges)
}

func TestReadEdgesTruncated(t *testing.T) {
	// The final occurrence never ends, so it is dropped.
	content := `
*WK
R1 A 1 08.00
R1 B 1 08.01
#WK
*WK
R1 C 1 09.00
R1 D 1 09.01
`
	edges, err := ReadEdges(strings.NewReader(content), DefaultTags)
	require.NoError(t, err)
	assert.Equal(t, []model.Edge{
		{Route: "R1", From: "A", To: "B", StartTime: 480, EndTime: 481, TimeBetween: 1, Type: "1"},
	}, edges)
}
