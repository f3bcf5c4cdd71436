package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/ztm/model"
)

func fp(f float64) *float64 {
	return &f
}

func TestParseStopLine(t *testing.T) {
	for _, tc := range []struct {
		name string
		line string
		rec  StopRecord
		ok   bool
	}{
		{
			"minimal",
			"000101  TestGroup  TestStreet,  x  50.1234N  20.5678E",
			StopRecord{ID: "000101", GroupID: 1, Street: "TestStreet", Lat: fp(50.1234), Lon: fp(20.5678)},
			true,
		},
		{
			"ztm layout",
			"100101   2      Ul./Pl.: Kijowska,   Kier.: Tarchomin,   Y= 52.248455     X= 21.044827    Pu=0",
			StopRecord{ID: "100101", GroupID: 1001, Street: "Ul./Pl.: Kijowska", Lat: fp(52.248455), Lon: fp(21.044827)},
			true,
		},
		{
			"unknown coordinates",
			"100102   1      Ul./Pl.: Kijowska,   Kier.: Dw. Wileński,   Y= yy.yyyyyy     X= xx.xxxxxx    Pu=?",
			StopRecord{ID: "100102", GroupID: 1001, Street: "Ul./Pl.: Kijowska"},
			true,
		},
		{
			"integer coordinates are not decimals",
			"200201  G  S,  x  52  21",
			StopRecord{ID: "200201", GroupID: 2002, Street: "S"},
			true,
		},
		{"too few fields", "100101   2      Ul./Pl.: Kijowska,", StopRecord{}, false},
		{"group line", "1001   Kijowska,   KODY:  --", StopRecord{}, false},
		{"seven digits", "1001011  G  S,  x  1.0  2.0", StopRecord{}, false},
		{"blank", "", StopRecord{}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec, ok := ParseStopLine(tc.line)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.rec, rec)
		})
	}
}

func TestParseStopsResolvesGroup(t *testing.T) {
	groups := GroupMap(map[int]string{1: "TestGroup", 1001: "Kijowska"})

	stops, err := ParseStops([]string{
		"000101  Ignored  TestStreet,  x  50.1234N  20.5678E",
		"some comment",
		"100101   2      Ul./Pl.: Kijowska,   Kier.: Tarchomin,   Y= 52.248455     X= 21.044827    Pu=0",
	}, groups)
	require.NoError(t, err)

	assert.Equal(t, []model.Stop{
		{ID: "000101", GroupName: "TestGroup", Street: "TestStreet", Lat: fp(50.1234), Lon: fp(20.5678)},
		{ID: "100101", GroupName: "Kijowska", Street: "Ul./Pl.: Kijowska", Lat: fp(52.248455), Lon: fp(21.044827)},
	}, stops)
}

func TestParseStopsUnresolvedGroup(t *testing.T) {
	groups := GroupMap(map[int]string{1: "TestGroup"})

	stops, err := ParseStops([]string{
		"000101  TestGroup  TestStreet,  x  50.1234N  20.5678E",
		"000201  Nope  Street,  x  50.1N  20.5E",
	}, groups)
	require.Error(t, err)
	assert.Nil(t, stops)

	assert.True(t, errors.Is(err, ErrUnresolvedGroup))
	var unresolved *UnresolvedGroupError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "000201", unresolved.StopID)
	assert.Equal(t, 2, unresolved.GroupID)
}

func TestReadStops(t *testing.T) {
	content := `
*ZP  2
   0001  First,
   *PR  2
      000101  First  Street A,  x  Y= 50.5  X= 20.5
      000102  First  Street B,  x  Y= yy.yy  X= xx.xx
   #PR
   0002  Second,
   *PR  1
      bogus line
      000201  Second  Street C,  x  Y= 51.0  X= 21.0
   #PR
#ZP
*WK  1
R1 000101 1 08.00
#WK
`
	groups := GroupMap(map[int]string{1: "First", 2: "Second"})

	stops, err := ReadStops(strings.NewReader(content), DefaultTags, groups)
	require.NoError(t, err)
	assert.Equal(t, []model.Stop{
		{ID: "000101", GroupName: "First", Street: "Street A", Lat: fp(50.5), Lon: fp(20.5)},
		{ID: "000102", GroupName: "First", Street: "Street B"},
		{ID: "000201", GroupName: "Second", Street: "Street C", Lat: fp(51.0), Lon: fp(21.0)},
	}, stops)
}

func TestReadStopsUnresolvedGroup(t *testing.T) {
	content := `
*ZP
0001  First,
*PR
000101  First  Street A,  x  Y= 50.5  X= 20.5
000301  Third  Street D,  x  Y= 50.5  X= 20.5
#PR
#ZP
`
	_, err := ReadStops(strings.NewReader(content), DefaultTags, GroupMap(map[int]string{1: "First"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedGroup))
}

func TestReadStopsNoSubsections(t *testing.T) {
	content := `
*ZP
0001  First,
#ZP
`
	stops, err := ReadStops(strings.NewReader(content), DefaultTags, GroupMap(map[int]string{1: "First"}))
	require.NoError(t, err)
	assert.Equal(t, []model.Stop{}, stops)
}
