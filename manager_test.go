package ztm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/ztm"
	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/parse"
	"tidbyt.dev/ztm/storage"
	"tidbyt.dev/ztm/testutil"
)

type MockZTMServer struct {
	Feeds    map[string][]byte
	Requests []string
	Server   *httptest.Server
}

func (m *MockZTMServer) handler(w http.ResponseWriter, r *http.Request) {
	m.Requests = append(m.Requests, r.URL.Path)
	if feed, found := m.Feeds[r.URL.Path]; found {
		w.Write(feed)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

func managerFixture(t *testing.T) *MockZTMServer {
	m := &MockZTMServer{
		Feeds:    map[string][]byte{},
		Requests: []string{},
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(m.Server.Close)

	return m
}

// Same as SimpleExport, but with an extra group and route.
func extendedExport() string {
	return testutil.BuildExport(
		[]testutil.Group{
			{ID: 1001, Name: "Kijowska", Stops: []testutil.Stop{
				{ID: "100101", Street: "Ul./Pl.: Kijowska", Lat: "52.248455", Lon: "21.044827"},
			}},
			{ID: 7009, Name: "Centrum", Stops: []testutil.Stop{
				{ID: "700901", Street: "Ul./Pl.: Marszałkowska", Lat: "52.2311", Lon: "21.0109"},
			}},
		},
		[][]testutil.Visit{
			{
				{"M1", "100101", "DP", "6.00"},
				{"M1", "700901", "DP", "6.12"},
			},
		},
	)
}

func TestManagerImportURL(t *testing.T) {
	server := managerFixture(t)
	server.Feeds["/ztm.txt"] = testutil.EncodeWindows1250(t, testutil.SimpleExport())

	s := storage.NewMemoryStorage()
	m := ztm.NewManager(s)

	url := server.Server.URL + "/ztm.txt"
	metadata, err := m.ImportURL(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, url, metadata.URL)
	assert.Equal(t, 2, metadata.StopGroups)
	assert.Equal(t, 4, metadata.Stops)
	assert.Equal(t, 4, metadata.Edges)
	assert.Equal(t, 64, len(metadata.Hash))

	feed, err := m.Load(url)
	require.NoError(t, err)
	assert.Equal(t, metadata.Hash, feed.Metadata.Hash)

	pairs, err := feed.SimpleEdgeList()
	require.NoError(t, err)
	assert.Equal(t, []model.EdgePair{
		{From: "100101", To: "100201"},
		{From: "100201", To: "100202"},
		{From: "100202", To: "100102"},
	}, pairs)

	stop, err := feed.Reader.Stop("100201")
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, "Dworzec Wileński", stop.GroupName)

	stops, err := feed.NearbyStops(52.254, 21.035, 1)
	require.NoError(t, err)
	require.Equal(t, 1, len(stops))
	assert.Equal(t, "100201", stops[0].ID)
}

func TestManagerImportZipped(t *testing.T) {
	server := managerFixture(t)
	server.Feeds["/ztm.zip"] = testutil.BuildZip(t, map[string][]byte{
		"RA230301.TXT": testutil.EncodeWindows1250(t, testutil.SimpleExport()),
	})

	m := ztm.NewManager(storage.NewMemoryStorage())

	metadata, err := m.ImportURL(context.Background(), server.Server.URL+"/ztm.zip", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, metadata.Stops)
	assert.Equal(t, 4, metadata.Edges)
}

func TestManagerSkipsKnownHash(t *testing.T) {
	server := managerFixture(t)
	data := testutil.EncodeWindows1250(t, testutil.SimpleExport())
	server.Feeds["/a.txt"] = data
	server.Feeds["/b.txt"] = data

	s := storage.NewMemoryStorage()
	m := ztm.NewManager(s)

	a, err := m.ImportURL(context.Background(), server.Server.URL+"/a.txt", nil)
	require.NoError(t, err)

	// Same URL again: nothing new
	a2, err := m.ImportURL(context.Background(), server.Server.URL+"/a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, a2.Hash)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, len(feeds))
	assert.Equal(t, 1, len(s.Feeds))

	// Same data on another URL: metadata is copied, data shared
	b, err := m.ImportURL(context.Background(), server.Server.URL+"/b.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Edges, b.Edges)

	feeds, err = s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, len(feeds))
	assert.Equal(t, 1, len(s.Feeds))

	feed, err := m.Load(server.Server.URL + "/b.txt")
	require.NoError(t, err)
	edges, err := feed.Reader.Edges(storage.AllEdges)
	require.NoError(t, err)
	assert.Equal(t, 4, len(edges))

	assert.Equal(t, []string{"/a.txt", "/a.txt", "/b.txt"}, server.Requests)
}

func TestManagerLoadMostRecent(t *testing.T) {
	server := managerFixture(t)
	v1 := testutil.EncodeWindows1250(t, testutil.SimpleExport())
	v2 := testutil.EncodeWindows1250(t, extendedExport())

	s := storage.NewMemoryStorage()
	m := ztm.NewManager(s)
	url := server.Server.URL + "/ztm.txt"

	server.Feeds["/ztm.txt"] = v1
	_, err := m.ImportURL(context.Background(), url, nil)
	require.NoError(t, err)

	server.Feeds["/ztm.txt"] = v2
	_, err = m.ImportURL(context.Background(), url, nil)
	require.NoError(t, err)

	feed, err := m.Load(url)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Metadata.Edges)

	// Back to v1: the stored copy is reused and becomes current
	server.Feeds["/ztm.txt"] = v1
	_, err = m.ImportURL(context.Background(), url, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, len(s.Feeds))

	feed, err = m.Load(url)
	require.NoError(t, err)
	assert.Equal(t, 4, feed.Metadata.Edges)

	latest, err := m.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, feed.Metadata.Hash, latest.Metadata.Hash)
}

func TestManagerImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "RA230301.TXT")
	require.NoError(t, os.WriteFile(path, testutil.EncodeWindows1250(t, testutil.SimpleExport()), 0644))

	m := ztm.NewManager(storage.NewMemoryStorage())

	metadata, err := m.ImportFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(metadata.URL, "file://"))
	assert.True(t, strings.HasSuffix(metadata.URL, "/RA230301.TXT"))

	feed, err := m.Load(metadata.URL)
	require.NoError(t, err)
	assert.Equal(t, 4, feed.Metadata.Stops)

	_, err = m.ImportFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestManagerErrors(t *testing.T) {
	server := managerFixture(t)
	server.Feeds["/broken.txt"] = []byte("*ZP 1\r\n   1001   Kijowska,   KODY: --\r\n")
	server.Feeds["/unresolved.txt"] = testutil.EncodeWindows1250(t, testutil.BuildExport(
		[]testutil.Group{{ID: 1001, Name: "Kijowska", Stops: []testutil.Stop{
			{ID: "200101", Street: "Ul./Pl.: Kijowska"},
		}}},
		nil,
	))

	s := storage.NewMemoryStorage()
	m := ztm.NewManager(s)

	_, err := m.Load(server.Server.URL + "/broken.txt")
	assert.ErrorIs(t, err, ztm.ErrNoFeed)

	_, err = m.LoadLatest()
	assert.ErrorIs(t, err, ztm.ErrNoFeed)

	// 404
	_, err = m.ImportURL(context.Background(), server.Server.URL+"/missing.txt", nil)
	assert.Error(t, err)

	// Unterminated group section
	_, err = m.ImportURL(context.Background(), server.Server.URL+"/broken.txt", nil)
	assert.ErrorIs(t, err, parse.ErrEndOfStream)

	// Stop in a group that doesn't exist
	_, err = m.ImportURL(context.Background(), server.Server.URL+"/unresolved.txt", nil)
	assert.ErrorIs(t, err, parse.ErrUnresolvedGroup)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, len(feeds))
	assert.Equal(t, 0, len(s.Feeds))
}

func TestWriteScheduleRequiresRead(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("x")
	require.NoError(t, err)

	schedule := ztm.NewSchedule(ztm.BytesSource{Data: []byte(testutil.SimpleExport()), Encoding: ztm.EncodingUTF8})
	assert.ErrorIs(t, ztm.WriteSchedule(writer, schedule), ztm.ErrNotReady)

	require.NoError(t, schedule.Read())
	require.NoError(t, ztm.WriteSchedule(writer, schedule))
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("x")
	require.NoError(t, err)
	groups, err := reader.StopGroups()
	require.NoError(t, err)
	assert.Equal(t, []*model.StopGroup{
		{ID: 1001, Name: "Kijowska"},
		{ID: 1002, Name: "Dworzec Wileński"},
	}, groups)
}

func TestFeedDepartures(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("x")
	require.NoError(t, err)
	schedule := ztm.NewSchedule(ztm.BytesSource{Data: []byte(testutil.SimpleExport()), Encoding: ztm.EncodingUTF8})
	require.NoError(t, schedule.Read())
	require.NoError(t, ztm.WriteSchedule(writer, schedule))

	reader, err := s.GetReader("x")
	require.NoError(t, err)
	feed := ztm.NewFeed(reader, &storage.FeedMetadata{Hash: "x"})

	for _, tc := range []struct {
		name     string
		stop     string
		start    int
		end      int
		expected []int
	}{
		{"morning", "100101", 8 * 60, 9 * 60, []int{480, 540}},
		{"first only", "100101", 0, 8*60 + 30, []int{480}},
		{"none", "100101", 10 * 60, 11 * 60, []int{}},
		{"wrapping window", "100202", 23 * 60, 60, []int{1435}},
		{"wrapping misses", "100202", 23*60 + 56, 60, []int{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			edges, err := feed.Departures(tc.stop, tc.start, tc.end)
			require.NoError(t, err)
			starts := []int{}
			for _, e := range edges {
				starts = append(starts, e.StartTime)
			}
			assert.Equal(t, tc.expected, starts)
		})
	}
}
