package downloader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/ztm/downloader"
)

type countingServer struct {
	*httptest.Server
	hits   int
	body   string
	status int
	header http.Header
}

func newCountingServer(t *testing.T, body string) *countingServer {
	s := &countingServer{body: body, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits++
		s.header = r.Header.Clone()
		w.WriteHeader(s.status)
		w.Write([]byte(s.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestHTTPGet(t *testing.T) {
	server := newCountingServer(t, "*ZP 0\r\n#ZP\r\n")

	body, err := downloader.HTTPGet(
		context.Background(),
		server.URL,
		map[string]string{"Authorization": "Bearer xyz"},
		downloader.GetOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "*ZP 0\r\n#ZP\r\n", string(body))
	assert.Equal(t, "Bearer xyz", server.header.Get("Authorization"))
	assert.Equal(t, downloader.DefaultUserAgent, server.header.Get("User-Agent"))

	// Exactly at the limit is fine
	body, err = downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{MaxSize: len(server.body)})
	require.NoError(t, err)
	assert.Equal(t, server.body, string(body))

	// Above it is not
	_, err = downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{MaxSize: 3})
	assert.ErrorIs(t, err, downloader.ErrTooLarge)

	server.status = http.StatusNotFound
	_, err = downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{})
	assert.Error(t, err)
}

func testCaching(t *testing.T, d downloader.Downloader, now *time.Time, server *countingServer) {
	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}

	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
	assert.Equal(t, 1, server.hits)

	// Cached
	server.body = "v2"
	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
	assert.Equal(t, 1, server.hits)

	// Caching disabled goes straight to the server
	body, err = d.Get(context.Background(), server.URL, nil, downloader.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, 2, server.hits)

	// Expired
	*now = now.Add(2 * time.Hour)
	body, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, 3, server.hits)
}

func TestMemoryDownloader(t *testing.T) {
	server := newCountingServer(t, "v1")
	now := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)

	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	testCaching(t, d, &now, server)
}

func TestFilesystemDownloader(t *testing.T) {
	server := newCountingServer(t, "v1")
	now := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	d, err := downloader.NewFilesystem(dir)
	require.NoError(t, err)
	d.TimeNow = func() time.Time { return now }

	testCaching(t, d, &now, server)

	// A new instance picks up the index from disk
	d2, err := downloader.NewFilesystem(dir)
	require.NoError(t, err)
	d2.TimeNow = func() time.Time { return now }

	server.body = "v3"
	body, err := d2.Get(context.Background(), server.URL, nil, downloader.GetOptions{Cache: true, CacheTTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
	assert.Equal(t, 3, server.hits)
	assert.True(t, strings.HasSuffix(d2.Records[server.URL].File, ".bin"))
}
