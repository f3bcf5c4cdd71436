package ztm

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tidbyt.dev/ztm/downloader"
	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/parse"
	"tidbyt.dev/ztm/storage"
)

const (
	DefaultTimeout = 120 * time.Second
	DefaultMaxSize = 800 << 20 // 800 MB
)

var ErrNoFeed = errors.New("no feed found")

// Manager imports timetable exports into storage and loads them back.
//
// Exports are identified by the SHA-256 of their raw (possibly
// zipped) bytes, so an unchanged export is parsed only once no matter
// how many URLs serve it.
type Manager struct {
	Timeout    time.Duration
	MaxSize    int
	CacheTTL   time.Duration
	Encoding   string
	Tags       parse.Tags
	Downloader downloader.Downloader
	Logger     zerolog.Logger

	storage storage.Storage
}

// Creates a new Manager on top of the given storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		Timeout:    DefaultTimeout,
		MaxSize:    DefaultMaxSize,
		Encoding:   EncodingWindows1250,
		Tags:       parse.DefaultTags,
		Downloader: downloader.NewMemoryDownloader(),
		Logger:     zerolog.Nop(),

		storage: s,
	}
}

// Downloads an export and imports it, unless already in storage.
// Downloads go through the Downloader's cache only if CacheTTL is set.
func (m *Manager) ImportURL(
	ctx context.Context,
	url string,
	headers map[string]string,
) (*storage.FeedMetadata, error) {

	body, err := m.Downloader.Get(
		ctx,
		url,
		headers,
		downloader.GetOptions{
			Cache:    m.CacheTTL > 0,
			CacheTTL: m.CacheTTL,
			Timeout:  m.Timeout,
			MaxSize:  m.MaxSize,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}

	return m.importData(url, body)
}

// Imports an export from the local filesystem. The feed is recorded
// under a file:// URL of the absolute path.
func (m *Manager) ImportFile(path string) (*storage.FeedMetadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	body, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}

	return m.importData(FileURL(abs), body)
}

func FileURL(abs string) string {
	return "file://" + filepath.ToSlash(abs)
}

func (m *Manager) importData(url string, body []byte) (*storage.FeedMetadata, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	logger := m.Logger.With().Str("url", url).Str("hash", hash[:12]).Logger()

	// The data may already exist in storage.
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	now := time.Now().UTC()

	for _, feed := range feeds {
		if feed.URL == url {
			// Bump RetrievedAt so Load() picks this one
			// even if the URL served other data in between.
			metadata := *feed
			metadata.RetrievedAt = now
			err = m.storage.WriteFeedMetadata(&metadata)
			if err != nil {
				return nil, fmt.Errorf("writing metadata: %w", err)
			}

			logger.Info().Msg("Feed unchanged")
			return &metadata, nil
		}
	}

	if len(feeds) > 0 {
		// It's in storage, but for a different URL. Add a
		// metadata record for this URL.
		metadata := *feeds[0]
		metadata.URL = url
		metadata.RetrievedAt = now

		err = m.storage.WriteFeedMetadata(&metadata)
		if err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}

		logger.Info().Str("copied_from", feeds[0].URL).Msg("Feed already imported")
		return &metadata, nil
	}

	// Hash doesn't exist in storage. Parse the export.
	schedule := NewSchedule(BytesSource{Data: body, Encoding: m.Encoding})
	schedule.Tags = m.Tags
	schedule.Logger = logger

	err = schedule.Read()
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	err = WriteSchedule(writer, schedule)
	closeErr := writer.Close()
	if err != nil || closeErr != nil {
		return nil, errors.Join(err, closeErr)
	}

	metadata := &storage.FeedMetadata{
		URL:         url,
		Hash:        hash,
		RetrievedAt: now,
		StopGroups:  len(schedule.StopGroups()),
		Stops:       len(schedule.Stops()),
		Edges:       len(schedule.Edges()),
	}

	err = m.storage.WriteFeedMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	logger.Info().
		Int("stop_groups", metadata.StopGroups).
		Int("stops", metadata.Stops).
		Int("edges", metadata.Edges).
		Msg("Imported feed")

	return metadata, nil
}

// Writes a read schedule. Groups and stops are written in ID order,
// edges in source order.
func WriteSchedule(writer storage.FeedWriter, schedule *Schedule) error {
	if !schedule.IsRead() {
		return ErrNotReady
	}

	groupIDs := []int{}
	for id := range schedule.StopGroups() {
		groupIDs = append(groupIDs, id)
	}
	sort.Ints(groupIDs)
	for _, id := range groupIDs {
		err := writer.WriteStopGroup(&model.StopGroup{ID: id, Name: schedule.StopGroups()[id]})
		if err != nil {
			return fmt.Errorf("writing stop group %04d: %w", id, err)
		}
	}

	stopIDs := []string{}
	for id := range schedule.Stops() {
		stopIDs = append(stopIDs, id)
	}
	sort.Strings(stopIDs)
	for _, id := range stopIDs {
		stop := schedule.Stops()[id]
		err := writer.WriteStop(&stop)
		if err != nil {
			return fmt.Errorf("writing stop %s: %w", id, err)
		}
	}

	err := writer.BeginEdges()
	if err != nil {
		return fmt.Errorf("beginning edges: %w", err)
	}
	edges := schedule.Edges()
	for i := range edges {
		err = writer.WriteEdge(&edges[i])
		if err != nil {
			return fmt.Errorf("writing edge: %w", err)
		}
	}
	err = writer.EndEdges()
	if err != nil {
		return fmt.Errorf("ending edges: %w", err)
	}

	return nil
}

// Loads the most recently retrieved feed for a URL.
func (m *Manager) Load(url string) (*Feed, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	return m.loadMostRecent(feeds)
}

// Loads the most recently retrieved feed regardless of URL.
func (m *Manager) LoadLatest() (*Feed, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	return m.loadMostRecent(feeds)
}

func (m *Manager) loadMostRecent(feeds []*storage.FeedMetadata) (*Feed, error) {
	if len(feeds) == 0 {
		return nil, ErrNoFeed
	}

	sort.SliceStable(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})

	reader, err := m.storage.GetReader(feeds[0].Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	return NewFeed(reader, feeds[0]), nil
}
