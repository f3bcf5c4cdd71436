package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/ztm/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	feedDB *sql.DB

	// Guards feeds.
	mutex sync.Mutex
	feeds map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	db              *sql.DB
	edgeInsertQuery *sql.Stmt
	edgeInsertTx    *sql.Tx
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func openSQLite(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: gets its own database.
	if sourceName == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/ztm.db"
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    stop_groups INTEGER NOT NULL,
    stops INTEGER NOT NULL,
    edges INTEGER NOT NULL,
PRIMARY KEY (hash, url)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		feedDB: db,
		feeds:  map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    stop_groups,
    stops,
    edges
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.URL != "" {
		conditions = append(conditions, "url = ?")
		params = append(params, filter.URL)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.feedDB.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		var feed FeedMetadata
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.StopGroups,
			&feed.Stops,
			&feed.Edges,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feed.RetrievedAt = feed.RetrievedAt.UTC()
		feeds = append(feeds, &feed)
	}

	return feeds, rows.Err()
}

func (s *SQLiteStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.feedDB.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    stop_groups,
    stops,
    edges
)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    stop_groups = excluded.stop_groups,
    stops = excluded.stops,
    edges = excluded.edges
`,
		feed.Hash,
		feed.URL,
		feed.RetrievedAt,
		feed.StopGroups,
		feed.Stops,
		feed.Edges,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteFeedMetadata(url string, hash string) error {
	_, err := s.feedDB.Exec(`
DELETE FROM feed
WHERE url = ? AND hash = ?
`, url, hash)
	return err
}

func (s *SQLiteStorage) GetReader(feedID string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.feeds[feedID]
	if found {
		return &SQLiteFeedReader{
			db: db,
		}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feedID)
	}

	sourceName := s.Directory + "/" + feedID + ".db"
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feedID, sourceName)
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	s.feeds[feedID] = db

	return &SQLiteFeedReader{
		db: db,
	}, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.feeds[feedID]; found {
		db.Close()
		delete(s.feeds, feedID)
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.Directory + "/" + feedID + ".db"
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	for name, query := range map[string]string{
		"stop_groups": `
CREATE TABLE stop_groups (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);`,
		"stops": `
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    group_name TEXT NOT NULL,
    street TEXT NOT NULL,
    lat REAL,
    lon REAL
);`,
		"edges": `
CREATE TABLE edges (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    route TEXT NOT NULL,
    from_stop TEXT NOT NULL,
    to_stop TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    time_between INTEGER NOT NULL,
    type TEXT NOT NULL
);
CREATE INDEX edges_route ON edges (route);
CREATE INDEX edges_from_stop ON edges (from_stop);
CREATE INDEX edges_to_stop ON edges (to_stop);
`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", name, err)
		}
	}

	s.feeds[feedID] = db

	return &SQLiteFeedWriter{
		db: db,
	}, nil
}

func (f *SQLiteFeedWriter) WriteStopGroup(group *model.StopGroup) error {
	_, err := f.db.Exec(`
INSERT INTO stop_groups (id, name)
VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		group.ID,
		group.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting stop group: %w", err)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func (f *SQLiteFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := f.db.Exec(`
INSERT INTO stops (id, group_name, street, lat, lon)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    group_name = excluded.group_name,
    street = excluded.street,
    lat = excluded.lat,
    lon = excluded.lon`,
		stop.ID,
		stop.GroupName,
		stop.Street,
		nullFloat(stop.Lat),
		nullFloat(stop.Lon),
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) BeginEdges() error {
	// transaction with prepared statement.
	var err error
	f.edgeInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning edge insert transaction: %w", err)
	}

	f.edgeInsertQuery, err = f.edgeInsertTx.Prepare(`
INSERT INTO edges (route, from_stop, to_stop, start_time, end_time, time_between, type)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		f.edgeInsertTx.Rollback()
		f.edgeInsertTx = nil
		return fmt.Errorf("preparing edge insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteEdge(edge *model.Edge) error {
	if f.edgeInsertQuery == nil {
		return fmt.Errorf("WriteEdge called outside BeginEdges/EndEdges")
	}

	_, err := f.edgeInsertQuery.Exec(
		edge.Route,
		edge.From,
		edge.To,
		edge.StartTime,
		edge.EndTime,
		edge.TimeBetween,
		edge.Type,
	)
	if err != nil {
		f.edgeInsertQuery.Close()
		f.edgeInsertTx.Rollback()
		f.edgeInsertTx = nil
		f.edgeInsertQuery = nil
		return fmt.Errorf("inserting edge: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndEdges() error {
	if f.edgeInsertTx == nil {
		return fmt.Errorf("EndEdges called without BeginEdges")
	}

	// commit transaction and clean up
	f.edgeInsertQuery.Close()
	err := f.edgeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing edge insert transaction: %w", err)
	}
	f.edgeInsertTx = nil
	f.edgeInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	if f.edgeInsertTx != nil {
		f.edgeInsertQuery.Close()
		f.edgeInsertTx.Rollback()
		f.edgeInsertTx = nil
		f.edgeInsertQuery = nil
	}

	_, err := f.db.Exec(`ANALYZE;`)
	if err != nil {
		return fmt.Errorf("analyzing database: %w", err)
	}

	return nil
}

func (f *SQLiteFeedReader) StopGroups() ([]*model.StopGroup, error) {
	rows, err := f.db.Query(`
SELECT id, name
FROM stop_groups
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying stop groups: %w", err)
	}
	defer rows.Close()

	groups := []*model.StopGroup{}
	for rows.Next() {
		g := &model.StopGroup{}
		err := rows.Scan(&g.ID, &g.Name)
		if err != nil {
			return nil, fmt.Errorf("scanning stop group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func scanStop(rows interface{ Scan(...interface{}) error }) (*model.Stop, error) {
	s := &model.Stop{}
	var lat, lon sql.NullFloat64
	err := rows.Scan(&s.ID, &s.GroupName, &s.Street, &lat, &lon)
	if err != nil {
		return nil, err
	}
	s.Lat = floatPtr(lat)
	s.Lon = floatPtr(lon)
	return s, nil
}

func (f *SQLiteFeedReader) Stops() ([]*model.Stop, error) {
	rows, err := f.db.Query(`
SELECT id, group_name, street, lat, lon
FROM stops
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []*model.Stop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}

	return stops, rows.Err()
}

func (f *SQLiteFeedReader) Stop(id string) (*model.Stop, error) {
	row := f.db.QueryRow(`
SELECT id, group_name, street, lat, lon
FROM stops
WHERE id = ?`, id)

	s, err := scanStop(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning stop: %w", err)
	}
	return s, nil
}

func (f *SQLiteFeedReader) Edges(filter EdgeFilter) ([]*model.Edge, error) {
	query := `
SELECT route, from_stop, to_stop, start_time, end_time, time_between, type
FROM edges`

	conditions := []string{}
	params := []interface{}{}
	if filter.Route != "" {
		conditions = append(conditions, "route = ?")
		params = append(params, filter.Route)
	}
	if filter.From != "" {
		conditions = append(conditions, "from_stop = ?")
		params = append(params, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "to_stop = ?")
		params = append(params, filter.To)
	}
	if filter.DepartureStart >= 0 {
		conditions = append(conditions, "start_time >= ?")
		params = append(params, filter.DepartureStart)
	}
	if filter.DepartureEnd >= 0 {
		conditions = append(conditions, "start_time <= ?")
		params = append(params, filter.DepartureEnd)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := f.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	edges := []*model.Edge{}
	for rows.Next() {
		e := &model.Edge{}
		err := rows.Scan(&e.Route, &e.From, &e.To, &e.StartTime, &e.EndTime, &e.TimeBetween, &e.Type)
		if err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

func (f *SQLiteFeedReader) SimpleEdges() ([]model.EdgePair, error) {
	rows, err := f.db.Query(`
SELECT DISTINCT from_stop, to_stop
FROM edges
ORDER BY from_stop, to_stop`)
	if err != nil {
		return nil, fmt.Errorf("querying simple edges: %w", err)
	}
	defer rows.Close()

	pairs := []model.EdgePair{}
	for rows.Next() {
		p := model.EdgePair{}
		err := rows.Scan(&p.From, &p.To)
		if err != nil {
			return nil, fmt.Errorf("scanning simple edge: %w", err)
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}

func (f *SQLiteFeedReader) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops, err := f.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting all stops: %w", err)
	}
	return nearest(stops, lat, lon, limit), nil
}
