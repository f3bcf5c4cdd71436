package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tidbyt.dev/ztm/model"
)

const (
	PSQLEdgeBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id      string
	db      *sql.DB
	edgeBuf []model.Edge
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS feed;
DROP TABLE IF EXISTS feed_data;
DROP TABLE IF EXISTS stop_groups;
DROP TABLE IF EXISTS stops;
DROP TABLE IF EXISTS edges;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    stop_groups INTEGER NOT NULL,
    stops INTEGER NOT NULL,
    edges INTEGER NOT NULL,
    PRIMARY KEY (hash, url)
);

CREATE TABLE IF NOT EXISTS feed_data (
    hash TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS stop_groups (
    hash TEXT NOT NULL,
    id INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (hash, id)
);

CREATE TABLE IF NOT EXISTS stops (
    hash TEXT NOT NULL,
    id TEXT NOT NULL,
    group_name TEXT NOT NULL,
    street TEXT NOT NULL,
    lat DOUBLE PRECISION,
    lon DOUBLE PRECISION,
    PRIMARY KEY (hash, id)
);

CREATE TABLE IF NOT EXISTS edges (
    seq BIGSERIAL PRIMARY KEY,
    hash TEXT NOT NULL,
    route TEXT NOT NULL,
    from_stop TEXT NOT NULL,
    to_stop TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    time_between INTEGER NOT NULL,
    type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS edges_hash_route ON edges (hash, route);
CREATE INDEX IF NOT EXISTS edges_hash_from_stop ON edges (hash, from_stop);
`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
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
	paramCount := 1
	if filter.URL != "" {
		conditions = append(conditions, fmt.Sprintf("url = $%d", paramCount))
		params = append(params, filter.URL)
		paramCount++
	}
	if filter.Hash != "" {
		conditions = append(conditions, fmt.Sprintf("hash = $%d", paramCount))
		params = append(params, filter.Hash)
		paramCount++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, params...)
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

func (s *PSQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    stop_groups,
    stops,
    edges
)
VALUES ($1, $2, $3, $4, $5, $6)
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

func (s *PSQLStorage) DeleteFeedMetadata(url string, hash string) error {
	_, err := s.db.Exec(`
DELETE FROM feed
WHERE url = $1 AND hash = $2
`, url, hash)
	return err
}

func (s *PSQLStorage) GetReader(hash string) (FeedReader, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM feed_data WHERE hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking feed: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("feed %s does not exist", hash)
	}

	return &PSQLFeedReader{
		id: hash,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(hash string) (FeedWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"stop_groups", "stops", "edges"} {
		_, err = tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE hash = $1", table), hash)
		if err != nil {
			return nil, fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO feed_data (hash) VALUES ($1) ON CONFLICT DO NOTHING`, hash)
	if err != nil {
		return nil, fmt.Errorf("registering feed: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	return &PSQLFeedWriter{
		id: hash,
		db: s.db,
	}, nil
}

func (w *PSQLFeedWriter) WriteStopGroup(group *model.StopGroup) error {
	_, err := w.db.Exec(`
INSERT INTO stop_groups (hash, id, name)
VALUES ($1, $2, $3)
ON CONFLICT (hash, id) DO UPDATE SET name = excluded.name`,
		w.id,
		group.ID,
		group.Name,
	)
	if err != nil {
		return fmt.Errorf("inserting stop group: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (hash, id, group_name, street, lat, lon)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (hash, id) DO UPDATE SET
    group_name = excluded.group_name,
    street = excluded.street,
    lat = excluded.lat,
    lon = excluded.lon`,
		w.id,
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

func (w *PSQLFeedWriter) BeginEdges() error {
	return nil
}

func (w *PSQLFeedWriter) WriteEdge(edge *model.Edge) error {
	w.edgeBuf = append(w.edgeBuf, *edge)

	if len(w.edgeBuf) >= PSQLEdgeBatchSize {
		err := w.flushEdges()
		if err != nil {
			return fmt.Errorf("flushing edges: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndEdges() error {
	if len(w.edgeBuf) > 0 {
		err := w.flushEdges()
		if err != nil {
			return fmt.Errorf("flushing edges: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushEdges() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"edges", "hash", "route", "from_stop", "to_stop", "start_time", "end_time", "time_between", "type",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, edge := range w.edgeBuf {
		_, err = stmt.Exec(
			w.id,
			edge.Route,
			edge.From,
			edge.To,
			edge.StartTime,
			edge.EndTime,
			edge.TimeBetween,
			edge.Type,
		)
		if err != nil {
			return fmt.Errorf("COPY edge: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.edgeBuf = nil

	return nil
}

func (w *PSQLFeedWriter) Close() error {
	return w.EndEdges()
}

func (r *PSQLFeedReader) StopGroups() ([]*model.StopGroup, error) {
	rows, err := r.db.Query(`
SELECT id, name
FROM stop_groups
WHERE hash = $1
ORDER BY id`, r.id)
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

func (r *PSQLFeedReader) Stops() ([]*model.Stop, error) {
	rows, err := r.db.Query(`
SELECT id, group_name, street, lat, lon
FROM stops
WHERE hash = $1
ORDER BY id COLLATE "C"`, r.id)
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

func (r *PSQLFeedReader) Stop(id string) (*model.Stop, error) {
	row := r.db.QueryRow(`
SELECT id, group_name, street, lat, lon
FROM stops
WHERE hash = $1 AND id = $2`, r.id, id)

	s, err := scanStop(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning stop: %w", err)
	}
	return s, nil
}

func (r *PSQLFeedReader) Edges(filter EdgeFilter) ([]*model.Edge, error) {
	query := `
SELECT route, from_stop, to_stop, start_time, end_time, time_between, type
FROM edges
WHERE hash = $1`

	params := []interface{}{r.id}
	add := func(cond string, value interface{}) {
		params = append(params, value)
		query += fmt.Sprintf(" AND "+cond, len(params))
	}

	if filter.Route != "" {
		add("route = $%d", filter.Route)
	}
	if filter.From != "" {
		add("from_stop = $%d", filter.From)
	}
	if filter.To != "" {
		add("to_stop = $%d", filter.To)
	}
	if filter.DepartureStart >= 0 {
		add("start_time >= $%d", filter.DepartureStart)
	}
	if filter.DepartureEnd >= 0 {
		add("start_time <= $%d", filter.DepartureEnd)
	}
	query += " ORDER BY seq"

	rows, err := r.db.Query(query, params...)
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

func (r *PSQLFeedReader) SimpleEdges() ([]model.EdgePair, error) {
	rows, err := r.db.Query(`
SELECT DISTINCT from_stop, to_stop
FROM edges
WHERE hash = $1`, r.id)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sorted here to not depend on the database's collation.
	sortEdgePairs(pairs)

	return pairs, nil
}

func (r *PSQLFeedReader) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops, err := r.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting all stops: %w", err)
	}
	return nearest(stops, lat, lon, limit), nil
}
