// Package graphdb loads the stop network into Neo4j: stops become
// (:Stop) nodes and every connected stop pair a [:HOP] relationship.
package graphdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/storage"
)

const DefaultBatchSize = 1000

// All edges between a pair of stops, aggregated.
type Hop struct {
	From   string
	To     string
	Count  int
	Routes []string

	// Shortest non-negative TimeBetween, or -1 if every edge
	// crosses midnight.
	MinMinutes int
}

// Aggregates edges into hops, ordered by from and then to.
func Hops(edges []*model.Edge) []Hop {
	byPair := map[model.EdgePair]*Hop{}
	routes := map[model.EdgePair]map[string]bool{}

	for _, e := range edges {
		pair := model.EdgePair{From: e.From, To: e.To}
		hop, found := byPair[pair]
		if !found {
			hop = &Hop{From: e.From, To: e.To, MinMinutes: -1}
			byPair[pair] = hop
			routes[pair] = map[string]bool{}
		}
		hop.Count++
		if e.TimeBetween >= 0 && (hop.MinMinutes < 0 || e.TimeBetween < hop.MinMinutes) {
			hop.MinMinutes = e.TimeBetween
		}
		routes[pair][e.Route] = true
	}

	hops := make([]Hop, 0, len(byPair))
	for pair, hop := range byPair {
		for route := range routes[pair] {
			hop.Routes = append(hop.Routes, route)
		}
		sort.Strings(hop.Routes)
		hops = append(hops, *hop)
	}

	sort.Slice(hops, func(i, j int) bool {
		if hops[i].From != hops[j].From {
			return hops[i].From < hops[j].From
		}
		return hops[i].To < hops[j].To
	})

	return hops
}

func stopRows(stops []*model.Stop) []map[string]any {
	rows := make([]map[string]any, 0, len(stops))
	for _, s := range stops {
		row := map[string]any{
			"id":         s.ID,
			"group_id":   s.GroupID(),
			"group_name": s.GroupName,
			"street":     s.Street,
			"lat":        nil,
			"lon":        nil,
		}
		if s.Lat != nil {
			row["lat"] = *s.Lat
		}
		if s.Lon != nil {
			row["lon"] = *s.Lon
		}
		rows = append(rows, row)
	}
	return rows
}

func hopRows(hops []Hop) []map[string]any {
	rows := make([]map[string]any, 0, len(hops))
	for _, h := range hops {
		rows = append(rows, map[string]any{
			"from":        h.From,
			"to":          h.To,
			"count":       h.Count,
			"routes":      h.Routes,
			"min_minutes": h.MinMinutes,
		})
	}
	return rows
}

// Splits rows into chunks of at most size.
func batches(rows []map[string]any, size int) [][]map[string]any {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := [][]map[string]any{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// Connects and verifies connectivity.
func Connect(ctx context.Context, uri string, username string, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to %s: %w", uri, err)
	}

	return driver, nil
}

type Exporter struct {
	Database  string
	BatchSize int
	Logger    zerolog.Logger

	driver neo4j.DriverWithContext
}

func NewExporter(driver neo4j.DriverWithContext, database string) *Exporter {
	return &Exporter{
		Database:  database,
		BatchSize: DefaultBatchSize,
		Logger:    zerolog.Nop(),
		driver:    driver,
	}
}

func (e *Exporter) run(ctx context.Context, query string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(
		ctx,
		e.driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.Database),
	)
	return err
}

// Removes all stops and hops.
func (e *Exporter) Clear(ctx context.Context) error {
	err := e.run(ctx, "MATCH (s:Stop) DETACH DELETE s", nil)
	if err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	return nil
}

func (e *Exporter) EnsureConstraints(ctx context.Context) error {
	err := e.run(ctx, "CREATE CONSTRAINT stop_id IF NOT EXISTS FOR (s:Stop) REQUIRE s.id IS UNIQUE", nil)
	if err != nil {
		return fmt.Errorf("creating constraint: %w", err)
	}
	return nil
}

func (e *Exporter) WriteStops(ctx context.Context, stops []*model.Stop) error {
	for i, batch := range batches(stopRows(stops), e.BatchSize) {
		err := e.run(ctx, `
UNWIND $rows AS row
MERGE (s:Stop {id: row.id})
SET s.group_id = row.group_id,
    s.group_name = row.group_name,
    s.street = row.street,
    s.lat = row.lat,
    s.lon = row.lon`,
			map[string]any{"rows": batch},
		)
		if err != nil {
			return fmt.Errorf("writing stop batch %d: %w", i, err)
		}
		e.Logger.Debug().Int("batch", i).Int("size", len(batch)).Msg("Wrote stops")
	}
	return nil
}

// Writes hops. Stops must already exist; hops referencing unknown
// stops are skipped by the MATCH.
func (e *Exporter) WriteHops(ctx context.Context, hops []Hop) error {
	for i, batch := range batches(hopRows(hops), e.BatchSize) {
		err := e.run(ctx, `
UNWIND $rows AS row
MATCH (a:Stop {id: row.from})
MATCH (b:Stop {id: row.to})
MERGE (a)-[h:HOP]->(b)
SET h.count = row.count,
    h.routes = row.routes,
    h.min_minutes = row.min_minutes`,
			map[string]any{"rows": batch},
		)
		if err != nil {
			return fmt.Errorf("writing hop batch %d: %w", i, err)
		}
		e.Logger.Debug().Int("batch", i).Int("size", len(batch)).Msg("Wrote hops")
	}
	return nil
}

// Replaces the graph with the contents of a feed.
func (e *Exporter) Export(ctx context.Context, reader storage.FeedReader) error {
	stops, err := reader.Stops()
	if err != nil {
		return fmt.Errorf("reading stops: %w", err)
	}
	edges, err := reader.Edges(storage.AllEdges)
	if err != nil {
		return fmt.Errorf("reading edges: %w", err)
	}
	hops := Hops(edges)

	err = e.EnsureConstraints(ctx)
	if err != nil {
		return err
	}
	err = e.Clear(ctx)
	if err != nil {
		return err
	}
	err = e.WriteStops(ctx, stops)
	if err != nil {
		return err
	}
	err = e.WriteHops(ctx, hops)
	if err != nil {
		return err
	}

	e.Logger.Info().Int("stops", len(stops)).Int("hops", len(hops)).Msg("Exported graph")

	return nil
}

// Counts stops and hops in the graph.
func (e *Exporter) Counts(ctx context.Context) (int64, int64, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.driver,
		"MATCH (s:Stop) OPTIONAL MATCH (s)-[h:HOP]->() RETURN count(DISTINCT s) AS stops, count(h) AS hops",
		nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.Database),
	)
	if err != nil {
		return 0, 0, fmt.Errorf("counting: %w", err)
	}
	if len(result.Records) == 0 {
		return 0, 0, nil
	}

	record := result.Records[0]
	stops, _, err := neo4j.GetRecordValue[int64](record, "stops")
	if err != nil {
		return 0, 0, fmt.Errorf("reading stop count: %w", err)
	}
	hops, _, err := neo4j.GetRecordValue[int64](record, "hops")
	if err != nil {
		return 0, 0, fmt.Errorf("reading hop count: %w", err)
	}

	return stops, hops, nil
}
