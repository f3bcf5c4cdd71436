// Package export writes an imported schedule as CSV files.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/storage"
)

const (
	StopsFile       = "stops.csv"
	EdgesFile       = "edges.csv"
	SimpleEdgesFile = "simple_edges.csv"
)

type stopRow struct {
	ID        string `csv:"stop_id"`
	GroupID   string `csv:"group_id"`
	GroupName string `csv:"group_name"`
	Street    string `csv:"street"`
	Lat       string `csv:"lat"`
	Lon       string `csv:"lon"`
}

type edgeRow struct {
	Route       string `csv:"route"`
	From        string `csv:"from_stop"`
	To          string `csv:"to_stop"`
	Departure   string `csv:"departure"`
	Arrival     string `csv:"arrival"`
	TimeBetween int    `csv:"time_between"`
	Type        string `csv:"type"`
}

type edgePairRow struct {
	From string `csv:"from_stop"`
	To   string `csv:"to_stop"`
}

func formatCoord(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func WriteStopsCSV(w io.Writer, stops []*model.Stop) error {
	rows := make([]*stopRow, 0, len(stops))
	for _, s := range stops {
		rows = append(rows, &stopRow{
			ID:        s.ID,
			GroupID:   s.GroupID(),
			GroupName: s.GroupName,
			Street:    s.Street,
			Lat:       formatCoord(s.Lat),
			Lon:       formatCoord(s.Lon),
		})
	}

	err := gocsv.Marshal(rows, w)
	if err != nil {
		return fmt.Errorf("marshaling stops: %w", err)
	}
	return nil
}

// Departure and arrival are rendered HH.MM as in the source export.
func WriteEdgesCSV(w io.Writer, edges []*model.Edge) error {
	rows := make([]*edgeRow, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, &edgeRow{
			Route:       e.Route,
			From:        e.From,
			To:          e.To,
			Departure:   model.FormatMinutes(e.StartTime),
			Arrival:     model.FormatMinutes(e.EndTime),
			TimeBetween: e.TimeBetween,
			Type:        e.Type,
		})
	}

	err := gocsv.Marshal(rows, w)
	if err != nil {
		return fmt.Errorf("marshaling edges: %w", err)
	}
	return nil
}

func WriteSimpleEdgesCSV(w io.Writer, pairs []model.EdgePair) error {
	rows := make([]*edgePairRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, &edgePairRow{From: p.From, To: p.To})
	}

	err := gocsv.Marshal(rows, w)
	if err != nil {
		return fmt.Errorf("marshaling simple edges: %w", err)
	}
	return nil
}

// Writes stops, edges and simple edges of a feed into dir.
func WriteDir(dir string, reader storage.FeedReader) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	stops, err := reader.Stops()
	if err != nil {
		return fmt.Errorf("reading stops: %w", err)
	}
	edges, err := reader.Edges(storage.AllEdges)
	if err != nil {
		return fmt.Errorf("reading edges: %w", err)
	}
	pairs, err := reader.SimpleEdges()
	if err != nil {
		return fmt.Errorf("reading simple edges: %w", err)
	}

	for name, write := range map[string]func(io.Writer) error{
		StopsFile:       func(w io.Writer) error { return WriteStopsCSV(w, stops) },
		EdgesFile:       func(w io.Writer) error { return WriteEdgesCSV(w, edges) },
		SimpleEdgesFile: func(w io.Writer) error { return WriteSimpleEdgesCSV(w, pairs) },
	} {
		err = writeFile(filepath.Join(dir, name), write)
		if err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	err = write(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
