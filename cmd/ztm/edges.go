package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm"
	"tidbyt.dev/ztm/model"
	"tidbyt.dev/ztm/storage"
)

var edgesCmd = &cobra.Command{
	Use:   "edges [limit]",
	Short: "Lists edges between stops",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  edges,
}

var (
	simple    bool
	edgeRoute string
	edgeFrom  string
	edgeTo    string
)

func init() {
	edgesCmd.Flags().StringVarP(&readFile, "file", "f", "", "Read an export directly instead of using storage")
	edgesCmd.Flags().BoolVarP(&simple, "simple", "", false, "List distinct stop pairs only")
	edgesCmd.Flags().StringVarP(&edgeRoute, "route", "r", "", "Restrict to a specific route")
	edgesCmd.Flags().StringVarP(&edgeFrom, "from", "", "", "Restrict to edges leaving this stop")
	edgesCmd.Flags().StringVarP(&edgeTo, "to", "", "", "Restrict to edges arriving at this stop")
	rootCmd.AddCommand(edgesCmd)
}

func formatEdge(e *model.Edge) string {
	return fmt.Sprintf(
		"%s %s -> %s %s-%s (%d min) %s",
		e.Route, e.From, e.To,
		model.FormatMinutes(e.StartTime), model.FormatMinutes(e.EndTime),
		e.TimeBetween, e.Type,
	)
}

func pairsOf(edges []*model.Edge) []model.EdgePair {
	matched := make([]model.Edge, 0, len(edges))
	for _, e := range edges {
		matched = append(matched, *e)
	}
	return ztm.SimpleEdges(matched)
}

func edges(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}

	filter := storage.EdgeFilter{
		Route:          edgeRoute,
		From:           edgeFrom,
		To:             edgeTo,
		DepartureStart: -1,
		DepartureEnd:   -1,
	}

	var edges []*model.Edge
	var pairs []model.EdgePair

	if readFile != "" {
		schedule, err := readSchedule(readFile)
		if err != nil {
			return err
		}
		all := schedule.Edges()
		for i := range all {
			if filter.Match(&all[i]) {
				edges = append(edges, &all[i])
			}
		}
		if simple {
			pairs = pairsOf(edges)
		}
	} else {
		feed, err := loadFeed(cmd)
		if err != nil {
			return err
		}
		if simple && filter == storage.AllEdges {
			pairs, err = feed.SimpleEdgeList()
		} else {
			edges, err = feed.Reader.Edges(filter)
			if simple {
				pairs = pairsOf(edges)
			}
		}
		if err != nil {
			return err
		}
	}

	if simple {
		for i, p := range pairs {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Printf("%s -> %s\n", p.From, p.To)
		}
		return nil
	}

	for i, e := range edges {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Println(formatEdge(e))
	}

	return nil
}
