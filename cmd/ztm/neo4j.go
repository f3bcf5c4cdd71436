package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm/graphdb"
)

var neo4jCmd = &cobra.Command{
	Use:   "neo4j",
	Short: "Loads the stop graph into Neo4j",
	Args:  cobra.NoArgs,
	RunE:  exportNeo4j,
}

func init() {
	rootCmd.AddCommand(neo4jCmd)
}

func exportNeo4j(cmd *cobra.Command, args []string) error {
	feed, err := loadFeed(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	driver, err := graphdb.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
	if err != nil {
		return err
	}
	defer driver.Close(ctx)

	exporter := graphdb.NewExporter(driver, cfg.Neo4j.Database)
	exporter.Logger = logger
	if cfg.Neo4j.BatchSize > 0 {
		exporter.BatchSize = cfg.Neo4j.BatchSize
	}

	err = exporter.Export(ctx, feed.Reader)
	if err != nil {
		return err
	}

	stops, hops, err := exporter.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d stops, %d hops in %s\n", stops, hops, cfg.Neo4j.URI)
	return nil
}
