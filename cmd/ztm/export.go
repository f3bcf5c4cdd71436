package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Writes stops, edges and simple edges as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  exportCSV,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	feed, err := loadFeed(cmd)
	if err != nil {
		return err
	}

	err = export.WriteDir(args[0], feed.Reader)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s, %s and %s to %s\n", export.StopsFile, export.EdgesFile, export.SimpleEdgesFile, args[0])
	return nil
}
