package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm/downloader"
)

var importCmd = &cobra.Command{
	Use:   "import [path|url]",
	Short: "Imports a timetable export into storage",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  importExport,
}

var (
	cacheDir string
	cacheTTL time.Duration
)

func init() {
	importCmd.Flags().StringVarP(&cacheDir, "cache-dir", "", "", "Cache downloads in this directory")
	importCmd.Flags().DurationVarP(&cacheTTL, "cache-ttl", "", 12*time.Hour, "How long cached downloads are used")
	rootCmd.AddCommand(importCmd)
}

func importExport(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
			cfg.Source.URL = args[0]
			cfg.Source.Path = ""
		} else {
			cfg.Source.URL = ""
			cfg.Source.Path = args[0]
		}
	}
	if cfg.Source.URL == "" && cfg.Source.Path == "" {
		return fmt.Errorf("nothing to import, pass a path or URL")
	}

	s, err := openStorage()
	if err != nil {
		return err
	}

	manager := newManager(s)
	if cacheDir != "" {
		fs, err := downloader.NewFilesystem(cacheDir)
		if err != nil {
			return fmt.Errorf("creating download cache: %w", err)
		}
		manager.Downloader = fs
		manager.CacheTTL = cacheTTL
	}

	err = importConfigured(manager, cmd)
	if err != nil {
		return err
	}

	feed, err := manager.LoadLatest()
	if err != nil {
		return err
	}

	m := feed.Metadata
	fmt.Printf("%s\n  hash: %s\n  stop groups: %d\n  stops: %d\n  edges: %d\n",
		m.URL, m.Hash, m.StopGroups, m.Stops, m.Edges)

	return nil
}
