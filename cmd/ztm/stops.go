package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"tidbyt.dev/ztm"
	"tidbyt.dev/ztm/model"
)

const defaultSampleLimit = 12

var stopsCmd = &cobra.Command{
	Use:   "stops [limit]",
	Short: "Lists stops",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  stops,
}

var (
	readFile string
	nearLat  float64
	nearLon  float64
)

func init() {
	stopsCmd.Flags().StringVarP(&readFile, "file", "f", "", "Read an export directly instead of using storage")
	stopsCmd.Flags().Float64VarP(&nearLat, "lat", "", 0, "Order by distance from this latitude")
	stopsCmd.Flags().Float64VarP(&nearLon, "lon", "", 0, "Order by distance from this longitude")
	rootCmd.AddCommand(stopsCmd)
}

func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultSampleLimit, nil
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %w", err)
	}
	if limit < 0 {
		return 0, fmt.Errorf("limit must be >= 0")
	}
	return limit, nil
}

// Reads an export file without touching storage.
func readSchedule(path string) (*ztm.Schedule, error) {
	schedule := ztm.NewSchedule(ztm.FileSource{Path: path, Encoding: cfg.Source.Encoding})
	schedule.Tags = tags()
	schedule.Logger = logger

	err := schedule.Read()
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func formatStop(stop *model.Stop) string {
	location := "-"
	if stop.HasLocation() {
		location = fmt.Sprintf("%f,%f", *stop.Lat, *stop.Lon)
	}
	return fmt.Sprintf("%s: %s (%s) %s", stop.ID, stop.GroupName, stop.Street, location)
}

func stops(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}
	near := cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")

	var stops []*model.Stop
	if readFile != "" {
		schedule, err := readSchedule(readFile)
		if err != nil {
			return err
		}
		for _, stop := range schedule.Stops() {
			stop := stop
			stops = append(stops, &stop)
		}
		sort.Slice(stops, func(i, j int) bool {
			return stops[i].ID < stops[j].ID
		})
	} else {
		feed, err := loadFeed(cmd)
		if err != nil {
			return err
		}
		if near {
			stops, err = feed.NearbyStops(nearLat, nearLon, limit)
		} else {
			stops, err = feed.Reader.Stops()
		}
		if err != nil {
			return err
		}
	}

	for i, stop := range stops {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Println(formatStop(stop))
	}

	return nil
}
