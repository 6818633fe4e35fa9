package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/search"
)

var queryCmd = &cobra.Command{
	Use:   "query <lon> <lat>",
	Short: "Build the index and resolve one coordinate",
	Long: `Build the boundary index and print the regions containing the point
as a JSON array, ordered by level.

Example:
  revgeo query 126.9780 37.5665`,
	Args: cobra.ExactArgs(2),
	Run:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func parseCoordinate(lonArg, latArg string) (lon, lat float64, err error) {
	lon, err = strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", lonArg, err)
	}
	lat, err = strconv.ParseFloat(latArg, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", latArg, err)
	}
	return lon, lat, nil
}

func runQuery(cmd *cobra.Command, args []string) {
	log := logger.Get()

	lon, lat, err := parseCoordinate(args[0], args[1])
	if err != nil {
		exitWithError("invalid coordinate", err)
	}

	ctx := context.Background()
	startCollector(ctx)

	registry := search.NewRegistry()
	if _, err := buildIndex(ctx, registry, nil); err != nil {
		exitWithError("failed to build index", err)
	}

	results, err := search.NewEngine(registry, cfg.Search.QueryWorkers, nil,
		search.WithMatchLogging(cfg.Search.Debug)).Search(lon, lat)
	if err != nil {
		exitWithError("query failed", err)
	}
	log.Debug("Query complete",
		zap.Float64("lon", lon),
		zap.Float64("lat", lat),
		zap.Int("matches", len(results)))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		exitWithError("failed to write results", err)
	}
}
