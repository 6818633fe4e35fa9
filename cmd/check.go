package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/search"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and load every boundary file",
	Long: `Run a full index build without serving it.

Every configured file is read and every ring normalized, so a clean run
means serve will start with the same data. Use --strict to also fail on
rings that would otherwise be dropped with a warning.`,
	Args: cobra.NoArgs,
	Run:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	log := logger.Get()

	ctx := context.Background()
	collector := startCollector(ctx)

	idx, err := buildIndex(ctx, search.NewRegistry(), nil)
	if err != nil {
		exitWithError("check failed", err)
	}

	st := idx.Stats()
	fields := []zap.Field{
		zap.Int("hierarchy_sets", st.HierarchySets),
		zap.Int("district_par_sets", st.DistrictParSets),
		zap.Int("district_par_any_sets", st.DistrictParAnySets),
		zap.Int("polygons", st.HierarchyPolygons+st.DistrictParPolygons+st.DistrictParAnyPolygons),
		zap.Int("skipped_files", st.SkippedFiles),
		zap.Duration("duration", st.Duration),
	}
	if m := collector.GetMetrics(); m != nil {
		fields = append(fields,
			zap.Float64("rss_mb", m.ProcessRSSMB),
			zap.Float64("heap_mb", m.HeapAllocMB))
	}
	log.Info("Check passed", fields...)
}
