package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/export"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/search"
)

var (
	dbFlags      = config.DefaultConfig().Database
	dropExisting bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the indexed boundaries to PostGIS",
	Long: `Build the boundary index and copy every polygon, as normalized for
querying, into a PostGIS table for inspection in a GIS.

Each row carries the tier, district, level, name and source file of the
polygon. The table is truncated before loading.`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&dbFlags.Host, "db-host", dbFlags.Host, "PostgreSQL host")
	exportCmd.Flags().IntVar(&dbFlags.Port, "db-port", dbFlags.Port, "PostgreSQL port")
	exportCmd.Flags().StringVarP(&dbFlags.Name, "db-name", "d", dbFlags.Name, "PostgreSQL database name")
	exportCmd.Flags().StringVarP(&dbFlags.User, "db-user", "U", dbFlags.User, "PostgreSQL user")
	exportCmd.Flags().StringVarP(&dbFlags.Password, "db-password", "W", dbFlags.Password, "PostgreSQL password")
	exportCmd.Flags().StringVar(&dbFlags.Schema, "db-schema", dbFlags.Schema, "PostgreSQL schema")
	exportCmd.Flags().StringVar(&dbFlags.Table, "db-table", dbFlags.Table, "Target table")
	exportCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop the target table before loading")
}

// applyDatabaseFlags copies explicitly set database flags over the loaded configuration
func applyDatabaseFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("db-host", func() { cfg.Database.Host = dbFlags.Host })
	set("db-port", func() { cfg.Database.Port = dbFlags.Port })
	set("db-name", func() { cfg.Database.Name = dbFlags.Name })
	set("db-user", func() { cfg.Database.User = dbFlags.User })
	set("db-password", func() { cfg.Database.Password = dbFlags.Password })
	set("db-schema", func() { cfg.Database.Schema = dbFlags.Schema })
	set("db-table", func() { cfg.Database.Table = dbFlags.Table })
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()
	applyDatabaseFlags(cmd)
	ctx := context.Background()
	startCollector(ctx)

	idx, err := buildIndex(ctx, search.NewRegistry(), nil)
	if err != nil {
		exitWithError("failed to build index", err)
	}

	log.Info("Starting PostGIS export",
		zap.String("database", cfg.Database.Name),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("user", cfg.Database.User),
		zap.String("schema", cfg.Database.Schema),
		zap.String("table", cfg.Database.Table),
	)

	start := time.Now()
	rows := export.Rows(idx)

	exp, err := export.NewExporter(ctx, cfg, dropExisting)
	if err != nil {
		exitWithError("failed to connect", err)
	}
	defer exp.Close()

	stats, err := exp.Run(ctx, rows)
	if err != nil {
		exitWithError("export failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Export complete",
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.Int64("rows", stats.RowsExported),
		zap.Float64("throughput_rows_s", float64(stats.RowsExported)/elapsed.Seconds()),
	)
}
