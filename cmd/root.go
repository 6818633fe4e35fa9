package cmd

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/logger"
)

const defaultConfigFile = "revgeo.yaml"

var (
	cfg             = config.DefaultConfig()
	configFile      string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
	workers         int
	shapefilePath   string
	strict          bool
)

var rootCmd = &cobra.Command{
	Use:   "revgeo",
	Short: "Reverse geocoding over administrative boundary shapefiles",
	Long: `revgeo resolves a longitude/latitude pair to every administrative region
containing it.

Boundaries are loaded from shapefiles into a three-tier index:
  - hierarchies:      always searched, in configuration order
  - district_par:     searched for every district matched in tier 1
  - district_par_any: file patterns, at most one match per district`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := loadConfig(cmd)

		// Initialize logger with optional file output
		logger.InitWithFile(cfg.Verbose, cfg.LogFile)

		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		logger.Get().Debug("Configuration loaded",
			zap.String("file", configFile),
			zap.String("shapefile_path", cfg.Search.Shapefile.Path),
			zap.Strings("districts", cfg.Search.Districts),
			zap.Int("workers", cfg.Workers))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the YAML configuration (default "+defaultConfigFile+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", cfg.Workers, "Number of files loaded in parallel per district")
	rootCmd.PersistentFlags().StringVar(&shapefilePath, "shapefile-path", "", "Root directory of the boundary shapefiles")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "Fail on rings with unexpected winding or invalid geometry")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging, 0 disables (e.g., 10s, 1m)")
}

// loadConfig reads the configuration file, then .env and REVGEO_* variables,
// then flags the user set explicitly
func loadConfig(cmd *cobra.Command) error {
	path := configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
		configFile = path
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("shapefile-path") {
		cfg.Search.Shapefile.Path = shapefilePath
	}
	if flags.Changed("strict") {
		cfg.Search.Strict = strict
	}
	if flags.Changed("metrics-interval") {
		cfg.MetricsInterval = metricsInterval
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
