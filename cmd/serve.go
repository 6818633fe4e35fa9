package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/api"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/metrics"
	"github.com/wegman-software/revgeo-go/internal/search"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the index and serve queries over HTTP",
	Long: `Build the boundary index, publish it and serve queries over HTTP.

The listener only starts once the index is published. A failed build stops
the process before any query is served.

Endpoints:
  GET /search?lon=<lon>&lat=<lat>   matching regions ordered by level
  GET /tarantula?lon=<lon>&lat=<lat> alias of /search
  GET /healthz                      200 once the index is published
  GET /metrics                      Prometheus metrics`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSearch(reg)

	registry := search.Default()
	engine := search.NewEngine(registry, cfg.Search.QueryWorkers, m,
		search.WithMatchLogging(cfg.Search.Debug))
	server := api.NewServer(&cfg.Server, api.Handler(engine, registry.Ready, reg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCollector(ctx)

	err := publishThenServe(ctx,
		func(ctx context.Context) error {
			_, err := buildIndex(ctx, registry, m)
			return err
		},
		server.Run)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("Interrupted", zap.Bool("index_ready", registry.Ready()))
	case err != nil:
		exitWithError("server stopped", err)
	}
	log.Info("Server stopped", zap.String("addr", cfg.Server.Addr()))
}

// publishThenServe runs build to completion and only then starts serve.
// A build error is returned without serve ever being called.
func publishThenServe(ctx context.Context, build, serve func(context.Context) error) error {
	if err := build(ctx); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return serve(ctx)
}
