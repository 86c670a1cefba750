package serve

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/reviewdash/internal/api"
	v1 "github.com/tphakala/reviewdash/internal/api/v1"
	"github.com/tphakala/reviewdash/internal/app"
	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/logger"
	"github.com/tphakala/reviewdash/internal/observability"
	"github.com/tphakala/reviewdash/internal/scheduler"
)

// Command creates the command running the HTTP API and the scheduler.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Long:  "Serve the dashboard API and run periodic sync, ingestion and allow-list refresh.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), settings, serve)
		},
	}

	cmd.Flags().String("host", "", "Address the API listens on")
	cmd.Flags().String("port", "", "Port the API listens on")
	cmd.Flags().Bool("telemetry", false, "Expose Prometheus metrics")
	cmd.Flags().String("listen", "", "Separate listen address for metrics")
	for flag, key := range map[string]string{
		"host":      "webserver.host",
		"port":      "webserver.port",
		"telemetry": "telemetry.enabled",
		"listen":    "telemetry.listen",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	log := logger.Global().Module("serve")
	logSystemDetails(log)

	stats, err := a.Stats(ctx)
	if err != nil {
		return err
	}
	apiOpts := []v1.Option{
		v1.WithFeedback(a.Feedback()),
		v1.WithSyncLogs(a.SyncLogs()),
	}
	var (
		syncer   scheduler.Syncer
		ingester scheduler.Ingester
	)
	if s, err := a.Syncer(ctx); err == nil {
		syncer = s
		apiOpts = append(apiOpts, v1.WithSyncer(s))
	} else {
		log.Warn("warehouse sync unavailable", logger.Error(err))
	}
	if i, err := a.Ingester(ctx); err == nil {
		ingester = i
		apiOpts = append(apiOpts, v1.WithIngester(i))
	} else {
		log.Warn("delivery ingestion unavailable", logger.Error(err))
	}

	server, err := api.New(a.Settings, stats, api.WithMetrics(a.Metrics), api.WithAPIOptions(apiOpts...))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if a.Settings.Scheduler.Enabled {
		sched := scheduler.New(a.Settings.Scheduler, syncer, ingester, stats.AllowList())
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	}

	if a.Settings.Telemetry.Enabled && a.Settings.Telemetry.Listen != "" {
		endpoint, err := observability.NewEndpoint(&a.Settings.Telemetry, a.Metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func logSystemDetails(log logger.Logger) {
	info, err := host.Info()
	if err != nil {
		log.Warn("error retrieving host info", logger.Error(err))
		return
	}
	log.Info("system details",
		logger.String("os", info.OS),
		logger.String("platform", info.Platform),
		logger.String("platform_version", info.PlatformVersion),
		logger.String("hostname", info.Hostname))
}
