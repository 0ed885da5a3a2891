package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recurcal/internal/config"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/schedule"
	"recurcal/internal/web"
)

func serveCmd(g *globals) *cobra.Command {
	var listen string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the schedule API and refresh holiday feeds on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				appLog.Error("failed to load config", err, "config_path", g.configPath)
				return err
			}
			if g.logLevel == "" {
				if level, err := appLog.ParseLevel(cfg.LogLevel); err == nil {
					appLog.SetLevel(level)
				}
			}
			// --listen overrides the config file if provided.
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"week_start", cfg.WeekStart,
				"refresh", cfg.RefreshCron,
				"max_search_days", cfg.MaxSearchDays,
				"schedules", len(cfg.Schedules),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res := schedule.NewResolver(cfg, ics.NewFetcher(cfg.CacheDir), 0)
			if _, err := res.StartRefresh(ctx, cfg.RefreshCron); err != nil {
				return err
			}
			// Warm the cache; failures surface again per request.
			_ = res.Refresh(ctx)

			if err := web.StartServer(ctx, web.NewServer(res)); err != nil {
				appLog.Error("HTTP server failed", err)
				return err
			}
			appLog.Info("recurcal exiting")
			return nil
		},
	}

	c.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return c
}
