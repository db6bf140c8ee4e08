package commands

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"homewatch/api"
	"homewatch/identity"
	"homewatch/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger API and run active searches on a schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var noSchedule bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "only serve the API, never sweep on a timer")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}

	a.logger.Info("=== Homewatch starting ===")
	a.logger.Info("Config: fetch mode %s | concurrency %d | schedule %v | api %s",
		a.cfg.FetchMode, a.cfg.MaxConcurrency, a.cfg.ScheduleInterval, a.cfg.HTTPAddr)

	if !noSchedule && a.cfg.ScheduleInterval > 0 {
		s := scheduler.New(a.store, engine, a.cfg.ScheduleInterval, a.cfg.MaxConcurrency, a.cfg.RateLimitMs, a.logger)
		go func() {
			if err := s.Run(ctx); err != nil {
				a.logger.Error("Scheduler: %v", err)
			}
		}()
	}
	if a.cfg.CronAPIKey == "" {
		a.logger.Warn("CRON_API_KEY not set, GET /api/scrape is disabled")
	}

	users := identity.NewResolver(a.store, placeholderDomain(a.cfg.PlaceholderDomains), a.logger)
	srv := api.NewServer(engine, a.store, identity.HeaderProvider{}, users, a.cfg.CronAPIKey, a.logger)
	return srv.ListenAndServe(ctx, a.cfg.HTTPAddr)
}

// placeholderDomain is the domain new users' synthetic addresses live in.
func placeholderDomain(domains []string) string {
	if len(domains) == 0 {
		return "example.com"
	}
	return strings.TrimPrefix(strings.TrimSpace(domains[0]), "@")
}
