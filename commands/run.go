package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"homewatch/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run <searchId>",
	Short: "Run one search now",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Run every active search once",
	Args:  cobra.NoArgs,
	RunE:  runAllSearches,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	run, err := engine.Run(ctx, args[0])
	if err != nil {
		a.logger.Error("Run failed: %v", err)
		return err
	}
	a.logger.Info("Run %d done: %d listings matched, %d new", run.ID, run.ItemsFound, run.NewItems)
	return nil
}

func runAllSearches(cmd *cobra.Command, args []string) error {
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

	s := scheduler.New(a.store, engine, a.cfg.ScheduleInterval, a.cfg.MaxConcurrency, a.cfg.RateLimitMs, a.logger)
	summary, err := s.RunAll(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Sweep done: %s", summary)
	return nil
}
