// Package scheduler runs every active search on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"homewatch/models"
	"homewatch/services"
	"homewatch/utils"
)

// Runner executes one run for a search.
type Runner interface {
	Run(ctx context.Context, searchID string) (*models.SearchRun, error)
}

// SearchLister lists the searches due for a run.
type SearchLister interface {
	ListActiveSearchIDs(ctx context.Context) ([]string, error)
}

// Summary counts the outcomes of one sweep.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	NewItems  int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d searches: %d ok, %d failed, %d skipped, %d new listings",
		s.Total, s.Succeeded, s.Failed, s.Skipped, s.NewItems)
}

// Scheduler sweeps all active searches every interval.
type Scheduler struct {
	searches    SearchLister
	runner      Runner
	interval    time.Duration
	workers     int
	rateLimitMs int
	logger      *utils.Logger
}

// New creates a Scheduler running at most workers searches at once, with
// run starts spaced by at least rateLimitMs.
func New(searches SearchLister, runner Runner, interval time.Duration, workers, rateLimitMs int, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		searches:    searches,
		runner:      runner,
		interval:    interval,
		workers:     workers,
		rateLimitMs: rateLimitMs,
		logger:      logger,
	}
}

// Run sweeps once at start and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", s.interval)
	}

	s.logger.Info("[scheduler] Sweeping active searches every %v", s.interval)
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[scheduler] Stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.RunAll(ctx)
	if err != nil {
		s.logger.Error("[scheduler] Sweep failed: %v", err)
		return
	}
	s.logger.Info("[scheduler] Sweep done: %s", summary)
}

// RunAll runs every active search once and waits for all runs to finish.
// Searches still queued when ctx is done are not started.
func (s *Scheduler) RunAll(ctx context.Context) (Summary, error) {
	ids, err := s.searches.ListActiveSearchIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active searches: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(ids)}
	)
	pool := utils.NewWorkerPool(s.workers, s.rateLimitMs)

	for _, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}
		pool.Submit(func() {
			run, err := s.runner.Run(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Succeeded++
				summary.NewItems += run.NewItems
			case errors.Is(err, services.ErrRunInProgress), errors.Is(err, services.ErrSearchInactive):
				s.logger.Debug("[scheduler] Skipping search %s: %v", id, err)
				summary.Skipped++
			default:
				s.logger.Warn("[scheduler] Search %s failed: %v", id, err)
				summary.Failed++
			}
		})
	}
	pool.Wait()

	return summary, nil
}
