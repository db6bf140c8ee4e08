// Package services holds the reconciliation pipeline that turns scraped
// listings into stored listings and alerts.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homewatch/models"
	"homewatch/notify"
	"homewatch/scraper"
	"homewatch/storage"
	"homewatch/utils"
)

var (
	// ErrSearchNotFound is returned when the search id matches nothing.
	ErrSearchNotFound = errors.New("search not found")
	// ErrSearchInactive is returned for searches that are switched off.
	ErrSearchInactive = errors.New("search is inactive")
	// ErrRunInProgress is returned when another run holds the search.
	ErrRunInProgress = errors.New("a run for this search is already in progress")
	// ErrPersistence wraps store failures that abort a run.
	ErrPersistence = errors.New("persistence failure")
)

// Engine runs the scrape and reconcile pipeline for one search at a time
// per search id.
type Engine struct {
	store        storage.Store
	sources      []scraper.Source
	notifier     notify.Notifier
	placeholders notify.PlaceholderPolicy
	cleaner      *Cleaner
	locks        *utils.KeyedLock
	logger       *utils.Logger
	now          func() time.Time
}

// NewEngine creates an Engine over store that scrapes every source in
// order.
func NewEngine(store storage.Store, sources []scraper.Source, notifier notify.Notifier,
	placeholders notify.PlaceholderPolicy, logger *utils.Logger) *Engine {
	return &Engine{
		store:        store,
		sources:      sources,
		notifier:     notifier,
		placeholders: placeholders,
		cleaner:      NewCleaner(logger),
		locks:        utils.NewKeyedLock(),
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one run for searchID and returns the finalized run record.
// Setup failures (unknown, inactive or locked search) return no record.
// Once the run record exists every outcome is written back to it.
func (e *Engine) Run(ctx context.Context, searchID string) (*models.SearchRun, error) {
	release, err := e.lock(ctx, searchID)
	if err != nil {
		return nil, err
	}
	defer release()

	search, err := e.store.FindSearchByID(ctx, searchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSearchNotFound, searchID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load search %s: %w", ErrPersistence, searchID, err)
	}
	if !search.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrSearchInactive, searchID)
	}

	start := e.now()
	run := &models.SearchRun{
		SearchID:  search.ID,
		Source:    e.sourceNames(),
		Status:    models.RunRunning,
		StartTime: &start,
	}
	if err := e.store.CreateSearchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: create run: %w", ErrPersistence, err)
	}
	e.logger.Info("[engine] Run %d started for search %s (%s)", run.ID, search.ID, search.Name)

	found, created, err := e.reconcile(ctx, search)
	run.ItemsFound, run.NewItems = found, created
	if err == nil {
		if uerr := e.store.UpdateSearchLastChecked(ctx, search.ID, e.now()); uerr != nil {
			err = fmt.Errorf("%w: update last checked: %w", ErrPersistence, uerr)
		}
	}
	if err != nil {
		return run, e.fail(ctx, run, err)
	}

	// The outcome is settled; a late cancel must not leave the run open.
	end := e.now()
	run.Status = models.RunSuccess
	run.EndTime = &end
	if err := e.store.UpdateSearchRun(context.WithoutCancel(ctx), run); err != nil {
		return run, e.fail(ctx, run, fmt.Errorf("%w: finalize run %d: %w", ErrPersistence, run.ID, err))
	}
	e.logger.Info("[engine] Run %d for search %s finished: %d found, %d new",
		run.ID, search.ID, run.ItemsFound, run.NewItems)
	return run, nil
}

// fail marks run failed and returns cause. The write uses a context that
// survives cancellation of ctx so an aborted run is still recorded.
func (e *Engine) fail(ctx context.Context, run *models.SearchRun, cause error) error {
	end := e.now()
	run.Status = models.RunFailed
	run.EndTime = &end
	run.ErrorMessage = cause.Error()
	if err := e.store.UpdateSearchRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Error("[engine] Could not mark run %d failed: %v", run.ID, err)
	}
	e.logger.Error("[engine] Run %d for search %s failed: %v", run.ID, run.SearchID, cause)
	return cause
}

// reconcile scrapes all sources and stores the listings not seen before.
// found counts every listing the sources accepted, repeats included.
func (e *Engine) reconcile(ctx context.Context, search *models.Search) (found, created int, err error) {
	var scraped []*models.Listing
	for _, src := range e.sources {
		listings, err := src.Scrape(ctx, search.Criteria)
		if err != nil {
			e.logger.Error("[engine] Source %s failed for search %s: %v", src.Name(), search.ID, err)
		}
		scraped = append(scraped, listings...)
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
	}

	found = len(scraped)
	for _, l := range e.cleaner.Clean(scraped) {
		isNew, err := e.ensureListing(ctx, l, search.ID)
		if err != nil {
			return found, created, err
		}
		if !isNew {
			continue
		}
		created++
		if search.NotifyOnNew {
			e.notifyListing(ctx, search.Owner, l)
		}
	}
	return found, created, nil
}

// ensureListing stores l unless a listing with its URL already exists. A
// unique violation on insert means a concurrent run stored it first and
// counts as a re-sighting.
func (e *Engine) ensureListing(ctx context.Context, l *models.Listing, searchID string) (bool, error) {
	_, err := e.store.FindListingByURL(ctx, l.URL)
	if err == nil {
		e.logger.Debug("[engine] Already stored: %s", l.URL)
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%w: look up %s: %w", ErrPersistence, l.URL, err)
	}

	err = e.store.CreateListing(ctx, l, searchID)
	if errors.Is(err, storage.ErrDuplicate) {
		e.logger.Debug("[engine] Stored concurrently by another run: %s", l.URL)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: store %s: %w", ErrPersistence, l.URL, err)
	}
	e.logger.Info("[engine] New listing: %s, %s ($%.0f)", l.Address, l.CityState(), l.Price)
	return true, nil
}

func (e *Engine) sourceNames() string {
	names := make([]string, 0, len(e.sources))
	for _, src := range e.sources {
		names = append(names, src.Name())
	}
	return strings.Join(names, ",")
}

// lock takes the in-process lock for searchID and, when the store supports
// it, the cross-process one.
func (e *Engine) lock(ctx context.Context, searchID string) (func(), error) {
	release, ok := e.locks.TryLock(searchID)
	if !ok {
		return nil, ErrRunInProgress
	}

	locker, ok := e.store.(storage.RunLocker)
	if !ok {
		return release, nil
	}
	storeRelease, ok, err := locker.TryLockSearch(ctx, searchID)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: lock search %s: %w", ErrPersistence, searchID, err)
	}
	if !ok {
		release()
		return nil, ErrRunInProgress
	}
	return func() {
		storeRelease()
		release()
	}, nil
}
