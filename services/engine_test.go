package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homewatch/models"
	"homewatch/notify"
	"homewatch/scraper"
	"homewatch/storage"
)

// fakeSource returns fresh copies of its listings on every call.
type fakeSource struct {
	name     string
	listings []models.Listing
	err      error
	onScrape func(ctx context.Context)
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Scrape(ctx context.Context, _ models.SearchCriteria) ([]*models.Listing, error) {
	if s.onScrape != nil {
		s.onScrape(ctx)
	}
	out := make([]*models.Listing, 0, len(s.listings))
	for i := range s.listings {
		l := s.listings[i]
		out = append(out, &l)
	}
	if s.err == nil && ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, s.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (n *fakeNotifier) Send(_ context.Context, to string, l *models.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to+" "+l.URL)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// flakyStore overrides listing lookups of a MemoryStore.
type flakyStore struct {
	*storage.MemoryStore
	findErr error
}

func (f *flakyStore) FindListingByURL(ctx context.Context, url string) (*models.Listing, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.MemoryStore.FindListingByURL(ctx, url)
}

// finalizeStore behaves like a database store at the end of a run: run
// updates fail once ctx is done, and the first failUpdates updates fail
// outright.
type finalizeStore struct {
	*storage.MemoryStore
	failUpdates int
	onChecked   func()
}

func (f *finalizeStore) UpdateSearchLastChecked(ctx context.Context, id string, at time.Time) error {
	err := f.MemoryStore.UpdateSearchLastChecked(ctx, id, at)
	if f.onChecked != nil {
		f.onChecked()
	}
	return err
}

func (f *finalizeStore) UpdateSearchRun(ctx context.Context, run *models.SearchRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failUpdates > 0 {
		f.failUpdates--
		return errors.New("connection reset")
	}
	return f.MemoryStore.UpdateSearchRun(ctx, run)
}

// lockedStore reports every search as locked by another process.
type lockedStore struct {
	*storage.MemoryStore
}

func (lockedStore) TryLockSearch(context.Context, string) (func(), bool, error) {
	return nil, false, nil
}

func arlingtonCondo() models.Listing {
	return models.Listing{
		Address:      "100 N Glebe Rd",
		City:         "Arlington",
		State:        "VA",
		ZipCode:      "22203",
		Price:        550000,
		Bedrooms:     2,
		Bathrooms:    1.5,
		PropertyType: models.PropertyCondo,
		URL:          "https://x/1",
		Source:       "zillow",
	}
}

func seedSearch(t *testing.T, store storage.Store, email string, notifyOnNew bool) *models.Search {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ExternalID: "ext-" + email, Email: email}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	s := &models.Search{
		UserID:      u.ID,
		Name:        "Arlington condos",
		IsActive:    true,
		NotifyOnNew: notifyOnNew,
		Criteria: models.SearchCriteria{
			MaxPrice:     600000,
			MinBedrooms:  2,
			MinBathrooms: 1,
			Locations:    []string{"Arlington VA", "22203"},
		},
	}
	if err := store.CreateSearch(ctx, s); err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestEngine(store storage.Store, n notify.Notifier, sources ...scraper.Source) *Engine {
	return NewEngine(store, sources, n, notify.NewPlaceholderPolicy([]string{"example.com"}), newTestLogger())
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", true)
	n := &fakeNotifier{}
	e := newTestEngine(store, n, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	run, err := e.Run(ctx, search.ID)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if run.Status != models.RunSuccess || run.ItemsFound != 1 || run.NewItems != 1 {
		t.Errorf("first run = %+v; want success with 1 found, 1 new", run)
	}
	if n.count() != 1 {
		t.Errorf("alerts sent = %d; want 1", n.count())
	}

	run, err = e.Run(ctx, search.ID)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if run.ItemsFound != 1 || run.NewItems != 0 {
		t.Errorf("second run found %d, new %d; want 1 and 0", run.ItemsFound, run.NewItems)
	}
	if store.ListingCount() != 1 {
		t.Errorf("ListingCount() = %d; want 1", store.ListingCount())
	}
	if n.count() != 1 {
		t.Errorf("re-sighting sent another alert, total %d", n.count())
	}

	stored, _ := store.FindListingByURL(ctx, "https://x/1")
	if !stored.IsNotified || stored.NotificationStatus != models.NotificationSent {
		t.Errorf("stored listing notification = (%v, %s); want (true, sent)", stored.IsNotified, stored.NotificationStatus)
	}
	attempts := store.NotificationAttempts()
	if len(attempts) != 1 || attempts[0].Status != models.NotificationSent || attempts[0].ListingID != stored.ID {
		t.Errorf("audit trail = %+v", attempts)
	}

	runs := store.Runs()
	if len(runs) != 2 || runs[0].EndTime == nil || runs[1].Status != models.RunSuccess {
		t.Errorf("run log = %+v", runs)
	}
	s, _ := store.FindSearchByID(ctx, search.ID)
	if s.LastCheckedAt == nil {
		t.Error("LastCheckedAt not updated")
	}
}

func TestRunPlaceholderOwnerIsNotAlerted(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "user-0b9e@example.com", true)
	n := &fakeNotifier{}
	e := newTestEngine(store, n, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	run, err := e.Run(ctx, search.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.NewItems != 1 {
		t.Errorf("NewItems = %d; want 1", run.NewItems)
	}
	if n.count() != 0 {
		t.Errorf("placeholder owner received %d alerts", n.count())
	}
	stored, _ := store.FindListingByURL(ctx, "https://x/1")
	if stored.IsNotified || stored.NotificationStatus != models.NotificationPending {
		t.Errorf("stored listing notification = (%v, %s); want (false, pending)", stored.IsNotified, stored.NotificationStatus)
	}
	if len(store.NotificationAttempts()) != 0 {
		t.Errorf("skipped alert wrote an audit entry")
	}
}

func TestRunNotifyOnNewDisabled(t *testing.T) {
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)
	n := &fakeNotifier{}
	e := newTestEngine(store, n, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	if _, err := e.Run(context.Background(), search.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n.count() != 0 {
		t.Errorf("alerts sent = %d; want 0", n.count())
	}
}

func TestRunNotifierFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", true)
	n := &fakeNotifier{err: errors.New("smtp: 421 try later")}
	e := newTestEngine(store, n, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	run, err := e.Run(ctx, search.ID)
	if err != nil {
		t.Fatalf("Run() error = %v; alert failures must not fail the run", err)
	}
	if run.Status != models.RunSuccess || run.NewItems != 1 {
		t.Errorf("run = %+v", run)
	}
	stored, _ := store.FindListingByURL(ctx, "https://x/1")
	if !stored.IsNotified || stored.NotificationStatus != models.NotificationFailed {
		t.Errorf("stored listing notification = (%v, %s); want (true, failed)", stored.IsNotified, stored.NotificationStatus)
	}
	attempts := store.NotificationAttempts()
	if len(attempts) != 1 || attempts[0].Status != models.NotificationFailed || attempts[0].ErrorMessage == "" {
		t.Errorf("audit trail = %+v", attempts)
	}
}

func TestRunContinuesPastFailingSource(t *testing.T) {
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)
	e := newTestEngine(store, &fakeNotifier{},
		&fakeSource{name: "broken", err: errors.New("browser crashed")},
		&fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}},
	)

	run, err := e.Run(context.Background(), search.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Source != "broken,zillow" {
		t.Errorf("Source = %q", run.Source)
	}
	if run.NewItems != 1 || store.ListingCount() != 1 {
		t.Errorf("NewItems = %d, stored = %d; want 1 and 1", run.NewItems, store.ListingCount())
	}
}

func TestRunDeduplicatesAcrossSources(t *testing.T) {
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)
	drifted := arlingtonCondo()
	drifted.Price = 545000
	e := newTestEngine(store, &fakeNotifier{},
		&fakeSource{name: "a", listings: []models.Listing{arlingtonCondo()}},
		&fakeSource{name: "b", listings: []models.Listing{drifted}},
	)

	run, err := e.Run(context.Background(), search.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.NewItems != 1 || store.ListingCount() != 1 {
		t.Errorf("NewItems = %d, stored = %d; want one listing per URL", run.NewItems, store.ListingCount())
	}
	if run.ItemsFound != 2 {
		t.Errorf("ItemsFound = %d; want 2, one per accepted listing across sources", run.ItemsFound)
	}
}

func TestRunPersistenceFailureMarksRunFailed(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem, findErr: errors.New("connection reset")}
	search := seedSearch(t, store, "pat@realmail.test", true)
	e := newTestEngine(store, &fakeNotifier{}, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	run, err := e.Run(context.Background(), search.ID)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() error = %v; want ErrPersistence", err)
	}
	if run == nil || run.Status != models.RunFailed {
		t.Fatalf("run = %+v; want failed", run)
	}
	runs := mem.Runs()
	if len(runs) != 1 || runs[0].Status != models.RunFailed || runs[0].ErrorMessage == "" || runs[0].EndTime == nil {
		t.Errorf("run log = %+v", runs)
	}
	s, _ := mem.FindSearchByID(context.Background(), search.ID)
	if s.LastCheckedAt != nil {
		t.Error("failed run updated LastCheckedAt")
	}
}

func TestRunConcurrentInsertCountsAsResighting(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem}
	search := seedSearch(t, store, "pat@realmail.test", true)
	n := &fakeNotifier{}
	e := newTestEngine(store, n, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	if _, err := e.Run(context.Background(), search.ID); err != nil {
		t.Fatal(err)
	}
	// The lookup now misses, so the insert hits the unique URL.
	store.findErr = storage.ErrNotFound
	run, err := e.Run(context.Background(), search.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.NewItems != 0 || n.count() != 1 {
		t.Errorf("NewItems = %d, alerts = %d; want 0 and 1", run.NewItems, n.count())
	}
}

func TestRunSetupErrors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)
	inactive := &models.Search{UserID: search.UserID, Criteria: search.Criteria}
	if err := store.CreateSearch(ctx, inactive); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(store, &fakeNotifier{}, &fakeSource{name: "zillow"})

	tests := []struct {
		id   string
		want error
	}{
		{"missing", ErrSearchNotFound},
		{inactive.ID, ErrSearchInactive},
	}
	for _, tt := range tests {
		run, err := e.Run(ctx, tt.id)
		if !errors.Is(err, tt.want) || run != nil {
			t.Errorf("Run(%q) = (%v, %v); want (nil, %v)", tt.id, run, err, tt.want)
		}
	}
	if len(store.Runs()) != 0 {
		t.Errorf("setup errors created %d run records", len(store.Runs()))
	}
}

func TestRunRejectsConcurrentRunOfSameSearch(t *testing.T) {
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)

	started := make(chan struct{})
	proceed := make(chan struct{})
	src := &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}, onScrape: func(context.Context) {
		close(started)
		<-proceed
	}}
	e := newTestEngine(store, &fakeNotifier{}, src)

	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), search.ID)
		done <- err
	}()

	<-started
	if _, err := e.Run(context.Background(), search.ID); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent Run() error = %v; want ErrRunInProgress", err)
	}
	close(proceed)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
	if len(store.Runs()) != 1 {
		t.Errorf("run records = %d; want 1", len(store.Runs()))
	}
}

func TestRunHonoursStoreLock(t *testing.T) {
	store := lockedStore{storage.NewMemoryStore()}
	search := seedSearch(t, store, "pat@realmail.test", false)
	e := newTestEngine(store, &fakeNotifier{}, &fakeSource{name: "zillow"})

	if _, err := e.Run(context.Background(), search.ID); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Run() error = %v; want ErrRunInProgress", err)
	}
	if len(store.Runs()) != 0 {
		t.Error("locked run created a run record")
	}
	// The in-process lock must have been released.
	if release, ok := e.locks.TryLock(search.ID); !ok {
		t.Error("in-process lock leaked")
	} else {
		release()
	}
}

func TestRunCancelledIsRecordedAsFailed(t *testing.T) {
	store := storage.NewMemoryStore()
	search := seedSearch(t, store, "pat@realmail.test", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{name: "zillow", onScrape: func(context.Context) { cancel() }}
	e := newTestEngine(store, &fakeNotifier{}, src)

	_, err := e.Run(ctx, search.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v; want context.Canceled", err)
	}
	runs := store.Runs()
	if len(runs) != 1 || runs[0].Status != models.RunFailed {
		t.Errorf("run log = %+v; want one failed run", runs)
	}
}

func TestRunCancelledAfterReconcileStillFinalizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := storage.NewMemoryStore()
	store := &finalizeStore{MemoryStore: mem, onChecked: cancel}
	search := seedSearch(t, store, "pat@realmail.test", false)
	e := newTestEngine(store, &fakeNotifier{}, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	if _, err := e.Run(ctx, search.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	runs := mem.Runs()
	if len(runs) != 1 || runs[0].Status != models.RunSuccess || runs[0].EndTime == nil {
		t.Errorf("run log = %+v; want one finished successful run", runs)
	}
}

func TestRunFinalizeFailureMarksRunFailed(t *testing.T) {
	mem := storage.NewMemoryStore()
	store := &finalizeStore{MemoryStore: mem, failUpdates: 1}
	search := seedSearch(t, store, "pat@realmail.test", false)
	e := newTestEngine(store, &fakeNotifier{}, &fakeSource{name: "zillow", listings: []models.Listing{arlingtonCondo()}})

	run, err := e.Run(context.Background(), search.ID)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Run() error = %v; want ErrPersistence", err)
	}
	if run == nil || run.Status != models.RunFailed {
		t.Errorf("run = %+v; want failed", run)
	}
	runs := mem.Runs()
	if len(runs) != 1 || runs[0].Status == models.RunRunning {
		t.Fatalf("run log = %+v; run left open", runs)
	}
	if runs[0].Status != models.RunFailed || runs[0].ErrorMessage == "" {
		t.Errorf("stored run = %+v; want failed with a message", runs[0])
	}
}
