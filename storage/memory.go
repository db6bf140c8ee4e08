package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"homewatch/models"
)

// MemoryStore is a Store kept in process memory. It backs dry runs and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu sync.Mutex

	users          map[string]*models.User // by id
	searches       map[string]*models.Search
	listings       map[string]*models.Listing // by id
	listingsByURL  map[string]string          // url -> id
	searchListings map[string][]string        // search id -> listing ids
	runs           []*models.SearchRun
	attempts       []*models.NotificationAttempt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:          make(map[string]*models.User),
		searches:       make(map[string]*models.Search),
		listings:       make(map[string]*models.Listing),
		listingsByURL:  make(map[string]string),
		searchListings: make(map[string][]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) FindUserByExternalID(_ context.Context, externalID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ExternalID == u.ExternalID {
			return ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, taken := m.users[u.ID]; taken {
		return ErrDuplicate
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateSearch(_ context.Context, s *models.Search) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, taken := m.searches[s.ID]; taken {
		return ErrDuplicate
	}
	s.CreatedAt = time.Now()
	cp := *s
	cp.Owner = nil
	cp.Criteria.Locations = append([]string(nil), s.Criteria.Locations...)
	m.searches[s.ID] = &cp
	return nil
}

func (m *MemoryStore) FindSearchByID(_ context.Context, id string) (*models.Search, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.searches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	if owner, ok := m.users[s.UserID]; ok {
		o := *owner
		cp.Owner = &o
	}
	return &cp, nil
}

func (m *MemoryStore) ListActiveSearchIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*models.Search
	for _, s := range m.searches {
		if s.IsActive {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	ids := make([]string, 0, len(active))
	for _, s := range active {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (m *MemoryStore) UpdateSearchLastChecked(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.searches[id]
	if !ok {
		return ErrNotFound
	}
	s.LastCheckedAt = &at
	return nil
}

func (m *MemoryStore) FindListingByURL(_ context.Context, url string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.listingsByURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.listings[id]
	return &cp, nil
}

func (m *MemoryStore) CreateListing(_ context.Context, l *models.Listing, searchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.listingsByURL[l.URL]; exists {
		return ErrDuplicate
	}
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now()
	if l.NotificationStatus == "" {
		l.NotificationStatus = models.NotificationPending
	}
	cp := *l
	m.listings[l.ID] = &cp
	m.listingsByURL[l.URL] = l.ID
	m.searchListings[searchID] = append(m.searchListings[searchID], l.ID)
	return nil
}

func (m *MemoryStore) UpdateListingNotification(_ context.Context, listingID string, notified bool, status models.NotificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return ErrNotFound
	}
	l.IsNotified = notified
	l.NotificationStatus = status
	return nil
}

func (m *MemoryStore) ListingsBySearch(_ context.Context, searchID string) ([]*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Listing, 0, len(m.searchListings[searchID]))
	for _, id := range m.searchListings[searchID] {
		cp := *m.listings[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (m *MemoryStore) CreateSearchRun(_ context.Context, run *models.SearchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	cp := *run
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *MemoryStore) UpdateSearchRun(_ context.Context, run *models.SearchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID < 1 || int(run.ID) > len(m.runs) {
		return ErrNotFound
	}
	cp := *run
	m.runs[run.ID-1] = &cp
	return nil
}

func (m *MemoryStore) CreateNotificationAttempt(_ context.Context, a *models.NotificationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.attempts) + 1)
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	cp := *a
	m.attempts = append(m.attempts, &cp)
	return nil
}

// Runs returns a copy of the run log in creation order.
func (m *MemoryStore) Runs() []models.SearchRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SearchRun, len(m.runs))
	for i, r := range m.runs {
		out[i] = *r
	}
	return out
}

// NotificationAttempts returns a copy of the audit trail.
func (m *MemoryStore) NotificationAttempts() []models.NotificationAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.NotificationAttempt, len(m.attempts))
	for i, a := range m.attempts {
		out[i] = *a
	}
	return out
}

// ListingCount returns the number of stored listings.
func (m *MemoryStore) ListingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listings)
}
