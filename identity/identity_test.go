package identity

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"homewatch/models"
	"homewatch/storage"
	"homewatch/utils"
)

func TestHeaderProvider(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/scrape", nil)
	if _, err := (HeaderProvider{}).ExternalID(req); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ExternalID() without header error = %v; want ErrUnauthenticated", err)
	}

	req.Header.Set(DefaultHeader, "  ext-42 ")
	id, err := HeaderProvider{}.ExternalID(req)
	if err != nil || id != "ext-42" {
		t.Errorf("ExternalID() = (%q, %v); want (ext-42, nil)", id, err)
	}

	req.Header.Set("X-Auth-Subject", "sub-1")
	id, _ = HeaderProvider{Header: "X-Auth-Subject"}.ExternalID(req)
	if id != "sub-1" {
		t.Errorf("custom header id = %q; want sub-1", id)
	}
}

func TestResolveCreatesPlaceholderUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := NewResolver(store, "example.com", utils.Discard())

	u, err := r.Resolve(ctx, "ext-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if u.Email != "user-"+u.ID+"@example.com" {
		t.Errorf("Email = %q; want placeholder for %s", u.Email, u.ID)
	}

	again, err := r.Resolve(ctx, "ext-1")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("second Resolve() created a new user: %s != %s", again.ID, u.ID)
	}
}

func TestResolveExistingUser(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	existing := &models.User{ExternalID: "ext-2", Email: "pat@realmail.test"}
	if err := store.CreateUser(ctx, existing); err != nil {
		t.Fatal(err)
	}

	u, err := NewResolver(store, "", utils.Discard()).Resolve(ctx, "ext-2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if u.ID != existing.ID || u.Email != "pat@realmail.test" {
		t.Errorf("Resolve() = %+v; want existing user", u)
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver(storage.NewMemoryStore(), "", utils.Discard())
	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Resolve(\"\") error = %v; want ErrUnauthenticated", err)
	}
}

func TestResolveConcurrentFirstSight(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := NewResolver(store, "example.com", utils.Discard())

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := r.Resolve(ctx, "ext-race")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			ids[i] = u.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent resolves produced different users: %v", ids)
		}
	}
	if ids[0] == "" {
		t.Error("empty user id")
	}
}

// failingStore fails lookups with a fixed error.
type failingStore struct{ err error }

func (f failingStore) FindUserByExternalID(context.Context, string) (*models.User, error) {
	return nil, f.err
}
func (f failingStore) CreateUser(context.Context, *models.User) error { return f.err }

func TestResolveStoreFailure(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(failingStore{err: boom}, "", utils.Discard())
	r.retry.BaseDelay = 0
	if _, err := r.Resolve(context.Background(), "ext-3"); !errors.Is(err, boom) {
		t.Errorf("Resolve() error = %v; want wrapped db down", err)
	}
}
