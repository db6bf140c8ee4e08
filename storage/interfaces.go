package storage

import (
	"context"
	"errors"
	"time"

	"homewatch/models"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint,
	// in particular a second listing with the same URL.
	ErrDuplicate = errors.New("duplicate")
)

// UserStore resolves and creates users.
type UserStore interface {
	FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Store is everything the pipeline persists. Implementations must enforce
// uniqueness of Listing.URL and report violations as ErrDuplicate.
type Store interface {
	UserStore

	CreateSearch(ctx context.Context, s *models.Search) error
	// FindSearchByID loads the search with its Owner populated.
	FindSearchByID(ctx context.Context, id string) (*models.Search, error)
	ListActiveSearchIDs(ctx context.Context) ([]string, error)
	UpdateSearchLastChecked(ctx context.Context, id string, at time.Time) error

	FindListingByURL(ctx context.Context, url string) (*models.Listing, error)
	// CreateListing assigns l.ID and l.CreatedAt and links the listing to
	// searchID.
	CreateListing(ctx context.Context, l *models.Listing, searchID string) error
	UpdateListingNotification(ctx context.Context, listingID string, notified bool, status models.NotificationStatus) error
	ListingsBySearch(ctx context.Context, searchID string) ([]*models.Listing, error)

	// CreateSearchRun assigns run.ID.
	CreateSearchRun(ctx context.Context, run *models.SearchRun) error
	UpdateSearchRun(ctx context.Context, run *models.SearchRun) error

	CreateNotificationAttempt(ctx context.Context, a *models.NotificationAttempt) error

	Close() error
}

// RunLocker is implemented by stores that can hold a lock on a search
// across processes.
type RunLocker interface {
	// TryLockSearch never blocks. ok is false when another holder has the
	// lock; release is non-nil only when ok.
	TryLockSearch(ctx context.Context, searchID string) (release func(), ok bool, err error)
}

// ListingWriter is the interface any export backend must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}
