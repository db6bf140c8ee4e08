package models

import "time"

// SearchCriteria is the user-defined filter applied to every scraped listing.
// Each location is either a free-text "City ST" string or a 5-digit ZIP.
type SearchCriteria struct {
	MinPrice     *float64 `yaml:"min_price" json:"minPrice,omitempty" validate:"omitempty,gte=0"`
	MaxPrice     float64  `yaml:"max_price" json:"maxPrice" validate:"required,gt=0"`
	MinBedrooms  int      `yaml:"min_bedrooms" json:"minBedrooms" validate:"gte=0"`
	MinBathrooms float64  `yaml:"min_bathrooms" json:"minBathrooms" validate:"gte=0"`
	Locations    []string `yaml:"locations" json:"locations" validate:"required,min=1,dive,required"`
}

// User is the internal identity that owns searches. ExternalID is the id
// handed out by the identity provider.
type User struct {
	ID         string
	ExternalID string
	Name       string
	Email      string
	CreatedAt  time.Time
}

// Search is a stored property search with its owner loaded.
type Search struct {
	ID            string
	UserID        string
	Name          string
	Criteria      SearchCriteria
	IsActive      bool
	NotifyOnNew   bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time

	Owner *User
}

// RunStatus is the lifecycle state of a SearchRun.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// SearchRun is the run log written once at start and finalized once at end.
type SearchRun struct {
	ID           int64
	SearchID     string
	Source       string
	Status       RunStatus
	StartTime    *time.Time
	EndTime      *time.Time
	ItemsFound   int
	NewItems     int
	ErrorMessage string
}

// NotificationAttempt is an append-only audit entry for one delivery attempt.
type NotificationAttempt struct {
	ID           int64
	UserID       string
	ListingID    string
	Status       NotificationStatus
	ErrorMessage string
	Timestamp    time.Time
}
