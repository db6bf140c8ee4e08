package models

import "time"

// PropertyType is the coarse building category inferred from card text.
type PropertyType string

const (
	PropertyHouse     PropertyType = "House"
	PropertyCondo     PropertyType = "Condo"
	PropertyTownhouse PropertyType = "Townhouse"
	PropertyUnknown   PropertyType = "Unknown"
)

// NotificationStatus tracks delivery of the new-listing alert for a Listing.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// RawCandidate holds unprocessed card data directly from the results page.
// It never leaves the extraction/normalization boundary and is never stored.
type RawCandidate struct {
	Price       string
	FullAddress string
	Beds        string
	Baths       string
	Sqft        string
	Details     string // concatenated detail text, used for property type inference
	DetailURL   string
	ImageURL    string
}

// Listing is the normalized record persisted in PostgreSQL. URL is the
// dedup key: one row per URL regardless of field drift between scrapes.
type Listing struct {
	ID                 string
	Address            string
	City               string
	State              string
	ZipCode            string
	Price              float64
	Bedrooms           int
	Bathrooms          float64
	SquareFeet         *int
	PropertyType       PropertyType
	URL                string
	ImageURL           string
	Source             string
	IsNotified         bool
	NotificationStatus NotificationStatus
	CreatedAt          time.Time
}

// CityState returns "city, state".
func (l *Listing) CityState() string {
	return l.City + ", " + l.State
}

// CityStateZip returns "city, state zip".
func (l *Listing) CityStateZip() string {
	return l.City + ", " + l.State + " " + l.ZipCode
}
