package models

// ListingReport summarises the stored listings of a search.
type ListingReport struct {
	TotalListings int
	AveragePrice  float64
	MedianPrice   float64
	MinPrice      float64
	MaxPrice      float64
	MostExpensive *Listing
	// BestValue holds up to five listings with the lowest price per
	// square foot. Listings without a size are left out.
	BestValue          []*Listing
	ListingsByLocation map[string]int
	ListingsByType     map[PropertyType]int
	Notifications      map[NotificationStatus]int
}
