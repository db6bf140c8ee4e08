// Package scraper defines the listing source contract.
package scraper

import (
	"context"

	"homewatch/models"
)

// Source scrapes one external listing site.
//
// Scrape returns the listings that pass the criteria. A failure on one
// location is logged and skipped; an error is returned only when the scrape
// could not run at all, possibly alongside what was collected so far.
type Source interface {
	Name() string
	Scrape(ctx context.Context, criteria models.SearchCriteria) ([]*models.Listing, error)
}
