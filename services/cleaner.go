package services

import (
	"strings"
	"unicode"

	"homewatch/models"
	"homewatch/utils"
)

// Cleaner tidies listings gathered from all sources of a run before they
// are reconciled against the store.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean drops listings without a URL, keeps the first listing per URL and
// normalises the address fields. Order is preserved.
func (c *Cleaner) Clean(in []*models.Listing) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(in))

	for _, l := range in {
		if l == nil {
			continue
		}
		url := strings.TrimSpace(l.URL)
		if url == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty URL: %s", l.Address)
			continue
		}

		if _, dup := seen[url]; dup {
			c.logger.Debug("[cleaner] Duplicate URL skipped: %s", url)
			continue
		}
		seen[url] = struct{}{}

		l.URL = url
		l.Address = normaliseText(l.Address)
		l.City = normaliseText(l.City)
		l.State = strings.ToUpper(strings.TrimSpace(l.State))
		l.ZipCode = strings.TrimSpace(l.ZipCode)
		l.Source = normaliseSource(l.Source)
		result = append(result, l)
	}

	if dropped := len(in) - len(result); dropped > 0 {
		c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)", len(in), len(result), dropped)
	}
	return result
}

// CleanCriteria normalises the location tokens of c in place: whitespace
// is collapsed, empty tokens are removed and repeats (ignoring case) are
// dropped.
func (c *Cleaner) CleanCriteria(criteria *models.SearchCriteria) {
	seen := make(map[string]struct{})
	locations := criteria.Locations[:0]
	for _, loc := range criteria.Locations {
		loc = normaliseText(loc)
		key := strings.ToLower(loc)
		if loc == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			c.logger.Debug("[cleaner] Repeated location dropped: %s", loc)
			continue
		}
		seen[key] = struct{}{}
		locations = append(locations, loc)
	}
	criteria.Locations = locations
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

func normaliseSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
