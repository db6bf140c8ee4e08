// Package match decides whether a normalized listing satisfies a search.
package match

import (
	"regexp"
	"strings"

	"homewatch/models"
)

var zipToken = regexp.MustCompile(`^\d{5}$`)

// Matches reports whether l satisfies c. Zero price, bedrooms or bathrooms
// and empty city or state count as absent, and an incomplete listing never
// matches.
func Matches(l *models.Listing, c *models.SearchCriteria) bool {
	if l == nil || c == nil {
		return false
	}
	if l.Price <= 0 || l.Bedrooms <= 0 || l.Bathrooms <= 0 || l.City == "" || l.State == "" {
		return false
	}

	if c.MinPrice != nil && *c.MinPrice > 0 && l.Price < *c.MinPrice {
		return false
	}
	if l.Price > c.MaxPrice {
		return false
	}
	if l.Bedrooms < c.MinBedrooms || l.Bathrooms < c.MinBathrooms {
		return false
	}

	for _, token := range c.Locations {
		if LocationMatches(l, token) {
			return true
		}
	}
	return false
}

// LocationMatches applies the location rules for a single token. ZIP
// tokens are only compared against the listing ZIP; free-text tokens are
// compared against the city and "city, state".
func LocationMatches(l *models.Listing, token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return false
	}

	if IsZip(token) {
		zip := strings.ToLower(strings.TrimSpace(l.ZipCode))
		if zip == "" {
			return false
		}
		if zip == token {
			return true
		}
		return strings.Contains(strings.ToLower(l.CityStateZip()), token)
	}

	city := strings.ToLower(strings.TrimSpace(l.City))
	if city != "" && (city == token || strings.Contains(city, token) || strings.Contains(token, city)) {
		return true
	}
	return strings.Contains(strings.ToLower(l.CityState()), token)
}

// IsZip reports whether token is a 5-digit ZIP code.
func IsZip(token string) bool {
	return zipToken.MatchString(strings.TrimSpace(token))
}
