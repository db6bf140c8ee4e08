package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"homewatch/models"
)

var (
	nonPriceRegexp = regexp.MustCompile(`[^0-9.]`)
	// stateZipRegexp matches a trailing "ST 12345" or "ST 12345-6789".
	stateZipRegexp = regexp.MustCompile(`(?:^|[\s,])([A-Z]{2})\s+(\d{5}(?:-?\d{4})?)\s*$`)
	zipShapeRegexp = regexp.MustCompile(`^\d{5}(?:-?\d{4})?$`)
)

// Normalize converts a raw candidate into a Listing. Relative links are
// resolved against baseURL. It reports false when the candidate lacks the
// fields every listing needs.
func Normalize(raw models.RawCandidate, baseURL, source string) (*models.Listing, bool) {
	if raw.Price == "" || raw.FullAddress == "" || raw.DetailURL == "" {
		return nil, false
	}

	link := ResolveURL(baseURL, raw.DetailURL)
	if link == "" {
		return nil, false
	}

	street, city, state, zip := ParseAddress(raw.FullAddress)

	l := &models.Listing{
		Address:            street,
		City:               city,
		State:              state,
		ZipCode:            zip,
		Price:              ParsePrice(raw.Price),
		Bedrooms:           parseInt(raw.Beds),
		Bathrooms:          parseFloat(raw.Baths),
		PropertyType:       InferPropertyType(raw.Details),
		URL:                link,
		Source:             source,
		NotificationStatus: models.NotificationPending,
	}
	if raw.ImageURL != "" {
		l.ImageURL = ResolveURL(baseURL, raw.ImageURL)
	}
	if raw.Sqft != "" {
		if n, err := strconv.Atoi(strings.ReplaceAll(raw.Sqft, ",", "")); err == nil {
			l.SquareFeet = &n
		}
	}
	return l, true
}

// ParsePrice strips everything but digits and dots. Unparseable input
// yields 0.
func ParsePrice(raw string) float64 {
	cleaned := strings.Trim(nonPriceRegexp.ReplaceAllString(raw, ""), ".")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseAddress splits "street, city ST zip" on the first comma and parses
// the remainder. When the state/zip pattern does not match, the last token
// is taken as the zip if it looks like one, the token before as the state,
// and the rest as the city.
func ParseAddress(full string) (street, city, state, zip string) {
	parts := strings.SplitN(full, ",", 2)
	street = strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return street, "", "", ""
	}
	rest := strings.TrimSpace(parts[1])

	if m := stateZipRegexp.FindStringSubmatchIndex(rest); m != nil {
		state = rest[m[2]:m[3]]
		zip = rest[m[4]:m[5]]
		city = strings.Trim(strings.TrimSpace(rest[:m[0]]), ", ")
		return street, city, state, zip
	}

	tokens := strings.Fields(strings.ReplaceAll(rest, ",", " "))
	if n := len(tokens); n > 0 && zipShapeRegexp.MatchString(tokens[n-1]) {
		zip = tokens[n-1]
		tokens = tokens[:n-1]
	}
	if n := len(tokens); n > 0 {
		state = tokens[n-1]
		tokens = tokens[:n-1]
	}
	city = strings.Join(tokens, " ")
	return street, city, state, zip
}

// InferPropertyType searches the detail text for a known building type.
func InferPropertyType(details string) models.PropertyType {
	d := strings.ToLower(details)
	switch {
	case strings.Contains(d, "townhouse"), strings.Contains(d, "townhome"):
		return models.PropertyTownhouse
	case strings.Contains(d, "condo"):
		return models.PropertyCondo
	case strings.Contains(d, "house"):
		return models.PropertyHouse
	default:
		return models.PropertyUnknown
	}
}

// ResolveURL makes ref absolute against base. It returns "" for refs that
// cannot be parsed.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return u.String()
	}
	return b.ResolveReference(u).String()
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
