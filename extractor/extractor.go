// Package extractor turns a loaded results page into raw listing candidates
// and normalizes them into listings.
package extractor

import (
	"iter"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"homewatch/models"
	"homewatch/utils"
)

var (
	bedsRegexp  = regexp.MustCompile(`(?i)(\d+)\s*(?:bds|bd|beds|bed)`)
	bathsRegexp = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:baths|bath|ba)`)
	sqftRegexp  = regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:sqft|sq\.?\s*ft)`)
)

// Extractor pulls raw candidates out of a results page using the cascading
// selectors of a Profile.
type Extractor struct {
	profile Profile
	logger  *utils.Logger

	price   Cascade
	address Cascade
	link    Cascade
	image   Cascade
}

// New creates an Extractor for profile.
func New(profile Profile, logger *utils.Logger) *Extractor {
	return &Extractor{
		profile: profile,
		logger:  logger,
		price:   TextCascade(profile.Price),
		address: TextCascade(profile.Address),
		link:    AttrCascade(profile.Link, "href"),
		image:   AttrCascade(profile.Image, profile.ImageAttrs...),
	}
}

// Profile returns the selector profile in use.
func (e *Extractor) Profile() Profile {
	return e.profile
}

// Extract returns the candidates of one page load. The sequence is lazy and
// one-shot: ranging over it a second time yields nothing. Cards missing a
// price, address or link are dropped.
func (e *Extractor) Extract(doc *goquery.Document) iter.Seq[models.RawCandidate] {
	var consumed atomic.Bool

	return func(yield func(models.RawCandidate) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		items := e.findItems(doc.Selection)
		e.logger.Debug("[extractor] Processing %d property items", len(items))

		for _, item := range items {
			raw := e.extractItem(item)
			if raw.Price == "" || raw.FullAddress == "" || raw.DetailURL == "" {
				e.logger.Debug("[extractor] Skipping card with missing data (price=%q address=%q link=%q)",
					raw.Price, raw.FullAddress, raw.DetailURL)
				continue
			}
			if !yield(raw) {
				return
			}
		}
	}
}

// ExtractHTML parses html and extracts from it.
func (e *Extractor) ExtractHTML(html string) (iter.Seq[models.RawCandidate], error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return e.Extract(doc), nil
}

// findItems locates the cards: list containers first, then direct item
// selectors when no container produced anything.
func (e *Extractor) findItems(root *goquery.Selection) []*goquery.Selection {
	for _, sel := range e.profile.ListContainers {
		list := root.Find(sel).First()
		if list.Length() == 0 {
			continue
		}

		var items []*goquery.Selection
		list.ChildrenFiltered(e.profile.ListItem).Each(func(_ int, li *goquery.Selection) {
			if len(e.profile.Items) > 0 {
				if card := li.Find(e.profile.Items[0]).First(); card.Length() > 0 {
					items = append(items, card)
					return
				}
			}
			items = append(items, li)
		})

		if len(items) > 0 {
			e.logger.Debug("[extractor] Found %d cards inside list %s", len(items), sel)
			return items
		}
	}

	for _, sel := range e.profile.Items {
		found := root.Find(sel)
		if found.Length() == 0 {
			continue
		}
		e.logger.Debug("[extractor] Found %d cards with direct selector %s", found.Length(), sel)
		items := make([]*goquery.Selection, 0, found.Length())
		found.Each(func(_ int, s *goquery.Selection) {
			items = append(items, s)
		})
		return items
	}

	return nil
}

func (e *Extractor) extractItem(item *goquery.Selection) models.RawCandidate {
	details := e.detailText(item)

	raw := models.RawCandidate{
		Price:       e.price.First(item),
		FullAddress: e.address.First(item),
		Details:     details,
		DetailURL:   e.link.First(item),
		ImageURL:    e.image.First(item),
	}

	if m := bedsRegexp.FindStringSubmatch(details); m != nil {
		raw.Beds = m[1]
	}
	if m := bathsRegexp.FindStringSubmatch(details); m != nil {
		raw.Baths = m[1]
	}
	if m := sqftRegexp.FindStringSubmatch(details); m != nil {
		raw.Sqft = strings.ReplaceAll(m[1], ",", "")
	}
	return raw
}

// detailText concatenates the grouped detail entries and the free-text
// detail block, since cards use either format.
func (e *Extractor) detailText(item *goquery.Selection) string {
	var parts []string
	for _, sel := range e.profile.DetailItems {
		item.Find(sel).Each(func(_ int, li *goquery.Selection) {
			if t := cleanText(li.Text()); t != "" {
				parts = append(parts, t)
			}
		})
	}
	for _, sel := range e.profile.Details {
		if t := cleanText(item.Find(sel).First().Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
