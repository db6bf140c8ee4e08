// Package zillow scrapes for-sale listings from Zillow search results.
package zillow

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"homewatch/browser"
	"homewatch/config"
	"homewatch/extractor"
	"homewatch/match"
	"homewatch/models"
	"homewatch/utils"
)

const sourceName = "zillow"

// DriverFactory returns a fresh Driver for one scrape.
type DriverFactory func() browser.Driver

// Options tunes a Scraper.
type Options struct {
	BaseURL         string
	ContentTimeout  time.Duration
	FallbackTimeout time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	// Pause is the delay between two locations.
	Pause time.Duration
}

// Scraper orchestrates the Zillow scraping process.
type Scraper struct {
	opts      Options
	drivers   DriverFactory
	extractor *extractor.Extractor
	logger    *utils.Logger
}

// New creates a Scraper. Each call to Scrape asks drivers for its own
// browser session.
func New(opts Options, drivers DriverFactory, ext *extractor.Extractor, logger *utils.Logger) *Scraper {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.zillow.com"
	}
	return &Scraper{opts: opts, drivers: drivers, extractor: ext, logger: logger}
}

// FromConfig builds a Scraper wired to the configured driver and selector
// profile.
func FromConfig(cfg *config.Config, logger *utils.Logger) (*Scraper, error) {
	profile, err := extractor.LoadProfile(cfg.SelectorProfile)
	if err != nil {
		return nil, err
	}
	opts := Options{
		BaseURL:         cfg.ZillowBaseURL,
		ContentTimeout:  cfg.ContentTimeout,
		FallbackTimeout: cfg.ContentFallbackTimeout,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      2 * time.Second,
		Pause:           time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}
	drivers := func() browser.Driver { return browser.New(cfg, logger) }
	return New(opts, drivers, extractor.New(profile, logger), logger), nil
}

// Name identifies the source on stored listings and run logs.
func (s *Scraper) Name() string { return sourceName }

// Scrape visits every location of criteria in order and returns the
// matching listings, deduplicated by URL. The browser session is closed on
// every exit path.
func (s *Scraper) Scrape(ctx context.Context, criteria models.SearchCriteria) ([]*models.Listing, error) {
	s.logger.Info("[zillow] Starting scrape for %d location(s)", len(criteria.Locations))

	driver := s.drivers()
	defer func() {
		if err := driver.Close(); err != nil {
			s.logger.Warn("[zillow] Closing browser: %v", err)
		}
	}()

	seen := utils.NewURLSet()
	var accepted []*models.Listing
	failed := 0

	for i, location := range criteria.Locations {
		if i > 0 {
			if err := utils.Sleep(ctx, s.opts.Pause); err != nil {
				return accepted, err
			}
		}

		listings, err := s.scrapeLocation(ctx, driver, location, criteria)
		if err != nil {
			failed++
			s.logger.Error("[zillow] Location %q failed: %v", location, err)
			if ctx.Err() != nil {
				return accepted, ctx.Err()
			}
			continue
		}

		for _, l := range listings {
			if !seen.Add(l.URL) {
				s.logger.Debug("[zillow] Skipping duplicate: %s", l.URL)
				continue
			}
			accepted = append(accepted, l)
		}
		s.logger.Info("[zillow] Location %q done, %d matching so far", location, len(accepted))
	}

	s.logger.Info("[zillow] Scrape complete: %d matching listing(s), %d failed location(s)", len(accepted), failed)
	return accepted, nil
}

// scrapeLocation loads and extracts one results page, retrying the whole
// page on failure.
func (s *Scraper) scrapeLocation(ctx context.Context, driver browser.Driver, location string, criteria models.SearchCriteria) ([]*models.Listing, error) {
	target := BuildSearchURL(s.opts.BaseURL, location, criteria)
	s.logger.Info("[zillow] Scraping %s", target)

	retry := &utils.RetryConfig{
		MaxAttempts: s.opts.MaxRetries,
		BaseDelay:   s.opts.RetryDelay,
		Logger:      s.logger,
	}

	var out []*models.Listing
	err := retry.Do(ctx, "zillow "+location, func(ctx context.Context) error {
		out = nil

		page, err := driver.Open(ctx, target)
		if page != nil {
			defer page.Close()
		}
		if err != nil {
			if page != nil {
				page.Capture(ctx, "error-"+location)
			}
			return err
		}

		page.SolveChallenge(ctx)
		s.waitForResults(ctx, page)
		if s.logger.DebugEnabled() {
			page.Capture(ctx, "results-"+location)
		}

		html, err := page.HTML(ctx)
		if err != nil {
			page.Capture(ctx, "error-"+location)
			return err
		}

		found, err := s.collect(html, criteria, &out)
		if err != nil {
			page.Capture(ctx, "error-"+location)
			return err
		}
		s.logger.Debug("[zillow] %q: %d candidate(s), %d matching", location, found, len(out))
		return nil
	})
	return out, err
}

// waitForResults gives the primary selector the full content timeout and
// the remaining ones the fallback timeout. Running out is not an error.
func (s *Scraper) waitForResults(ctx context.Context, page browser.Page) {
	wait := s.extractor.Profile().WaitFor
	if len(wait) == 0 {
		return
	}
	if page.WaitForContent(ctx, wait[:1], s.opts.ContentTimeout) {
		return
	}
	s.logger.Warn("[zillow] No property cards with primary selector, trying fallback")
	if len(wait) > 1 && page.WaitForContent(ctx, wait[1:], s.opts.FallbackTimeout) {
		return
	}
	s.logger.Warn("[zillow] No property cards found with any selector")
}

func (s *Scraper) collect(html string, criteria models.SearchCriteria, out *[]*models.Listing) (int, error) {
	seq, err := s.extractor.ExtractHTML(html)
	if err != nil {
		return 0, fmt.Errorf("parse results page: %w", err)
	}

	found := 0
	for raw := range seq {
		l, ok := extractor.Normalize(raw, s.opts.BaseURL, sourceName)
		if !ok {
			continue
		}
		found++
		if !match.Matches(l, &criteria) {
			s.logger.Debug("[zillow] Rejected %s (%s, %s)", l.URL, l.CityState(), l.ZipCode)
			continue
		}
		*out = append(*out, l)
	}
	return found, nil
}

// BuildSearchURL encodes location and the numeric filters into Zillow's
// path-based search URL.
func BuildSearchURL(base, location string, c models.SearchCriteria) string {
	minPrice := "0"
	if c.MinPrice != nil && *c.MinPrice > 0 {
		minPrice = formatNumber(*c.MinPrice)
	}
	return fmt.Sprintf("%s/homes/%s/%s-%s_price/%d-_beds/%s-_baths/",
		base,
		url.PathEscape(location),
		minPrice,
		formatNumber(c.MaxPrice),
		c.MinBedrooms,
		formatNumber(c.MinBathrooms),
	)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
