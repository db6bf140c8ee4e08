// Package browser owns page automation: loading a results page through a
// de-fingerprinted browser (or a plain HTTP fetch), handling anti-bot
// challenges and capturing diagnostics.
package browser

import (
	"context"
	"errors"
	"time"

	"homewatch/config"
	"homewatch/utils"
)

var (
	// ErrNavigationTimeout is returned by Open when the page did not load
	// within the navigation bound.
	ErrNavigationTimeout = errors.New("navigation timed out")
	// ErrChallengeUnresolved means an anti-bot challenge was still present
	// after the automated attempt. It is logged, never returned to callers
	// of SolveChallenge.
	ErrChallengeUnresolved = errors.New("challenge not resolved")
)

// Driver opens pages. One Driver belongs to one scrape at a time.
type Driver interface {
	// Open navigates to url. When navigation fails after a page was
	// created, the page is returned alongside the error so the caller can
	// capture it; the caller closes it either way.
	Open(ctx context.Context, url string) (Page, error)
	// Close releases the browser session.
	Close() error
}

// Page is one loaded page.
type Page interface {
	URL() string
	// WaitForContent reports whether any of selectors appears before
	// timeout. Failure is not an error: extraction simply finds nothing.
	WaitForContent(ctx context.Context, selectors []string, timeout time.Duration) bool
	// SolveChallenge detects an anti-bot challenge and makes one
	// best-effort attempt at it. It never fails.
	SolveChallenge(ctx context.Context)
	// Capture writes a diagnostic snapshot tagged with label. Best-effort.
	Capture(ctx context.Context, label string)
	HTML(ctx context.Context) (string, error)
	Close()
}

// Options configures both driver flavours.
type Options struct {
	ChromeBin     string
	Headless      bool
	UserAgent     string
	NavTimeout    time.Duration
	HoldMin       time.Duration
	HoldMax       time.Duration
	Settle        time.Duration
	ManualWait    time.Duration
	ScreenshotDir string
}

// OptionsFromConfig maps the application config onto driver options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChromeBin:     cfg.ChromeBin,
		Headless:      cfg.Headless,
		UserAgent:     cfg.UserAgent,
		NavTimeout:    cfg.NavTimeout,
		HoldMin:       cfg.HoldMin,
		HoldMax:       cfg.HoldMax,
		Settle:        2 * time.Second,
		ManualWait:    30 * time.Second,
		ScreenshotDir: cfg.ScreenshotDir,
	}
}

// New returns the driver selected by cfg.FetchMode.
func New(cfg *config.Config, logger *utils.Logger) Driver {
	opts := OptionsFromConfig(cfg)
	if cfg.FetchMode == "static" {
		return NewStaticDriver(opts, logger)
	}
	return NewChromeDriver(opts, logger)
}
