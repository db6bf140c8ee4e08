package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gocolly/colly/v2"

	"homewatch/utils"
)

// StaticDriver fetches pages over plain HTTP with colly. It runs no
// scripts, so it can detect a challenge but never solve one.
type StaticDriver struct {
	opts   Options
	logger *utils.Logger
}

// NewStaticDriver creates a StaticDriver.
func NewStaticDriver(opts Options, logger *utils.Logger) *StaticDriver {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	return &StaticDriver{opts: opts, logger: logger}
}

// Open fetches url. Error statuses that still carry a body (typical for a
// block page) yield a page, so the challenge can be detected and captured.
func (d *StaticDriver) Open(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Create a new collector for each request
	c := colly.NewCollector(
		colly.UserAgent(d.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(d.opts.NavTimeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range requestHeaders {
			r.Headers.Set(k, v)
		}
	})

	p := &staticPage{driver: d, url: url}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		p.status = r.StatusCode
		p.html = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			p.status = r.StatusCode
			p.html = string(r.Body)
		}
		fetchErr = err
	})

	d.logger.Debug("[browser] Fetching %s", url)
	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if fetchErr != nil && p.html == "" {
		var netErr net.Error
		if errors.As(fetchErr, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w after %s: %s", ErrNavigationTimeout, d.opts.NavTimeout, url)
		}
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if fetchErr != nil {
		d.logger.Warn("[browser] %s answered %d", url, p.status)
	}
	return p, nil
}

// Close is a no-op; colly holds no session between fetches.
func (d *StaticDriver) Close() error { return nil }

type staticPage struct {
	driver *StaticDriver
	url    string
	status int
	html   string
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) Close() {}

// WaitForContent checks the fetched document once; nothing more can load.
func (p *staticPage) WaitForContent(_ context.Context, selectors []string, _ time.Duration) bool {
	return HasAny(p.html, selectors)
}

func (p *staticPage) HTML(context.Context) (string, error) {
	return p.html, nil
}

func (p *staticPage) SolveChallenge(ctx context.Context) {
	if marker, found := DetectChallenge(p.html); found {
		p.driver.logger.Warn("[browser] Challenge detected (%s) on %s; static mode cannot solve it: %v",
			marker, p.url, ErrChallengeUnresolved)
		p.Capture(ctx, "captcha-detected")
	}
}

// Capture saves the fetched HTML, the static counterpart of a screenshot.
func (p *staticPage) Capture(_ context.Context, label string) {
	dir := p.driver.opts.ScreenshotDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.driver.logger.Debug("[browser] Snapshot dir: %v", err)
		return
	}
	path := snapshotPath(dir, label, ".html", time.Now())
	if err := os.WriteFile(path, []byte(p.html), 0o644); err != nil {
		p.driver.logger.Debug("[browser] Snapshot write failed: %v", err)
		return
	}
	p.driver.logger.Info("[browser] Snapshot saved: %s", path)
}
