package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"homewatch/utils"
)

// ChromeDriver drives a headless Chrome through chromedp. The browser is
// started lazily by the first Open and shared by the tabs it opens.
type ChromeDriver struct {
	opts   Options
	logger *utils.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewChromeDriver creates a ChromeDriver. No browser is launched yet.
func NewChromeDriver(opts Options, logger *utils.Logger) *ChromeDriver {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	return &ChromeDriver{opts: opts, logger: logger}
}

func (d *ChromeDriver) start() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx != nil {
		return d.browserCtx, nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(d.opts)...)
	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Launch now so later timeouts only bound page work, not browser start.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	d.logger.Info("[browser] Chrome started (headless=%v)", d.opts.Headless)
	d.browserCtx, d.cancelAlloc, d.cancelBrowser = browserCtx, cancelAlloc, cancelBrowser
	return browserCtx, nil
}

// Open creates a tab, prepares it and navigates to url.
func (d *ChromeDriver) Open(ctx context.Context, url string) (Page, error) {
	browserCtx, err := d.start()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, cancelTab)
	p := &chromePage{
		driver: d,
		ctx:    tabCtx,
		url:    url,
		close: func() {
			stop()
			cancelTab()
		},
	}

	if err := chromedp.Run(tabCtx, prepareTab()); err != nil {
		p.Close()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, d.opts.NavTimeout)
	defer cancelNav()

	d.logger.Debug("[browser] Navigating to %s", url)
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return p, fmt.Errorf("%w after %s: %s", ErrNavigationTimeout, d.opts.NavTimeout, url)
		}
		return p, fmt.Errorf("navigate %s: %w", url, err)
	}
	return p, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx == nil {
		return nil
	}
	d.cancelBrowser()
	d.cancelAlloc()
	d.browserCtx = nil
	d.logger.Debug("[browser] Chrome closed")
	return nil
}

type chromePage struct {
	driver *ChromeDriver
	ctx    context.Context
	url    string
	close  func()
}

func (p *chromePage) URL() string { return p.url }

func (p *chromePage) Close() { p.close() }

func (p *chromePage) WaitForContent(ctx context.Context, selectors []string, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		for _, sel := range selectors {
			if p.exists(waitCtx, sel) {
				p.driver.logger.Debug("[browser] Content ready: %s", sel)
				return true
			}
		}
		select {
		case <-waitCtx.Done():
			p.driver.logger.Warn("[browser] No content after %s (selectors %v)", timeout, selectors)
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (p *chromePage) exists(ctx context.Context, sel string) bool {
	var found bool
	js := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &found)); err != nil {
		return false
	}
	return found
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	htmlCtx, cancel := context.WithTimeout(p.ctx, p.driver.opts.NavTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (p *chromePage) SolveChallenge(ctx context.Context) {
	logger := p.driver.logger
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[browser] Challenge handling panicked: %v", r)
		}
	}()

	html, err := p.HTML(ctx)
	if err != nil {
		logger.Warn("[browser] Could not inspect page for challenge: %v", err)
		return
	}
	marker, found := DetectChallenge(html)
	if !found {
		logger.Debug("[browser] No challenge detected")
		return
	}

	logger.Warn("[browser] Challenge detected (%s) on %s", marker, p.url)
	p.Capture(ctx, "captcha-detected")

	err = p.pressAndHold(ctx)
	p.Capture(ctx, "after-captcha-attempt")
	if err == nil {
		logger.Info("[browser] Challenge passed")
		return
	}

	logger.Warn("[browser] %v", err)
	if !p.driver.opts.Headless && p.driver.opts.ManualWait > 0 {
		logger.Info("[browser] Browser is visible, waiting %s for manual solving", p.driver.opts.ManualWait)
		_ = utils.Sleep(ctx, p.driver.opts.ManualWait)
	}
}

type controlBox struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

const controlCenterJS = `(function(sel) {
	var el = document.querySelector(sel);
	if (!el) return {found: false, x: 0, y: 0};
	el.scrollIntoView({block: 'center'});
	var r = el.getBoundingClientRect();
	return {found: true, x: r.left + r.width / 2, y: r.top + r.height / 2};
})(%q)`

// pressAndHold presses the first hold control found, holds it for a random
// duration and checks whether results replaced the challenge.
func (p *chromePage) pressAndHold(ctx context.Context) error {
	opts := p.driver.opts
	logger := p.driver.logger

	var box controlBox
	var selector string
	for _, sel := range HoldSelectors {
		if err := chromedp.Run(p.ctx, chromedp.Evaluate(fmt.Sprintf(controlCenterJS, sel), &box)); err != nil {
			continue
		}
		if box.Found {
			selector = sel
			break
		}
	}
	if selector == "" {
		return fmt.Errorf("%w: no hold control found", ErrChallengeUnresolved)
	}

	hold := HoldDuration(opts.HoldMin, opts.HoldMax)
	logger.Info("[browser] Pressing %s for %s", selector, hold)

	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, box.X, box.Y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, box.X, box.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		if err := utils.Sleep(ctx, hold); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, box.X, box.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("%w: gesture failed: %v", ErrChallengeUnresolved, err)
	}

	if err := utils.Sleep(ctx, opts.Settle); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnresolved, err)
	}

	for _, sel := range ResultSelectors {
		if p.exists(p.ctx, sel) {
			return nil
		}
	}
	return fmt.Errorf("%w: still on verification page", ErrChallengeUnresolved)
}

func (p *chromePage) Capture(ctx context.Context, label string) {
	dir := p.driver.opts.ScreenshotDir
	if dir == "" {
		return
	}

	captureCtx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var shot []byte
	if err := chromedp.Run(captureCtx, chromedp.FullScreenshot(&shot, 80)); err != nil {
		p.driver.logger.Debug("[browser] Screenshot %q failed: %v", label, err)
		return
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.driver.logger.Debug("[browser] Screenshot dir: %v", err)
		return
	}
	path := snapshotPath(dir, label, ".jpg", time.Now())
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		p.driver.logger.Debug("[browser] Screenshot write failed: %v", err)
		return
	}
	p.driver.logger.Info("[browser] Screenshot saved: %s", path)
}
