package browser

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript hides the properties headless Chrome is usually
// fingerprinted by. It runs before any page script.
const stealthScript = `
(function() {
    Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
    try { delete Object.getPrototypeOf(navigator).webdriver; } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['en-US', 'en']),
        configurable: true
    });

    Object.defineProperty(navigator, 'plugins', {
        get: () => {
            const names = ['Chrome PDF Plugin', 'Chrome PDF Viewer', 'Native Client'];
            const list = names.map((name) => ({ name: name, filename: name, description: '', length: 1 }));
            list.item = (i) => list[i] || null;
            list.namedItem = (n) => list.find((p) => p.name === n) || null;
            list.refresh = () => {};
            return list;
        },
        configurable: true
    });

    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: false });
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = { connect: function() {}, sendMessage: function() {} };
    }

    const originalQuery = Permissions.prototype.query;
    Permissions.prototype.query = function(parameters) {
        if (parameters && parameters.name === 'notifications') {
            return Promise.resolve({ state: Notification.permission });
        }
        return originalQuery.call(this, parameters);
    };

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 4, configurable: true });
    }

    try {
        const getParameter = WebGLRenderingContext.prototype.getParameter;
        WebGLRenderingContext.prototype.getParameter = function(param) {
            if (param === 37445) return 'Intel Inc.';
            if (param === 37446) return 'Intel Iris OpenGL Engine';
            return getParameter.call(this, param);
        };
    } catch (e) {}
})();
`

// requestHeaders are sent with every navigation.
var requestHeaders = map[string]string{
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Upgrade-Insecure-Requests": "1",
}

// allocatorOptions returns the Chrome flags for a headful-looking session.
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}
	if bin := findChromeBinary(opts.ChromeBin); bin != "" {
		flags = append(flags, chromedp.ExecPath(bin))
	}
	return flags
}

// prepareTab installs the stealth script and the extra headers on a fresh
// tab. It must run before the first navigation.
func prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return err
		}
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		headers := network.Headers{}
		for k, v := range requestHeaders {
			headers[k] = v
		}
		return network.SetExtraHTTPHeaders(headers).Do(ctx)
	})
}
