package browser

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ChallengeSelectors mark an anti-bot challenge, in priority order.
var ChallengeSelectors = []string{
	`iframe[title*="recaptcha"]`,
	`iframe[src*="captcha"]`,
	".captcha-container",
	"#captcha",
	".captcha-holder",
	`[data-testid="challenge-stage-holder"]`,
	`[data-testid="challenge"]`,
	`button[data-testid="hold-button"]`,
	".recaptcha-checkbox-checkmark",
}

// HoldSelectors locate the control that takes the press-and-hold gesture.
var HoldSelectors = []string{
	`[data-testid="hold-button"]`,
	".captcha-holder button",
	".g-recaptcha",
}

// ResultSelectors prove the challenge is gone and results are showing.
var ResultSelectors = []string{
	`[data-test="property-card"]`,
	".photo-cards",
}

// DetectChallenge returns the first challenge selector present in html,
// falling back to well-known challenge page markers.
func DetectChallenge(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		for _, sel := range ChallengeSelectors {
			if doc.Find(sel).Length() > 0 {
				return sel, true
			}
		}
	}

	lower := strings.ToLower(html)
	switch {
	case strings.Contains(lower, "press &amp; hold"), strings.Contains(lower, "press & hold"):
		return "press-and-hold", true
	case strings.Contains(lower, "cf-challenge"), strings.Contains(lower, "cf-turnstile"):
		return "cloudflare", true
	case strings.Contains(lower, "g-recaptcha"), strings.Contains(lower, "h-captcha"):
		return "captcha", true
	}
	return "", false
}

// HasAny reports whether any of selectors matches in html.
func HasAny(html string, selectors []string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// HoldDuration draws the press length uniformly from [lo, hi).
func HoldDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// snapshotPath builds dir/<label>-<timestamp><ext> with the label reduced to
// file-name safe characters.
func snapshotPath(dir, label, ext string, at time.Time) string {
	safe := strings.Trim(unsafeLabelChars.ReplaceAllString(label, "-"), "-")
	if safe == "" {
		safe = "page"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", safe, at.Format("20060102-150405.000"), ext))
}
