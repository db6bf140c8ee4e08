// Package notify delivers new-listing alerts.
package notify

import (
	"context"
	"errors"
	"strings"

	"homewatch/models"
	"homewatch/utils"
)

// ErrPlaceholderAddress is returned when asked to deliver to a synthetic
// address.
var ErrPlaceholderAddress = errors.New("placeholder address")

// Notifier delivers one alert about l to the address to.
type Notifier interface {
	Send(ctx context.Context, to string, l *models.Listing) error
}

// PlaceholderPolicy recognises synthetic addresses by domain.
type PlaceholderPolicy struct {
	domains []string
}

// NewPlaceholderPolicy treats any address in one of domains as synthetic.
func NewPlaceholderPolicy(domains []string) PlaceholderPolicy {
	p := PlaceholderPolicy{}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@")); d != "" {
			p.domains = append(p.domains, d)
		}
	}
	return p
}

// IsPlaceholder reports whether addr must never receive mail. Empty and
// malformed addresses count as placeholders.
func (p PlaceholderPolicy) IsPlaceholder(addr string) bool {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return true
	}
	domain := strings.ToLower(strings.TrimSpace(addr[at+1:]))
	for _, d := range p.domains {
		if domain == d {
			return true
		}
	}
	return false
}

// LogNotifier only logs alerts. It stands in when no SMTP server is
// configured.
type LogNotifier struct {
	logger *utils.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, to string, l *models.Listing) error {
	n.logger.Info("[notify] %s -> %s (%s)", Subject(l), to, l.URL)
	return nil
}
