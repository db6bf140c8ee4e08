package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"homewatch/config"
	"homewatch/models"
	"homewatch/utils"
)

// EmailSender delivers alerts over SMTP.
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	policy   PlaceholderPolicy
	logger   *utils.Logger
}

// NewEmailSender builds an EmailSender from the SMTP settings in cfg.
func NewEmailSender(cfg *config.Config, logger *utils.Logger) *EmailSender {
	return &EmailSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.EmailFrom,
		policy:   NewPlaceholderPolicy(cfg.PlaceholderDomains),
		logger:   logger,
	}
}

// Message builds the alert message without sending it.
func (s *EmailSender) Message(to string, l *models.Listing) (*mail.Msg, error) {
	if s.policy.IsPlaceholder(to) {
		return nil, fmt.Errorf("%w: %s", ErrPlaceholderAddress, to)
	}

	body, err := RenderBody(l)
	if err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("email: from %q: %w", s.from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("email: to %q: %w", to, err)
	}
	m.Subject(Subject(l))
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

// Send renders and delivers one alert.
func (s *EmailSender) Send(ctx context.Context, to string, l *models.Listing) error {
	m, err := s.Message(to, l)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}

	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("email: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}

	s.logger.Debug("[notify] Sent alert for %s to %s", l.URL, to)
	return nil
}
