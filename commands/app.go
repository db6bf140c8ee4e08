package commands

import (
	"fmt"

	"homewatch/config"
	"homewatch/notify"
	"homewatch/scraper"
	"homewatch/scraper/zillow"
	"homewatch/services"
	"homewatch/storage"
	"homewatch/utils"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *utils.Logger
	store  storage.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger()
	logger.SetDebug(cfg.Debug || debug)

	store, err := storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Closing store: %v", err)
	}
}

// notifier picks SMTP delivery when a server is configured.
func (a *app) notifier() notify.Notifier {
	if a.cfg.SMTPHost == "" {
		a.logger.Warn("SMTP_HOST not set, alerts are only logged")
		return notify.NewLogNotifier(a.logger)
	}
	return notify.NewEmailSender(a.cfg, a.logger)
}

func (a *app) engine() (*services.Engine, error) {
	z, err := zillow.FromConfig(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("zillow source: %w", err)
	}
	return services.NewEngine(
		a.store,
		[]scraper.Source{z},
		a.notifier(),
		notify.NewPlaceholderPolicy(a.cfg.PlaceholderDomains),
		a.logger,
	), nil
}
