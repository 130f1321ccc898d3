package wiring

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"fincas-control/internal/audit"
	"fincas-control/internal/config"
	"fincas-control/internal/dispatch/application"
	"fincas-control/internal/dispatch/notify"
	"fincas-control/internal/nodered"
)

// BuildMirror assembles the configured notification channels. It returns nil
// when no channel is configured.
func BuildMirror(cfg config.Config) (*notify.Mirror, error) {
	if !cfg.MirrorEnabled() {
		return nil, nil
	}
	client := &http.Client{Timeout: cfg.NotifyTimeout}

	var channels []notify.Channel
	if cfg.Telegram.IsConfigured() {
		opts := []notify.TelegramOption{
			notify.WithTelegramAPI(cfg.Telegram.APIBase),
			notify.WithTelegramHTTPClient(client),
		}
		for topic, thread := range cfg.Telegram.Threads() {
			opts = append(opts, notify.WithTopicThread(topic, thread))
		}
		telegram, err := notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID, opts...)
		if err != nil {
			return nil, err
		}
		channels = append(channels, telegram)
	}
	if cfg.SlackWebhookURL != "" {
		slack, err := notify.NewSlackChannel(cfg.SlackWebhookURL, client)
		if err != nil {
			return nil, err
		}
		channels = append(channels, slack)
	}
	if cfg.Discord.IsConfigured() {
		session, err := notify.NewDiscordSession(cfg.Discord.BotToken)
		if err != nil {
			return nil, err
		}
		session.Client = client
		discord, err := notify.NewDiscordChannel(session, cfg.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, discord)
	}

	var template *notify.Template
	if cfg.NotifyTemplate != "" {
		tpl, err := notify.NewTemplate(cfg.NotifyTemplate)
		if err != nil {
			return nil, err
		}
		template = tpl
	}
	return notify.NewMirror(template, channels...)
}

// BuildService wires the Node-RED client, mirror and sinks into a dispatch service.
func BuildService(cfg config.Config, logger *log.Logger, sinks ...application.ResultSink) (*application.Service, *notify.Mirror, error) {
	client, err := nodered.NewClient(cfg.NodeRedURL, nodered.WithTimeout(cfg.DispatchTimeout))
	if err != nil {
		return nil, nil, err
	}
	mirror, err := BuildMirror(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("notify mirror: %w", err)
	}

	opts := []application.Option{
		application.WithLogger(logger),
		application.WithConcurrency(cfg.DispatchConcurrency),
		application.WithNotifyTimeout(cfg.NotifyTimeout),
		application.WithSinks(sinks...),
	}
	if mirror != nil {
		opts = append(opts, application.WithNotifier(mirror))
	}
	svc, err := application.NewService(cfg.Catalog, client, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, mirror, nil
}

// OpenAudit opens the audit store named by DATABASE_URL. All return values are
// nil when no database is configured.
func OpenAudit(ctx context.Context, cfg config.Config) (*sql.DB, *audit.Repository, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	db, dialect, err := audit.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("audit: ping: %w", err)
	}
	repo := audit.NewRepository(db, dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}
