package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"enforcement_scraper/internal/config"
	"enforcement_scraper/internal/enrich"
	"enforcement_scraper/internal/fetch"
	"enforcement_scraper/internal/publisher"
	"enforcement_scraper/internal/ratelimit"
	"enforcement_scraper/internal/service"
	"enforcement_scraper/internal/source/ea"
	"enforcement_scraper/internal/source/hse"
	"enforcement_scraper/internal/storage/postgres"
)

// app holds the wired components shared by the run and serve commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sqlx.DB
	broker  *publisher.Broker
	events  *publisher.Fanout
	manager *service.Manager
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func connectDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	broker := publisher.NewBroker(64, logger)
	sinks := []publisher.Sink{broker}
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		sinks = append(sinks, rabbitMQ)
	}
	events := publisher.NewFanout(sinks...)

	limiters := ratelimit.NewRegistry(ratelimit.Config{
		Requests: cfg.RateLimit.Requests,
		Interval: cfg.RateLimit.Interval,
		Burst:    cfg.RateLimit.Burst,
	})
	fetcher := fetch.New(fetch.Config{
		Timeout:             cfg.Fetcher.Timeout,
		MaxAttempts:         cfg.Fetcher.MaxRetries,
		RetryBackoff:        cfg.Fetcher.RetryBackoff,
		RateLimitMultiplier: cfg.Fetcher.RateLimitMultiplier,
		UserAgent:           cfg.Fetcher.UserAgent,
	}, limiters, logger)

	sources := []service.Source{
		hse.New(hse.Config{BaseURL: cfg.Agencies.HSE.BaseURL}, fetcher, logger),
		ea.New(ea.Config{BaseURL: cfg.Agencies.EA.BaseURL}, fetcher, logger),
	}

	sessions := postgres.NewSessionStore(db)
	logs := postgres.NewProcessingLogStore(db)
	gateway := service.NewGateway(
		postgres.NewRecordStore(db),
		postgres.NewOffenderStore(db),
		postgres.NewTransactionManager(db),
		logger,
	)
	processor := service.NewProcessor(logger, enrich.Apply)
	recorder := service.NewRecorder(logs, events, logger)
	coordinator := service.NewCoordinator(sources, fetcher, processor, gateway, recorder, sessions, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		broker:  broker,
		events:  events,
		manager: service.NewManager(coordinator, sessions, logs, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.events.Close(); err != nil {
		a.logger.Error("close publishers", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}
