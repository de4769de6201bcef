package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/terencetsy/maillayer-contactsync/internal/config"
	"github.com/terencetsy/maillayer-contactsync/internal/connector"
	"github.com/terencetsy/maillayer-contactsync/internal/database"
	"github.com/terencetsy/maillayer-contactsync/internal/events"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/service"
	"github.com/terencetsy/maillayer-contactsync/internal/watcher"
)

// app holds the shared wiring of every subcommand that touches the database.
type app struct {
	cfg          *config.Config
	db           *gorm.DB
	integrations *repository.IntegrationRepository
	syncs        *repository.TableSyncRepository
	lists        *repository.ContactListRepository
	contacts     *repository.ContactRepository
	jobs         *repository.ContactSyncJobRepository
	syncService  *service.SyncService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connected successfully")

	a := &app{
		cfg:          cfg,
		db:           db,
		integrations: repository.NewIntegrationRepository(db),
		syncs:        repository.NewTableSyncRepository(db),
		lists:        repository.NewContactListRepository(db),
		contacts:     repository.NewContactRepository(db),
		jobs:         repository.NewContactSyncJobRepository(db),
	}
	a.syncService = service.NewSyncService(a.integrations, a.syncs, a.jobs, cfg.MaxAttempts)
	return a, nil
}

func (a *app) close() {
	if err := database.Close(a.db); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

func (a *app) newProcessor() *service.SyncProcessor {
	registry := connector.NewRegistry(connector.Options{HTTPTimeout: a.cfg.ProviderHTTPTimeout})
	return service.NewSyncProcessor(a.integrations, a.syncs, a.lists, a.contacts, registry, a.jobs, service.SyncProcessorOptions{
		BatchSize: a.cfg.BatchSize,
	})
}

func (a *app) newWatcher(publisher events.Publisher) *watcher.Watcher {
	return watcher.New(a.jobs, a.newProcessor(), publisher, watcher.Options{
		Concurrency:    a.cfg.WorkerConcurrency,
		PollInterval:   a.cfg.PollInterval,
		RetryBaseDelay: a.cfg.RetryBaseDelay,
		InFlightTTL:    a.cfg.InFlightTTL,
	})
}

// newPublisher connects to RabbitMQ when configured and drops events otherwise.
func (a *app) newPublisher() (events.Publisher, error) {
	if a.cfg.RabbitMQURL == "" {
		return events.NoopPublisher{}, nil
	}
	return events.NewRabbitMQPublisher(a.cfg.RabbitMQURL, a.cfg.RabbitMQExchange)
}

func closePublisher(p events.Publisher) {
	if err := p.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event publisher")
	}
}

func (a *app) providers() ([]models.ProviderType, error) {
	out := make([]models.ProviderType, 0, len(a.cfg.SyncProviders))
	for _, raw := range a.cfg.SyncProviders {
		p, err := models.ParseProviderType(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_PROVIDERS: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
