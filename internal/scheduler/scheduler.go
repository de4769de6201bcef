package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
)

// IntegrationLister interface for dependency injection
type IntegrationLister interface {
	ListActiveByProvider(ctx context.Context, provider models.ProviderType) ([]models.Integration, error)
}

// SyncLister interface for dependency injection
type SyncLister interface {
	GetImplicit(ctx context.Context, integrationID string) (*models.TableSync, error)
	ListByIntegration(ctx context.Context, integrationID string) ([]models.TableSync, error)
}

// ScheduledEnqueuer interface for dependency injection
type ScheduledEnqueuer interface {
	EnqueueScheduled(ctx context.Context, integration *models.Integration, sync *models.TableSync) (*models.ContactSyncJob, error)
}

// JobPruner interface for dependency injection
type JobPruner interface {
	PruneFinished(ctx context.Context, status models.ContactSyncJobStatus, processedBefore time.Time) (int64, error)
}

type Options struct {
	Interval           time.Duration
	Providers          []models.ProviderType
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// Scheduler enqueues one job per auto-synced TableSync on every tick and prunes finished jobs.
type Scheduler struct {
	integrations IntegrationLister
	syncs        SyncLister
	enqueuer     ScheduledEnqueuer
	pruner       JobPruner
	opts         Options
	now          func() time.Time
}

func New(integrations IntegrationLister, syncs SyncLister, enqueuer ScheduledEnqueuer, pruner JobPruner, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	return &Scheduler{
		integrations: integrations,
		syncs:        syncs,
		enqueuer:     enqueuer,
		pruner:       pruner,
		opts:         opts,
		now:          time.Now,
	}
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Enqueued int
	Skipped  int
	Pruned   int64
}

// Start runs one tick immediately and then one per interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().
		Dur("interval", s.opts.Interval).
		Interface("providers", s.opts.Providers).
		Msg("Starting contact sync scheduler")

	s.runTick(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	res, err := s.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler tick failed")
		return
	}
	log.Info().
		Int("enqueued", res.Enqueued).
		Int("skipped", res.Skipped).
		Int64("pruned", res.Pruned).
		Msg("Scheduler tick completed")
}

// Tick enqueues due syncs for every configured provider, then prunes finished jobs.
// A failure on one provider or integration is logged and does not stop the others.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	for _, provider := range s.opts.Providers {
		integrations, err := s.integrations.ListActiveByProvider(ctx, provider)
		if err != nil {
			log.Error().Err(err).Str("provider", string(provider)).Msg("Failed to list integrations")
			continue
		}

		for i := range integrations {
			integration := &integrations[i]

			syncs, err := s.syncsOf(ctx, integration)
			if err != nil {
				log.Error().Err(err).Str("integrationId", integration.ID).Msg("Failed to load table syncs")
				continue
			}

			for j := range syncs {
				sync := &syncs[j]
				if !Due(integration, sync) {
					res.Skipped++
					continue
				}
				if _, err := s.enqueuer.EnqueueScheduled(ctx, integration, sync); err != nil {
					log.Error().
						Err(err).
						Str("integrationId", integration.ID).
						Str("syncId", sync.ID).
						Msg("Failed to enqueue scheduled sync")
					continue
				}
				res.Enqueued++
			}
		}
	}

	pruned, err := s.prune(ctx)
	res.Pruned = pruned
	if err != nil {
		return res, err
	}
	return res, nil
}

// Due reports whether a sync takes part in scheduled runs.
func Due(integration *models.Integration, sync *models.TableSync) bool {
	return integration.Status == models.IntegrationActive &&
		sync.AutoSync &&
		sync.EffectiveMapping(integration.Provider).HasEmail()
}

func (s *Scheduler) syncsOf(ctx context.Context, integration *models.Integration) ([]models.TableSync, error) {
	if integration.Provider != models.ProviderIdentity {
		return s.syncs.ListByIntegration(ctx, integration.ID)
	}

	sync, err := s.syncs.GetImplicit(ctx, integration.ID)
	if errors.Is(err, repository.ErrTableSyncNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.TableSync{*sync}, nil
}

func (s *Scheduler) prune(ctx context.Context) (int64, error) {
	now := s.now()
	retention := []struct {
		status models.ContactSyncJobStatus
		keep   time.Duration
	}{
		{models.JobStatusCompleted, s.opts.CompletedRetention},
		{models.JobStatusFailed, s.opts.FailedRetention},
	}

	var total int64
	for _, r := range retention {
		if r.keep <= 0 {
			continue
		}
		n, err := s.pruner.PruneFinished(ctx, r.status, now.Add(-r.keep))
		if err != nil {
			return total, fmt.Errorf("failed to prune %s jobs: %w", r.status, err)
		}
		metrics.RecordPruned(string(r.status), n)
		total += n
	}
	return total, nil
}
