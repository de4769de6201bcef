package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// JobEnqueuer interface for dependency injection
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.ContactSyncJob) error
}

// SyncService is the entry point other parts of the platform use to trigger and inspect syncs.
type SyncService struct {
	integrations IntegrationStore
	syncs        TableSyncReader
	jobs         JobEnqueuer
	maxAttempts  int
	now          func() time.Time
}

func NewSyncService(integrations IntegrationStore, syncs TableSyncReader, jobs JobEnqueuer, maxAttempts int) *SyncService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SyncService{
		integrations: integrations,
		syncs:        syncs,
		jobs:         jobs,
		maxAttempts:  maxAttempts,
		now:          time.Now,
	}
}

// EnqueueSync queues a manual run. syncID may be nil for integrations with a single implicit sync.
func (s *SyncService) EnqueueSync(ctx context.Context, integrationID string, syncID *string) (*models.ContactSyncJob, error) {
	integration, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	sync, err := resolveSync(ctx, s.syncs, integrationID, syncID)
	if err != nil {
		return nil, err
	}

	return s.enqueue(ctx, integration, sync, models.TriggerManual)
}

// EnqueueScheduled queues an unattended run of a sync the scheduler selected.
func (s *SyncService) EnqueueScheduled(ctx context.Context, integration *models.Integration, sync *models.TableSync) (*models.ContactSyncJob, error) {
	return s.enqueue(ctx, integration, sync, models.TriggerScheduled)
}

func (s *SyncService) enqueue(ctx context.Context, integration *models.Integration, sync *models.TableSync, trigger models.SyncTrigger) (*models.ContactSyncJob, error) {
	if !sync.EffectiveMapping(integration.Provider).HasEmail() {
		return nil, syncerr.Configurationf("sync %s has no email mapping", sync.ID)
	}

	now := s.now()
	job := &models.ContactSyncJob{
		ID:            uuid.NewString(),
		IntegrationID: integration.ID,
		SyncID:        jobSyncID(integration.Provider, sync.ID),
		Provider:      integration.Provider,
		Trigger:       trigger,
		Status:        models.JobStatusPending,
		MaxAttempts:   s.maxAttempts,
		RunAfter:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	job.JobKey = models.BuildJobKey(job.IntegrationID, job.SyncID, now, job.ID)

	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	metrics.RecordEnqueue(string(integration.Provider), string(trigger))
	log.Info().
		Str("jobId", job.ID).
		Str("jobKey", job.JobKey).
		Str("trigger", string(trigger)).
		Msg("Contact sync job enqueued")
	return job, nil
}

// GetLastResult returns the result of the last completed run, or nil if the sync never completed.
func (s *SyncService) GetLastResult(ctx context.Context, integrationID string, syncID *string) (*models.SyncResult, error) {
	if _, err := s.integrations.GetByID(ctx, integrationID); err != nil {
		return nil, err
	}

	sync, err := resolveSync(ctx, s.syncs, integrationID, syncID)
	if err != nil {
		if errors.Is(err, repository.ErrTableSyncNotFound) {
			return nil, repository.ErrTableSyncNotFound
		}
		return nil, fmt.Errorf("failed to resolve sync: %w", err)
	}
	return sync.Result(), nil
}

// jobSyncID omits the sync ID for identity integrations, which have exactly one implicit sync.
func jobSyncID(provider models.ProviderType, syncID string) *string {
	if provider == models.ProviderIdentity || syncID == "" {
		return nil
	}
	id := syncID
	return &id
}
