package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terencetsy/maillayer-contactsync/internal/connector"
	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// Progress checkpoints of one job run.
const (
	ProgressFetchStarted  = 10
	ProgressFirstPage     = 20
	ProgressBatchesStart  = 30
	ProgressBatchesEnd    = 80
	ProgressResultSaved   = 90
	ProgressListRecounted = 100

	// step used per batch when the source size is unknown
	unknownSizeBatchStep = 5
)

// IntegrationStore interface for dependency injection
type IntegrationStore interface {
	GetByID(ctx context.Context, integrationID string) (*models.Integration, error)
}

// TableSyncReader interface for dependency injection
type TableSyncReader interface {
	GetByID(ctx context.Context, integrationID, syncID string) (*models.TableSync, error)
	GetImplicit(ctx context.Context, integrationID string) (*models.TableSync, error)
}

// TableSyncStore interface for dependency injection
type TableSyncStore interface {
	TableSyncReader
	MarkSyncing(ctx context.Context, syncID string) error
	SaveResult(ctx context.Context, syncID string, res models.SyncResult, syncedAt time.Time) error
	MarkError(ctx context.Context, syncID string, message string) error
}

// ContactListStore interface for dependency injection
type ContactListStore interface {
	GetForBrand(ctx context.Context, listID, brandID string) (*models.ContactList, error)
	UpdateContactCount(ctx context.Context, listID string, count int64) error
}

// ContactStore interface for dependency injection
type ContactStore interface {
	ContactWriter
	CountByList(ctx context.Context, listID string) (int64, error)
}

// RecordSource opens the record stream of a configured source
type RecordSource interface {
	Fetch(ctx context.Context, cfg models.ProviderConfig, source models.SourceRef) (connector.Records, error)
}

// ProgressReporter persists job progress checkpoints
type ProgressReporter interface {
	UpdateProgress(ctx context.Context, jobID string, progress int) error
}

type SyncProcessorOptions struct {
	BatchSize int
}

// SyncProcessor runs one contact sync job end to end.
type SyncProcessor struct {
	integrations IntegrationStore
	syncs        TableSyncStore
	lists        ContactListStore
	contacts     ContactStore
	source       RecordSource
	progress     ProgressReporter
	reconciler   *Reconciler
	opts         SyncProcessorOptions
	now          func() time.Time
}

func NewSyncProcessor(
	integrations IntegrationStore,
	syncs TableSyncStore,
	lists ContactListStore,
	contacts ContactStore,
	source RecordSource,
	progress ProgressReporter,
	opts SyncProcessorOptions,
) *SyncProcessor {
	return &SyncProcessor{
		integrations: integrations,
		syncs:        syncs,
		lists:        lists,
		contacts:     contacts,
		source:       source,
		progress:     progress,
		reconciler:   NewReconciler(contacts, opts.BatchSize),
		opts:         opts,
		now:          time.Now,
	}
}

// syncTarget is everything a job needs once its preconditions hold.
type syncTarget struct {
	integration *models.Integration
	sync        *models.TableSync
	config      models.ProviderConfig
	list        *models.ContactList
	mapping     models.FieldMapping
}

// ProcessJob runs the sync a job points at and returns the stored result.
// Precondition failures are ConfigurationErrors. A failed run leaves the previous
// result and lastSyncedAt untouched and records the error on the sync.
func (p *SyncProcessor) ProcessJob(ctx context.Context, job *models.ContactSyncJob) (*models.SyncResult, error) {
	logger := log.With().
		Str("jobId", job.ID).
		Str("integrationId", job.IntegrationID).
		Str("syncId", syncIDString(job.SyncID)).
		Int("attempt", job.Attempts).
		Logger()

	target, err := p.prepare(ctx, job)
	if err != nil {
		if target != nil && target.sync != nil {
			p.markError(ctx, logger, target.sync.ID, err)
		}
		return nil, err
	}

	if err := p.syncs.MarkSyncing(ctx, target.sync.ID); err != nil {
		return nil, fmt.Errorf("failed to mark sync as syncing: %w", err)
	}

	result, err := p.run(ctx, logger, job, target)
	if err != nil {
		p.markError(ctx, logger, target.sync.ID, err)
		return nil, err
	}
	return result, nil
}

func (p *SyncProcessor) run(ctx context.Context, logger zerolog.Logger, job *models.ContactSyncJob, target *syncTarget) (*models.SyncResult, error) {
	tracker := newProgressTracker(p.progress, job.ID, logger)
	startedAt := p.now()

	tracker.set(ctx, ProgressFetchStarted)
	records, err := p.source.Fetch(ctx, target.config, target.sync.Source.Data())
	if err != nil {
		return nil, classifyFetchError(target.integration.Provider, err)
	}

	result, err := p.reconciler.Run(ctx, records, ReconcileTarget{
		ListID:  target.list.ID,
		BrandID: target.integration.BrandID,
		UserID:  target.integration.UserID,
		Source:  target.integration.Provider,
		Mapping: target.mapping,
		Policy:  PolicyFor(target.integration.Provider),
	}, tracker)
	if err != nil {
		return nil, err
	}

	// lastSyncedAt is the fetch start so that upstream changes made during the run are seen next time.
	if err := p.syncs.SaveResult(ctx, target.sync.ID, result, startedAt); err != nil {
		return nil, fmt.Errorf("failed to save sync result: %w", err)
	}
	tracker.set(ctx, ProgressResultSaved)

	count, err := p.contacts.CountByList(ctx, target.list.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to recount contact list: %w", err)
	}
	if err := p.lists.UpdateContactCount(ctx, target.list.ID, count); err != nil {
		return nil, fmt.Errorf("failed to update contact count: %w", err)
	}
	tracker.set(ctx, ProgressListRecounted)

	metrics.RecordSyncResult(string(target.integration.Provider), result.ImportedCount, result.UpdatedCount, result.SkippedCount)
	logger.Info().
		Int("imported", result.ImportedCount).
		Int("updated", result.UpdatedCount).
		Int("skipped", result.SkippedCount).
		Int("total", result.TotalCount).
		Int64("contactCount", count).
		Msg("Contact sync completed")

	return &result, nil
}

// prepare checks every precondition of the job. The returned target is partially
// filled on failure so the caller can record the error on the sync when it exists.
func (p *SyncProcessor) prepare(ctx context.Context, job *models.ContactSyncJob) (*syncTarget, error) {
	integration, err := p.integrations.GetByID(ctx, job.IntegrationID)
	if err != nil {
		if errors.Is(err, repository.ErrIntegrationNotFound) {
			return nil, syncerr.Configuration("integration not found", err)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	if integration.Provider != job.Provider {
		return nil, syncerr.Configurationf("integration provider is %s, job expects %s", integration.Provider, job.Provider)
	}
	if integration.Status != models.IntegrationActive {
		return nil, syncerr.Configurationf("integration is %s", integration.Status)
	}

	sync, err := resolveSync(ctx, p.syncs, job.IntegrationID, job.SyncID)
	if err != nil {
		return nil, err
	}
	target := &syncTarget{integration: integration, sync: sync}

	// Re-checked here because the sync may have changed since it was enqueued.
	if job.Trigger != models.TriggerManual && !sync.AutoSync {
		return target, syncerr.Configurationf("autoSync is disabled")
	}

	target.mapping = sync.EffectiveMapping(integration.Provider)
	if !target.mapping.HasEmail() {
		return target, syncerr.Configurationf("mapping.email is not set")
	}

	cfg, err := integration.ProviderConfig()
	if err != nil {
		return target, syncerr.Configuration("invalid provider config", err)
	}
	target.config = cfg

	list, err := p.lists.GetForBrand(ctx, sync.ContactListID, integration.BrandID)
	if err != nil {
		if errors.Is(err, repository.ErrContactListNotFound) {
			return target, syncerr.Configuration("contact list not found for brand", err)
		}
		return target, fmt.Errorf("failed to get contact list: %w", err)
	}
	target.list = list

	return target, nil
}

func (p *SyncProcessor) markError(ctx context.Context, logger zerolog.Logger, syncID string, cause error) {
	if err := p.syncs.MarkError(ctx, syncID, cause.Error()); err != nil {
		logger.Warn().Err(err).Msg("Failed to record sync error")
	}
}

// resolveSync loads the addressed sync, or the integration's implicit sync when syncID is empty.
func resolveSync(ctx context.Context, syncs TableSyncReader, integrationID string, syncID *string) (*models.TableSync, error) {
	var (
		sync *models.TableSync
		err  error
	)
	if syncID == nil || *syncID == "" {
		sync, err = syncs.GetImplicit(ctx, integrationID)
	} else {
		sync, err = syncs.GetByID(ctx, integrationID, *syncID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrTableSyncNotFound) {
			return nil, syncerr.Configuration("table sync not found", err)
		}
		return nil, fmt.Errorf("failed to get table sync: %w", err)
	}
	return sync, nil
}

func syncIDString(syncID *string) string {
	if syncID == nil {
		return ""
	}
	return *syncID
}

// progressTracker maps reconciliation milestones onto monotonic job progress.
type progressTracker struct {
	reporter ProgressReporter
	jobID    string
	logger   zerolog.Logger
	current  int
	batches  int
}

func newProgressTracker(reporter ProgressReporter, jobID string, logger zerolog.Logger) *progressTracker {
	return &progressTracker{reporter: reporter, jobID: jobID, logger: logger}
}

func (t *progressTracker) set(ctx context.Context, progress int) {
	if progress <= t.current {
		return
	}
	t.current = progress
	if t.reporter == nil {
		return
	}
	if err := t.reporter.UpdateProgress(ctx, t.jobID, progress); err != nil {
		t.logger.Warn().Err(err).Int("progress", progress).Msg("Failed to update job progress")
	}
}

func (t *progressTracker) FirstPage(ctx context.Context) {
	t.set(ctx, ProgressFirstPage)
}

func (t *progressTracker) BatchCommitted(ctx context.Context, processed, sizeHint int) {
	t.batches++

	progress := ProgressBatchesStart + unknownSizeBatchStep*(t.batches-1)
	if sizeHint > 0 {
		progress = ProgressBatchesStart + (ProgressBatchesEnd-ProgressBatchesStart)*processed/sizeHint
	}
	if progress > ProgressBatchesEnd {
		progress = ProgressBatchesEnd
	}
	if progress < ProgressBatchesStart {
		progress = ProgressBatchesStart
	}
	t.set(ctx, progress)
}
