package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/terencetsy/maillayer-contactsync/internal/events"
	"github.com/terencetsy/maillayer-contactsync/internal/metrics"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

// statusWriteTimeout bounds the final queue writes of a job, which run detached from worker cancellation.
const statusWriteTimeout = 10 * time.Second

// JobQueue interface for dependency injection
type JobQueue interface {
	ClaimNext(ctx context.Context, now time.Time) (*models.ContactSyncJob, error)
	ReclaimStuck(ctx context.Context, startedBefore time.Time) (int64, error)
	Complete(ctx context.Context, jobID string) error
	ScheduleRetry(ctx context.Context, jobID string, runAfter time.Time, lastError, kind string) error
	Defer(ctx context.Context, jobID string, runAfter time.Time) error
	Fail(ctx context.Context, jobID string, lastError, kind string) error
}

// JobProcessor interface for dependency injection
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.ContactSyncJob) (*models.SyncResult, error)
}

type Options struct {
	Concurrency    int
	PollInterval   time.Duration
	RetryBaseDelay time.Duration
	InFlightTTL    time.Duration
}

// Watcher runs a pool of workers that claim and execute contact sync jobs.
type Watcher struct {
	queue     JobQueue
	processor JobProcessor
	publisher events.Publisher
	inflight  *inFlight
	opts      Options
	now       func() time.Time
}

func New(queue JobQueue, processor JobProcessor, publisher events.Publisher, opts Options) *Watcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Watcher{
		queue:     queue,
		processor: processor,
		publisher: publisher,
		inflight:  newInFlight(opts.InFlightTTL),
		opts:      opts,
		now:       time.Now,
	}
}

// Start begins watching for pending jobs. It returns when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	log.Info().
		Int("workers", w.opts.Concurrency).
		Dur("pollInterval", w.opts.PollInterval).
		Msg("Starting watcher for contact sync jobs")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			return w.runWorker(gctx, worker)
		})
	}
	if w.opts.InFlightTTL > 0 {
		g.Go(func() error {
			return w.runReclaimer(gctx)
		})
	}

	err := g.Wait()
	log.Info().Msg("Watcher shutting down")
	return err
}

func (w *Watcher) runWorker(ctx context.Context, worker int) error {
	logger := log.With().Int("worker", worker).Logger()

	// Process any pending jobs from previous runs
	w.drain(ctx, logger)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx, logger)
		}
	}
}

// drain claims and runs jobs until the queue has nothing due.
func (w *Watcher) drain(ctx context.Context, logger zerolog.Logger) {
	for ctx.Err() == nil {
		job, err := w.queue.ClaimNext(ctx, w.now())
		if errors.Is(err, repository.ErrNoJobsAvailable) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("Failed to claim contact sync job")
			}
			return
		}
		w.handle(ctx, job)
	}
}

// RunOnce claims and runs jobs until none is due. Used by tests and one-shot CLI runs.
func (w *Watcher) RunOnce(ctx context.Context) {
	w.drain(ctx, log.Logger)
}

func (w *Watcher) handle(ctx context.Context, job *models.ContactSyncJob) {
	logger := log.With().
		Str("jobId", job.ID).
		Str("integrationId", job.IntegrationID).
		Str("syncId", syncIDString(job.SyncID)).
		Int("attempt", job.Attempts).
		Logger()

	key := job.SyncKey()
	if !w.inflight.acquire(key) {
		logger.Info().Msg("Sync already running, deferring job")
		if err := w.queue.Defer(ctx, job.ID, w.now().Add(w.opts.PollInterval)); err != nil {
			logger.Error().Err(err).Msg("Failed to defer job")
		}
		metrics.RecordJob(string(job.Provider), metrics.OutcomeDeferred, 0)
		return
	}
	defer w.inflight.release(key)

	metrics.JobStarted()
	defer metrics.JobFinished()

	logger.Info().Str("trigger", string(job.Trigger)).Msg("Processing contact sync job")
	started := w.now()
	result, err := w.processor.ProcessJob(ctx, job)
	duration := w.now().Sub(started)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown; hand the job back without spending the attempt.
		if derr := w.queue.Defer(writeCtx, job.ID, w.now()); derr != nil {
			logger.Error().Err(derr).Msg("Failed to return interrupted job to the queue")
		}
		metrics.RecordJob(string(job.Provider), metrics.OutcomeDeferred, duration)
		return
	}

	w.finish(writeCtx, logger, job, result, err, duration)
}

func (w *Watcher) finish(ctx context.Context, logger zerolog.Logger, job *models.ContactSyncJob, result *models.SyncResult, jobErr error, duration time.Duration) {
	provider := string(job.Provider)

	switch {
	case jobErr == nil:
		if err := w.queue.Complete(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to mark job completed")
		}
		metrics.RecordJob(provider, metrics.OutcomeCompleted, duration)
		w.publish(ctx, logger, newEvent(events.SyncCompleted, job, result, nil, w.now()))

	case syncerr.IsRetryable(jobErr) && job.CanRetry():
		runAfter := w.now().Add(RetryDelay(w.opts.RetryBaseDelay, job.Attempts))
		logger.Warn().
			Err(jobErr).
			Str("errorKind", string(syncerr.KindOf(jobErr))).
			Time("runAfter", runAfter).
			Msg("Contact sync attempt failed, retrying")
		if err := w.queue.ScheduleRetry(ctx, job.ID, runAfter, jobErr.Error(), string(syncerr.KindOf(jobErr))); err != nil {
			logger.Error().Err(err).Msg("Failed to schedule retry")
		}
		metrics.RecordJob(provider, metrics.OutcomeRetried, duration)

	default:
		logger.Error().
			Err(jobErr).
			Str("errorKind", string(syncerr.KindOf(jobErr))).
			Msg("Contact sync job failed")
		if err := w.queue.Fail(ctx, job.ID, jobErr.Error(), string(syncerr.KindOf(jobErr))); err != nil {
			logger.Error().Err(err).Msg("Failed to mark job failed")
		}
		metrics.RecordJob(provider, metrics.OutcomeFailed, duration)
		w.publish(ctx, logger, newEvent(events.SyncFailed, job, nil, jobErr, w.now()))
	}
}

func (w *Watcher) publish(ctx context.Context, logger zerolog.Logger, event events.SyncEvent) {
	if err := w.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to publish sync event")
	}
}

// runReclaimer periodically returns jobs stuck in processing after a crash.
func (w *Watcher) runReclaimer(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.InFlightTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.ReclaimStuck(ctx, w.now().Add(-w.opts.InFlightTTL))
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("Failed to reclaim stuck jobs")
				}
				continue
			}
			if n > 0 {
				log.Warn().Int64("count", n).Msg("Reclaimed stuck contact sync jobs")
			}
		}
	}
}

// RetryDelay is base * 2^(attempt-1).
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func newEvent(t events.EventType, job *models.ContactSyncJob, result *models.SyncResult, err error, at time.Time) events.SyncEvent {
	event := events.SyncEvent{
		Type:          t,
		JobID:         job.ID,
		IntegrationID: job.IntegrationID,
		SyncID:        job.SyncID,
		Provider:      job.Provider,
		Trigger:       job.Trigger,
		Attempt:       job.Attempts,
		Result:        result,
		OccurredAt:    at.UTC(),
	}
	if err != nil {
		event.Error = err.Error()
		event.ErrorKind = string(syncerr.KindOf(err))
	}
	return event
}

func syncIDString(syncID *string) string {
	if syncID == nil {
		return ""
	}
	return *syncID
}
