package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrJobNotFound     = errors.New("contact sync job not found")
	ErrNoJobsAvailable = errors.New("no contact sync jobs available")
)

const stuckJobError = "worker stopped before finishing the job"

type ContactSyncJobRepository struct {
	db *gorm.DB
}

func NewContactSyncJobRepository(db *gorm.DB) *ContactSyncJobRepository {
	return &ContactSyncJobRepository{db: db}
}

// Enqueue creates a new pending job
func (r *ContactSyncJobRepository) Enqueue(ctx context.Context, job *models.ContactSyncJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to enqueue contact sync job: %w", err)
	}
	return nil
}

// ClaimNext locks the oldest runnable pending job, moves it to processing and counts the attempt.
// Concurrent workers skip rows another transaction already holds.
func (r *ContactSyncJobRepository) ClaimNext(ctx context.Context, now time.Time) (*models.ContactSyncJob, error) {
	var job models.ContactSyncJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND run_after <= ?", models.JobStatusPending, now).
			Order("run_after ASC, created_at ASC").
			Limit(1).
			Find(&job)
		if result.Error != nil {
			return fmt.Errorf("failed to query pending jobs: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNoJobsAvailable
		}

		job.Status = models.JobStatusProcessing
		job.Attempts++
		job.StartedAt = &now
		job.UpdatedAt = now

		result = tx.Model(&models.ContactSyncJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":     job.Status,
				"attempts":   job.Attempts,
				"started_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark job processing: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ReclaimStuck returns processing jobs whose worker vanished to the queue.
// Jobs that already used their last attempt are failed instead and their sync is marked error.
func (r *ContactSyncJobRepository) ReclaimStuck(ctx context.Context, startedBefore time.Time) (int64, error) {
	now := time.Now()
	var reclaimed int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exhausted []models.ContactSyncJob
		result := tx.Model(&exhausted).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "integration_id"}, {Name: "sync_id"}}}).
			Where("status = ? AND started_at < ? AND attempts >= max_attempts", models.JobStatusProcessing, startedBefore).
			Updates(map[string]interface{}{
				"status":       models.JobStatusFailed,
				"last_error":   stuckJobError,
				"processed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to fail stuck jobs: %w", result.Error)
		}

		for _, job := range exhausted {
			if err := markStuckSyncError(tx, &job, now); err != nil {
				return err
			}
		}

		result = tx.Model(&models.ContactSyncJob{}).
			Where("status = ? AND started_at < ?", models.JobStatusProcessing, startedBefore).
			Updates(map[string]interface{}{
				"status":     models.JobStatusPending,
				"run_after":  now,
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to reclaim stuck jobs: %w", result.Error)
		}
		reclaimed = result.RowsAffected
		return nil
	})
	return reclaimed, err
}

// markStuckSyncError moves the sync of an abandoned job from syncing to error.
// Identity jobs carry no sync ID and address the integration's implicit sync.
func markStuckSyncError(tx *gorm.DB, job *models.ContactSyncJob, now time.Time) error {
	q := tx.Model(&models.TableSync{}).Where("status = ?", models.TableSyncSyncing)
	if job.SyncID != nil {
		q = q.Where("id = ?", *job.SyncID)
	} else {
		q = q.Where("id = (?)", tx.Model(&models.TableSync{}).
			Select("id").
			Where("integration_id = ?", job.IntegrationID).
			Order("created_at ASC").
			Limit(1))
	}

	result := q.Updates(map[string]interface{}{
		"status":     models.TableSyncError,
		"last_error": stuckJobError,
		"updated_at": now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark sync of stuck job %s: %w", job.ID, result.Error)
	}
	return nil
}

// UpdateProgress raises the progress checkpoint. Lower values are ignored.
func (r *ContactSyncJobRepository) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	result := r.db.WithContext(ctx).Model(&models.ContactSyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"progress":   gorm.Expr("GREATEST(progress, ?)", progress),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update job progress: %w", result.Error)
	}
	return nil
}

// Complete marks the job done
func (r *ContactSyncJobRepository) Complete(ctx context.Context, jobID string) error {
	now := time.Now()
	return r.update(ctx, jobID, map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"progress":     100,
		"last_error":   nil,
		"error_kind":   nil,
		"processed_at": now,
		"updated_at":   now,
	})
}

// ScheduleRetry puts the job back in the queue to run no earlier than runAfter
func (r *ContactSyncJobRepository) ScheduleRetry(ctx context.Context, jobID string, runAfter time.Time, lastError, kind string) error {
	return r.update(ctx, jobID, map[string]interface{}{
		"status":     models.JobStatusPending,
		"run_after":  runAfter,
		"progress":   0,
		"last_error": lastError,
		"error_kind": kind,
		"updated_at": time.Now(),
	})
}

// Defer returns a claimed job to the queue without consuming its attempt
func (r *ContactSyncJobRepository) Defer(ctx context.Context, jobID string, runAfter time.Time) error {
	return r.update(ctx, jobID, map[string]interface{}{
		"status":     models.JobStatusPending,
		"run_after":  runAfter,
		"attempts":   gorm.Expr("GREATEST(attempts - 1, 0)"),
		"started_at": nil,
		"updated_at": time.Now(),
	})
}

// Fail marks the job terminally failed
func (r *ContactSyncJobRepository) Fail(ctx context.Context, jobID string, lastError, kind string) error {
	now := time.Now()
	return r.update(ctx, jobID, map[string]interface{}{
		"status":       models.JobStatusFailed,
		"last_error":   lastError,
		"error_kind":   kind,
		"processed_at": now,
		"updated_at":   now,
	})
}

// PruneFinished deletes terminal jobs of one status processed before the cutoff
func (r *ContactSyncJobRepository) PruneFinished(ctx context.Context, status models.ContactSyncJobStatus, processedBefore time.Time) (int64, error) {
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return 0, fmt.Errorf("cannot prune jobs in status %q", status)
	}

	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", status, processedBefore).
		Delete(&models.ContactSyncJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune %s jobs: %w", status, result.Error)
	}
	return result.RowsAffected, nil
}

// GetByID retrieves a contact sync job by ID
func (r *ContactSyncJobRepository) GetByID(ctx context.Context, jobID string) (*models.ContactSyncJob, error) {
	var job models.ContactSyncJob
	result := r.db.WithContext(ctx).First(&job, "id = ?", jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", result.Error)
	}
	return &job, nil
}

func (r *ContactSyncJobRepository) update(ctx context.Context, jobID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.ContactSyncJob{}).
		Where("id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}
