package models

import (
	"fmt"
	"time"
)

type ContactSyncJobStatus string

const (
	JobStatusPending    ContactSyncJobStatus = "pending"    // Waiting for run_after
	JobStatusProcessing ContactSyncJobStatus = "processing" // Claimed by a worker
	JobStatusCompleted  ContactSyncJobStatus = "completed"  // Terminal, pruned after the completed retention
	JobStatusFailed     ContactSyncJobStatus = "failed"     // Terminal, kept longer for diagnosis
)

type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled" // Hourly tick
	TriggerManual    SyncTrigger = "manual"    // EnqueueSync from the API or CLI
)

// ContactSyncJob is one queued run of one (integration, sync) pair.
// JobKey is unique per enqueue, not per logical sync.
type ContactSyncJob struct {
	ID            string               `gorm:"column:id;primaryKey"`
	JobKey        string               `gorm:"column:job_key;uniqueIndex"`
	IntegrationID string               `gorm:"column:integration_id;index"`
	SyncID        *string              `gorm:"column:sync_id"`
	Provider      ProviderType         `gorm:"column:provider"`
	Trigger       SyncTrigger          `gorm:"column:trigger_source"`
	Status        ContactSyncJobStatus `gorm:"column:status;index"`
	Attempts      int                  `gorm:"column:attempts"`
	MaxAttempts   int                  `gorm:"column:max_attempts"`
	Progress      int                  `gorm:"column:progress"`
	RunAfter      time.Time            `gorm:"column:run_after;index"`
	LastError     *string              `gorm:"column:last_error"`
	ErrorKind     *string              `gorm:"column:error_kind"`
	CreatedAt     time.Time            `gorm:"column:created_at"`
	UpdatedAt     time.Time            `gorm:"column:updated_at"`
	StartedAt     *time.Time           `gorm:"column:started_at"`
	ProcessedAt   *time.Time           `gorm:"column:processed_at"`
}

// TableName specifies the table name for GORM
func (ContactSyncJob) TableName() string {
	return "contact_sync_job"
}

// BuildJobKey returns "integrationId:syncId:enqueueUnixMillis:jobId".
// The implicit identity sync uses "default" in the sync position. The job ID
// keeps two enqueues of one sync within the same millisecond apart.
func BuildJobKey(integrationID string, syncID *string, enqueuedAt time.Time, jobID string) string {
	sync := "default"
	if syncID != nil && *syncID != "" {
		sync = *syncID
	}
	return fmt.Sprintf("%s:%s:%d:%s", integrationID, sync, enqueuedAt.UnixMilli(), jobID)
}

// SyncKey identifies the logical sync a job runs, independent of enqueue time.
func (j *ContactSyncJob) SyncKey() string {
	if j.SyncID == nil || *j.SyncID == "" {
		return j.IntegrationID + ":default"
	}
	return j.IntegrationID + ":" + *j.SyncID
}

// CanRetry reports whether another attempt is allowed after the current one.
func (j *ContactSyncJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
