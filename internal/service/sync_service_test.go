package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"github.com/terencetsy/maillayer-contactsync/internal/repository"
	"github.com/terencetsy/maillayer-contactsync/internal/syncerr"
)

func newTestSyncService(jobs *mockJobEnqueuer) (*SyncService, *processorFixture) {
	f := newProcessorFixture()
	f.integrations.integrations["int-id"] = &models.Integration{
		ID:       "int-id",
		BrandID:  "brand-1",
		Provider: models.ProviderIdentity,
		Status:   models.IntegrationActive,
	}
	f.syncs.syncs["sync-id"] = &models.TableSync{
		ID:            "sync-id",
		IntegrationID: "int-id",
		ContactListID: "list-1",
	}

	svc := NewSyncService(f.integrations, f.syncs, jobs, 3)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, f
}

func TestSyncService_EnqueueSync(t *testing.T) {
	jobs := &mockJobEnqueuer{}
	svc, _ := newTestSyncService(jobs)
	syncID := "sync-1"

	job, err := svc.EnqueueSync(context.Background(), "int-1", &syncID)
	require.NoError(t, err)

	require.Len(t, jobs.jobs, 1)
	assert.Same(t, job, jobs.jobs[0])
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "int-1:sync-1:1700000000000:"+job.ID, job.JobKey)
	assert.Equal(t, models.TriggerManual, job.Trigger)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.ProviderTabular, job.Provider)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, 0, job.Attempts)
}

func TestSyncService_EnqueueSync_IdentityOmitsSyncID(t *testing.T) {
	jobs := &mockJobEnqueuer{}
	svc, _ := newTestSyncService(jobs)

	job, err := svc.EnqueueSync(context.Background(), "int-id", nil)
	require.NoError(t, err)

	assert.Nil(t, job.SyncID)
	assert.Equal(t, "int-id:default:1700000000000:"+job.ID, job.JobKey)
}

func TestSyncService_SameMillisecondEnqueuesGetDistinctKeys(t *testing.T) {
	jobs := &mockJobEnqueuer{}
	svc, f := newTestSyncService(jobs)
	syncID := "sync-1"

	manual, err := svc.EnqueueSync(context.Background(), "int-1", &syncID)
	require.NoError(t, err)
	scheduled, err := svc.EnqueueScheduled(context.Background(), f.integrations.integrations["int-1"], f.syncs.syncs["sync-1"])
	require.NoError(t, err)

	assert.NotEqual(t, manual.JobKey, scheduled.JobKey)
	assert.Equal(t, manual.CreatedAt, scheduled.CreatedAt)
}

func TestSyncService_EnqueueSync_MissingEmailMapping(t *testing.T) {
	jobs := &mockJobEnqueuer{}
	svc, f := newTestSyncService(jobs)
	f.syncs.syncs["sync-1"].Mapping = datatypes.NewJSONType(models.FieldMapping{})
	syncID := "sync-1"

	_, err := svc.EnqueueSync(context.Background(), "int-1", &syncID)
	require.Error(t, err)
	assert.True(t, syncerr.IsConfiguration(err))
	assert.Empty(t, jobs.jobs)
}

func TestSyncService_EnqueueSync_UnknownIntegration(t *testing.T) {
	svc, _ := newTestSyncService(&mockJobEnqueuer{})

	_, err := svc.EnqueueSync(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, repository.ErrIntegrationNotFound)
}

func TestSyncService_EnqueueSync_QueueError(t *testing.T) {
	svc, _ := newTestSyncService(&mockJobEnqueuer{err: errors.New("duplicate key")})
	syncID := "sync-1"

	job, err := svc.EnqueueSync(context.Background(), "int-1", &syncID)
	assert.Error(t, err)
	assert.Nil(t, job)
}

func TestSyncService_EnqueueScheduled(t *testing.T) {
	jobs := &mockJobEnqueuer{}
	svc, f := newTestSyncService(jobs)

	job, err := svc.EnqueueScheduled(context.Background(), f.integrations.integrations["int-1"], f.syncs.syncs["sync-1"])
	require.NoError(t, err)
	assert.Equal(t, models.TriggerScheduled, job.Trigger)
	require.NotNil(t, job.SyncID)
	assert.Equal(t, "sync-1", *job.SyncID)
}

func TestSyncService_GetLastResult(t *testing.T) {
	svc, f := newTestSyncService(&mockJobEnqueuer{})
	syncID := "sync-1"

	res, err := svc.GetLastResult(context.Background(), "int-1", &syncID)
	require.NoError(t, err)
	assert.Nil(t, res, "never completed")

	want := models.SyncResult{ImportedCount: 2, SkippedCount: 1, TotalCount: 3}
	r := datatypes.NewJSONType(want)
	f.syncs.syncs["sync-1"].LastSyncResult = &r

	res, err = svc.GetLastResult(context.Background(), "int-1", &syncID)
	require.NoError(t, err)
	assert.Equal(t, &want, res)
}

func TestSyncService_GetLastResult_NotFound(t *testing.T) {
	svc, _ := newTestSyncService(&mockJobEnqueuer{})
	syncID := "other"

	_, err := svc.GetLastResult(context.Background(), "int-1", &syncID)
	assert.ErrorIs(t, err, repository.ErrTableSyncNotFound)

	_, err = svc.GetLastResult(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, repository.ErrIntegrationNotFound)
}
