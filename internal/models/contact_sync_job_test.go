package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestBuildJobKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	syncID := "sync-1"

	assert.Equal(t, "int-1:sync-1:1700000000123:job-a", BuildJobKey("int-1", &syncID, at, "job-a"))
	assert.Equal(t, "int-1:default:1700000000123:job-a", BuildJobKey("int-1", nil, at, "job-a"))

	// Unique per enqueue, not per logical sync, even within one millisecond.
	assert.NotEqual(t, BuildJobKey("int-1", &syncID, at, "job-a"), BuildJobKey("int-1", &syncID, at, "job-b"))
}

func TestContactSyncJob_SyncKey(t *testing.T) {
	syncID := "sync-1"
	job := ContactSyncJob{IntegrationID: "int-1", SyncID: &syncID}
	assert.Equal(t, "int-1:sync-1", job.SyncKey())

	job.SyncID = nil
	assert.Equal(t, "int-1:default", job.SyncKey())
}

func TestContactSyncJob_CanRetry(t *testing.T) {
	job := ContactSyncJob{Attempts: 2, MaxAttempts: 3}
	assert.True(t, job.CanRetry())

	job.Attempts = 3
	assert.False(t, job.CanRetry())
}

func TestTableSync_EffectiveMapping(t *testing.T) {
	s := TableSync{Mapping: datatypes.NewJSONType(FieldMapping{})}
	assert.Equal(t, IdentityMapping, s.EffectiveMapping(ProviderIdentity))
	assert.Equal(t, FieldMapping{}, s.EffectiveMapping(ProviderTabular))

	custom := FieldMapping{Email: "Email Address", FirstName: "First"}
	s.Mapping = datatypes.NewJSONType(custom)
	assert.Equal(t, custom, s.EffectiveMapping(ProviderIdentity))
	assert.Equal(t, custom, s.EffectiveMapping(ProviderTabular))
}

func TestTableSync_Result(t *testing.T) {
	s := TableSync{}
	assert.Nil(t, s.Result())

	r := datatypes.NewJSONType(SyncResult{ImportedCount: 2, SkippedCount: 1, TotalCount: 3})
	s.LastSyncResult = &r
	assert.Equal(t, &SyncResult{ImportedCount: 2, SkippedCount: 1, TotalCount: 3}, s.Result())
}

func TestContactUpsert_InsertStatus(t *testing.T) {
	u := ContactUpsert{}
	assert.Equal(t, ContactActive, u.InsertStatus())

	inactive := ContactInactive
	u.ForceStatus = &inactive
	assert.Equal(t, ContactInactive, u.InsertStatus())
}
