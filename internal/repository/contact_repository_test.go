package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
)

func TestDedupeUpserts(t *testing.T) {
	ops := []models.ContactUpsert{
		{Email: "a@x.com", ListID: "l1", FirstName: "Old"},
		{Email: "b@x.com", ListID: "l1"},
		{Email: "a@x.com", ListID: "l1", FirstName: "New"},
		{Email: "a@x.com", ListID: "l2"},
	}

	unique := dedupeUpserts(ops)

	require.Len(t, unique, 3)
	assert.Equal(t, "b@x.com", unique[0].Email)
	assert.Equal(t, "New", unique[1].FirstName)
	assert.Equal(t, "l2", unique[2].ListID)
}

func TestDedupeUpserts_NoDuplicatesReturnsInput(t *testing.T) {
	ops := []models.ContactUpsert{{Email: "a@x.com", ListID: "l1"}, {Email: "b@x.com", ListID: "l1"}}
	assert.Equal(t, ops, dedupeUpserts(ops))
}

func TestBuildUpsert(t *testing.T) {
	inactive := models.ContactInactive
	ops := []models.ContactUpsert{
		{Email: "a@x.com", ListID: "l1", BrandID: "b1", UserID: "u1", FirstName: "Ada", Source: models.ProviderIdentity},
		{Email: "c@x.com", ListID: "l1", BrandID: "b1", UserID: "u1", Source: models.ProviderIdentity, ForceStatus: &inactive},
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	query, args := buildUpsert(ops, upsertWithStatusConflict, now)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO contact ("+upsertColumns+") VALUES "))
	assert.Equal(t, 2, strings.Count(query, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	assert.Contains(t, query, "ON CONFLICT (email, list_id) DO UPDATE")
	assert.Contains(t, query, "status     = EXCLUDED.status")

	require.Len(t, args, 24)
	assert.Equal(t, "a@x.com", args[1])
	assert.Equal(t, "Ada", args[5])
	assert.Equal(t, "active", args[8])
	assert.Equal(t, "identity", args[9])
	assert.Equal(t, now, args[10])
	assert.Equal(t, "inactive", args[20])
}

func TestUpsertFieldsConflictLeavesStatusAlone(t *testing.T) {
	assert.NotContains(t, upsertFieldsConflict, "status")
}
