package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type TableSyncStatus string

const (
	TableSyncIdle    TableSyncStatus = "idle"
	TableSyncSyncing TableSyncStatus = "syncing"
	TableSyncSynced  TableSyncStatus = "synced"
	TableSyncError   TableSyncStatus = "error"
)

// FieldMapping maps canonical contact fields to source column names.
// Email is mandatory; the rest are optional.
type FieldMapping struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// HasEmail reports whether the mapping names a source column for email.
func (m FieldMapping) HasEmail() bool {
	return strings.TrimSpace(m.Email) != ""
}

// IdentityMapping is the implicit mapping of identity-provider syncs,
// keyed by the record fields the identity connector emits.
var IdentityMapping = FieldMapping{
	Email:     "email",
	FirstName: "firstName",
	LastName:  "lastName",
	Phone:     "phoneNumber",
}

// SourceRef identifies the external table a sync reads.
// Which fields apply depends on the integration's provider.
type SourceRef struct {
	// tabular
	BaseID string `json:"baseId,omitempty"`
	Table  string `json:"table,omitempty"` // tabular table id/name, relational table name

	// spreadsheet
	SpreadsheetID string `json:"spreadsheetId,omitempty"`
	SheetName     string `json:"sheetName,omitempty"`
	SheetID       *int64 `json:"sheetId,omitempty"`
	HeaderRow     int    `json:"headerRow,omitempty"` // 1-based, 0 means 1
	SkipHeader    bool   `json:"skipHeader,omitempty"`
}

// SyncResult is the outcome of the last completed run.
type SyncResult struct {
	ImportedCount int `json:"importedCount"`
	UpdatedCount  int `json:"updatedCount"`
	SkippedCount  int `json:"skippedCount"`
	TotalCount    int `json:"totalCount"`
}

// TableSync maps one external table/sheet/base/query to one contact list.
type TableSync struct {
	ID             string                           `gorm:"column:id;primaryKey"`
	IntegrationID  string                           `gorm:"column:integration_id;index"`
	Name           string                           `gorm:"column:name"`
	Source         datatypes.JSONType[SourceRef]    `gorm:"column:source;type:jsonb"`
	Mapping        datatypes.JSONType[FieldMapping] `gorm:"column:mapping;type:jsonb"`
	ContactListID  string                           `gorm:"column:contact_list_id"`
	AutoSync       bool                             `gorm:"column:auto_sync"`
	LastSyncedAt   *time.Time                       `gorm:"column:last_synced_at"`
	LastSyncResult *datatypes.JSONType[SyncResult]  `gorm:"column:last_sync_result;type:jsonb"`
	Status         TableSyncStatus                  `gorm:"column:status"`
	LastError      *string                          `gorm:"column:last_error"`
	CreatedAt      time.Time                        `gorm:"column:created_at"`
	UpdatedAt      time.Time                        `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (TableSync) TableName() string {
	return "table_sync"
}

// Result returns the last result, or nil when the sync never completed.
func (s *TableSync) Result() *SyncResult {
	if s.LastSyncResult == nil {
		return nil
	}
	r := s.LastSyncResult.Data()
	return &r
}

// EffectiveMapping returns the identity mapping for identity syncs and the stored mapping otherwise.
func (s *TableSync) EffectiveMapping(provider ProviderType) FieldMapping {
	if provider == ProviderIdentity && !s.Mapping.Data().HasEmail() {
		return IdentityMapping
	}
	return s.Mapping.Data()
}
