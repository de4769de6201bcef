package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrTableSyncNotFound = errors.New("table sync not found")

type TableSyncRepository struct {
	db *gorm.DB
}

func NewTableSyncRepository(db *gorm.DB) *TableSyncRepository {
	return &TableSyncRepository{db: db}
}

// GetByID retrieves a table sync scoped to its integration
func (r *TableSyncRepository) GetByID(ctx context.Context, integrationID, syncID string) (*models.TableSync, error) {
	var sync models.TableSync
	result := r.db.WithContext(ctx).
		Where("id = ? AND integration_id = ?", syncID, integrationID).
		First(&sync)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTableSyncNotFound
		}
		return nil, fmt.Errorf("failed to get table sync: %w", result.Error)
	}
	return &sync, nil
}

// GetImplicit retrieves the single sync of an integration addressed without a sync ID
func (r *TableSyncRepository) GetImplicit(ctx context.Context, integrationID string) (*models.TableSync, error) {
	var sync models.TableSync
	result := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at ASC").
		First(&sync)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTableSyncNotFound
		}
		return nil, fmt.Errorf("failed to get implicit table sync: %w", result.Error)
	}
	return &sync, nil
}

// ListByIntegration retrieves all syncs configured on an integration
func (r *TableSyncRepository) ListByIntegration(ctx context.Context, integrationID string) ([]models.TableSync, error) {
	var syncs []models.TableSync
	result := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at ASC").
		Find(&syncs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query table syncs: %w", result.Error)
	}
	return syncs, nil
}

// MarkSyncing flags a sync as running without touching its last result
func (r *TableSyncRepository) MarkSyncing(ctx context.Context, syncID string) error {
	return r.updateStatus(ctx, syncID, map[string]interface{}{
		"status":     models.TableSyncSyncing,
		"updated_at": time.Now(),
	})
}

// SaveResult records a completed run: result, lastSyncedAt, status synced
func (r *TableSyncRepository) SaveResult(ctx context.Context, syncID string, res models.SyncResult, syncedAt time.Time) error {
	return r.updateStatus(ctx, syncID, map[string]interface{}{
		"last_sync_result": datatypes.NewJSONType(res),
		"last_synced_at":   syncedAt,
		"status":           models.TableSyncSynced,
		"last_error":       nil,
		"updated_at":       time.Now(),
	})
}

// MarkError records a failed run. lastSyncResult and lastSyncedAt are left as they were.
func (r *TableSyncRepository) MarkError(ctx context.Context, syncID string, message string) error {
	return r.updateStatus(ctx, syncID, map[string]interface{}{
		"status":     models.TableSyncError,
		"last_error": message,
		"updated_at": time.Now(),
	})
}

func (r *TableSyncRepository) updateStatus(ctx context.Context, syncID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.TableSync{}).
		Where("id = ?", syncID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update table sync: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTableSyncNotFound
	}
	return nil
}
