package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"gorm.io/gorm"
)

var ErrIntegrationNotFound = errors.New("integration not found")

type IntegrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// GetByID retrieves integration by ID
func (r *IntegrationRepository) GetByID(ctx context.Context, integrationID string) (*models.Integration, error) {
	var integration models.Integration
	result := r.db.WithContext(ctx).First(&integration, "id = ?", integrationID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration: %w", result.Error)
	}
	return &integration, nil
}

// ListActiveByProvider retrieves every active integration of one provider type
func (r *IntegrationRepository) ListActiveByProvider(ctx context.Context, provider models.ProviderType) ([]models.Integration, error) {
	var integrations []models.Integration
	result := r.db.WithContext(ctx).
		Where("provider = ? AND status = ?", provider, models.IntegrationActive).
		Order("created_at ASC").
		Find(&integrations)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query active integrations: %w", result.Error)
	}
	return integrations, nil
}
