package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"gorm.io/gorm"
)

var ErrContactListNotFound = errors.New("contact list not found")

type ContactListRepository struct {
	db *gorm.DB
}

func NewContactListRepository(db *gorm.DB) *ContactListRepository {
	return &ContactListRepository{db: db}
}

// GetForBrand retrieves a contact list only if it belongs to the given brand
func (r *ContactListRepository) GetForBrand(ctx context.Context, listID, brandID string) (*models.ContactList, error) {
	var list models.ContactList
	result := r.db.WithContext(ctx).
		Where("id = ? AND brand_id = ?", listID, brandID).
		First(&list)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrContactListNotFound
		}
		return nil, fmt.Errorf("failed to get contact list: %w", result.Error)
	}
	return &list, nil
}

// UpdateContactCount overwrites the cached size with a freshly counted value
func (r *ContactListRepository) UpdateContactCount(ctx context.Context, listID string, count int64) error {
	result := r.db.WithContext(ctx).Model(&models.ContactList{}).
		Where("id = ?", listID).
		Updates(map[string]interface{}{
			"contact_count": count,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update contact count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrContactListNotFound
	}
	return nil
}
