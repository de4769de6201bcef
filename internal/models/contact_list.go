package models

import "time"

type ContactList struct {
	ID           string    `gorm:"column:id;primaryKey"`
	BrandID      string    `gorm:"column:brand_id;index"`
	UserID       string    `gorm:"column:user_id"`
	Name         string    `gorm:"column:name"`
	Description  string    `gorm:"column:description"`
	ContactCount int64     `gorm:"column:contact_count"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (ContactList) TableName() string {
	return "contact_list"
}
