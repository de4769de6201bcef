package models

import (
	"strings"
	"time"
)

type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactInactive     ContactStatus = "inactive"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
)

// Contact is the canonical contact row. (email, list_id) is unique.
type Contact struct {
	ID        string        `gorm:"column:id;primaryKey"`
	Email     string        `gorm:"column:email;uniqueIndex:contact_email_list_key"`
	ListID    string        `gorm:"column:list_id;uniqueIndex:contact_email_list_key;index"`
	BrandID   string        `gorm:"column:brand_id;index"`
	UserID    string        `gorm:"column:user_id"`
	FirstName string        `gorm:"column:first_name"`
	LastName  string        `gorm:"column:last_name"`
	Phone     string        `gorm:"column:phone"`
	Status    ContactStatus `gorm:"column:status"`
	Source    ProviderType  `gorm:"column:source"`
	CreatedAt time.Time     `gorm:"column:created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Contact) TableName() string {
	return "contact"
}

// NormalizeEmail trims and lowercases an address for use as a dedup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContactUpsert is one create-or-update keyed by (Email, ListID).
// Mapped fields are written on both insert and update; status is written on insert
// and, on update, only when ForceStatus is set.
type ContactUpsert struct {
	Email       string
	ListID      string
	BrandID     string
	UserID      string
	FirstName   string
	LastName    string
	Phone       string
	Source      ProviderType
	ForceStatus *ContactStatus
}

// InsertStatus is the status a newly created row receives.
func (u ContactUpsert) InsertStatus() ContactStatus {
	if u.ForceStatus != nil {
		return *u.ForceStatus
	}
	return ContactActive
}

// BulkUpsertResult reports what one bulk upsert did.
// Upserted + Modified + Unchanged equals the number of operations submitted.
type BulkUpsertResult struct {
	Upserted  int
	Modified  int
	Unchanged int
}
