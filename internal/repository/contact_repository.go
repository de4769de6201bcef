package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terencetsy/maillayer-contactsync/internal/models"
	"gorm.io/gorm"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const upsertColumns = `id, email, list_id, brand_id, user_id, first_name, last_name, phone, status, source, created_at, updated_at`

// Rows whose mapped fields already match are left alone, so RETURNING only
// yields inserted and modified rows. xmax = 0 identifies a fresh insert.
const upsertFieldsConflict = `
	ON CONFLICT (email, list_id) DO UPDATE
	SET first_name = EXCLUDED.first_name,
	    last_name  = EXCLUDED.last_name,
	    phone      = EXCLUDED.phone,
	    updated_at = EXCLUDED.updated_at
	WHERE (contact.first_name, contact.last_name, contact.phone)
	      IS DISTINCT FROM (EXCLUDED.first_name, EXCLUDED.last_name, EXCLUDED.phone)
	RETURNING (xmax = 0) AS inserted`

const upsertWithStatusConflict = `
	ON CONFLICT (email, list_id) DO UPDATE
	SET first_name = EXCLUDED.first_name,
	    last_name  = EXCLUDED.last_name,
	    phone      = EXCLUDED.phone,
	    status     = EXCLUDED.status,
	    updated_at = EXCLUDED.updated_at
	WHERE (contact.first_name, contact.last_name, contact.phone, contact.status)
	      IS DISTINCT FROM (EXCLUDED.first_name, EXCLUDED.last_name, EXCLUDED.phone, EXCLUDED.status)
	RETURNING (xmax = 0) AS inserted`

type upsertRow struct {
	Inserted bool `gorm:"column:inserted"`
}

// BulkUpsert applies one batch of create-or-update operations in a single transaction.
// Repeated (email, list) keys collapse to the last occurrence; the earlier ones are reported as unchanged.
// Status is only written on update for operations carrying ForceStatus.
func (r *ContactRepository) BulkUpsert(ctx context.Context, ops []models.ContactUpsert) (models.BulkUpsertResult, error) {
	var res models.BulkUpsertResult
	if len(ops) == 0 {
		return res, nil
	}

	unique := dedupeUpserts(ops)
	res.Unchanged = len(ops) - len(unique)

	var plain, forced []models.ContactUpsert
	for _, op := range unique {
		if op.ForceStatus != nil {
			forced = append(forced, op)
		} else {
			plain = append(plain, op)
		}
	}

	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range []struct {
			ops      []models.ContactUpsert
			conflict string
		}{
			{plain, upsertFieldsConflict},
			{forced, upsertWithStatusConflict},
		} {
			if len(group.ops) == 0 {
				continue
			}

			query, args := buildUpsert(group.ops, group.conflict, now)
			var rows []upsertRow
			if err := tx.Raw(query, args...).Scan(&rows).Error; err != nil {
				return err
			}

			for _, row := range rows {
				if row.Inserted {
					res.Upserted++
				} else {
					res.Modified++
				}
			}
			res.Unchanged += len(group.ops) - len(rows)
		}
		return nil
	})
	if err != nil {
		return models.BulkUpsertResult{}, fmt.Errorf("failed to bulk upsert contacts: %w", err)
	}

	return res, nil
}

// CountByList returns the exact number of contacts stored for a list
func (r *ContactRepository) CountByList(ctx context.Context, listID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Contact{}).
		Where("list_id = ?", listID).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", result.Error)
	}
	return count, nil
}

func dedupeUpserts(ops []models.ContactUpsert) []models.ContactUpsert {
	last := make(map[string]int, len(ops))
	for i, op := range ops {
		last[op.ListID+"\x00"+op.Email] = i
	}
	if len(last) == len(ops) {
		return ops
	}

	unique := make([]models.ContactUpsert, 0, len(last))
	for i, op := range ops {
		if last[op.ListID+"\x00"+op.Email] == i {
			unique = append(unique, op)
		}
	}
	return unique
}

func buildUpsert(ops []models.ContactUpsert, conflict string, now time.Time) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO contact (")
	sb.WriteString(upsertColumns)
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(ops)*12)
	for i, op := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			uuid.NewString(),
			op.Email,
			op.ListID,
			op.BrandID,
			op.UserID,
			op.FirstName,
			op.LastName,
			op.Phone,
			string(op.InsertStatus()),
			string(op.Source),
			now,
			now,
		)
	}
	sb.WriteString(conflict)

	return sb.String(), args
}
