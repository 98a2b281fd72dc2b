// Package repo – notification persistence.
//
// Notifications are created exclusively through CreateNotificationIfAbsent,
// which makes the dedup check and the insert a single transactional step so
// two overlapping rule evaluations cannot both insert the same alert.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

// NotificationFilter narrows List/Count queries. Zero values mean "no
// constraint" for each field.
type NotificationFilter struct {
	MedicineID *uint
	Type       string
	IsRead     *bool
	Since      time.Time
	Until      time.Time
}

func (f NotificationFilter) apply(q *gorm.DB) *gorm.DB {
	if f.MedicineID != nil {
		q = q.Where("medicine_id = ?", *f.MedicineID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.IsRead != nil {
		q = q.Where("is_read = ?", *f.IsRead)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until)
	}
	return q
}

// CreateNotificationIfAbsent inserts n unless a notification of the same
// type for the same medication already exists with CreatedAt >= since.
// When doseID is non-nil the existing candidates are additionally matched
// against the dose_id in their payload, implementing the one-per-dose
// dedup of DOSE_DUE / MISSED_DOSE.
//
// The existence check and the insert run in one transaction, so duplicate
// suppression holds even when two job ticks evaluate the same rule
// concurrently. Returns true when a row was inserted, false on a dedup hit.
func CreateNotificationIfAbsent(ctx context.Context, db *gorm.DB, n *domain.Notification, since time.Time, doseID *uint) (bool, error) {
	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.Notification
		q := tx.Where("type = ? AND created_at >= ?", n.Type, since)
		if n.MedicineID != nil {
			q = q.Where("medicine_id = ?", *n.MedicineID)
		} else {
			q = q.Where("medicine_id IS NULL")
		}
		if err := q.Find(&existing).Error; err != nil {
			return err
		}
		for i := range existing {
			if doseID == nil || payloadDoseID(existing[i].Payload) == *doseID {
				return nil // dedup hit, leave created=false
			}
		}
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// payloadDoseID extracts the dose_id field from a notification payload,
// returning 0 when absent or malformed.
func payloadDoseID(raw json.RawMessage) uint {
	if len(raw) == 0 {
		return 0
	}
	var p struct {
		DoseID uint `json:"dose_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0
	}
	return p.DoseID
}

// GetNotification fetches a notification by ID, or ErrNotFound if missing.
func GetNotification(ctx context.Context, db *gorm.DB, id uint) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CountNotifications returns the number of rows matching the filter.
func CountNotifications(ctx context.Context, db *gorm.DB, f NotificationFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Notification{})).Count(&total).Error
	return total, err
}

// ListNotificationsPage returns a page of notifications matching the
// filter, newest first (CreatedAt DESC, ID DESC for stability).
func ListNotificationsPage(ctx context.Context, db *gorm.DB, f NotificationFilter, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := f.apply(db.WithContext(ctx).Model(&domain.Notification{})).
		Order("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkNotificationRead flips IsRead on a single row, reporting how many
// rows were affected so callers can distinguish missing IDs.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id uint) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkNotificationsRead flips IsRead on a set of rows.
func MarkNotificationsRead(ctx context.Context, db *gorm.DB, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id IN ?", ids).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkAllReadForMedication flips IsRead on every unread notification of a
// medication.
func MarkAllReadForMedication(ctx context.Context, db *gorm.DB, medicineID uint) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("medicine_id = ? AND is_read = ?", medicineID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// DeleteNotification removes one notification row, reporting affected rows.
func DeleteNotification(ctx context.Context, db *gorm.DB, id uint) (int64, error) {
	res := db.WithContext(ctx).Delete(&domain.Notification{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// DeleteNotificationsBefore removes notifications created before cutoff,
// returning the number of purged rows.
func DeleteNotificationsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
