// Package repo – audit ledger persistence.
//
// The ledger is append-only: rows are inserted inside the same transaction
// as the business change they describe and are never updated. The only
// delete path is retention cleanup.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

// AuditFilter narrows audit queries. Zero values mean "no constraint".
type AuditFilter struct {
	MedicineID *uint
	Action     string
	Since      time.Time
	Until      time.Time
}

// Sort keys accepted by ListAuditLogsPage.
const (
	AuditSortCreatedAt      = "created_at"
	AuditSortAction         = "action"
	AuditSortQuantityChange = "quantity_change"
)

func (f AuditFilter) apply(q *gorm.DB) *gorm.DB {
	if f.MedicineID != nil {
		q = q.Where("medicine_id = ?", *f.MedicineID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until)
	}
	return q
}

// CreateAuditLog appends one ledger row.
func CreateAuditLog(ctx context.Context, db *gorm.DB, a *domain.AuditLog) error {
	return db.WithContext(ctx).Create(a).Error
}

// CountAuditLogs returns the number of ledger rows matching the filter.
func CountAuditLogs(ctx context.Context, db *gorm.DB, f AuditFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.AuditLog{})).Count(&total).Error
	return total, err
}

// ListAuditLogsPage returns a page of ledger rows. sortBy must be one of
// the AuditSort* keys (anything else falls back to created_at); desc
// reverses the order. ID is always the tiebreaker so pages are stable.
func ListAuditLogsPage(ctx context.Context, db *gorm.DB, f AuditFilter, sortBy string, desc bool, offset, limit int) ([]domain.AuditLog, error) {
	switch sortBy {
	case AuditSortAction, AuditSortQuantityChange, AuditSortCreatedAt:
	default:
		sortBy = AuditSortCreatedAt
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	var out []domain.AuditLog
	q := f.apply(db.WithContext(ctx).Model(&domain.AuditLog{})).
		Order(sortBy + " " + dir + ", id " + dir).
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// SumQuantityChange returns the signed sum of quantity_change for a
// medication. For a consistent ledger this equals the medication's current
// TotalTablets minus the TotalTablets it was created with.
func SumQuantityChange(ctx context.Context, db *gorm.DB, medicineID uint) (float64, error) {
	var sum float64
	err := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("medicine_id = ?", medicineID).
		Select("COALESCE(SUM(quantity_change), 0)").
		Scan(&sum).Error
	return sum, err
}

// DoseGivenIDs returns the set of dose IDs that have a DOSE_GIVEN ledger
// row for a medication on the given calendar day. Payloads are decoded in
// Go rather than with SQL JSON functions so the query stays portable
// across drivers.
func DoseGivenIDs(ctx context.Context, db *gorm.DB, medicineID uint, day time.Time) (map[uint]bool, error) {
	start := domain.DateOnly(day)
	end := start.Add(24 * time.Hour)

	var rows []domain.AuditLog
	err := db.WithContext(ctx).
		Where("medicine_id = ? AND action = ? AND created_at >= ? AND created_at < ?",
			medicineID, domain.AuditDoseGiven, start, end).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	given := make(map[uint]bool, len(rows))
	for i := range rows {
		var rec domain.DoseGivenRecord
		if json.Unmarshal(rows[i].NewValues, &rec) == nil && rec.DoseID != 0 {
			given[rec.DoseID] = true
		}
	}
	return given, nil
}

// DeleteAuditLogsBefore removes ledger rows created before cutoff,
// returning the number of purged rows. Retention cleanup only; nothing
// else may delete from the ledger.
func DeleteAuditLogsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.AuditLog{})
	return res.RowsAffected, res.Error
}
