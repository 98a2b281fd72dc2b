package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

// CreateSkipDate inserts a skip-date row. The (medicine_id, skip_date)
// unique index turns concurrent duplicates into a constraint error.
func CreateSkipDate(ctx context.Context, db *gorm.DB, s *domain.SkipDate) error {
	s.SkipDate = domain.DateOnly(s.SkipDate)
	return db.WithContext(ctx).Create(s).Error
}

// GetSkipDate fetches a skip date by ID, or ErrNotFound if missing.
func GetSkipDate(ctx context.Context, db *gorm.DB, id uint) (*domain.SkipDate, error) {
	var s domain.SkipDate
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListSkipDates returns a medication's skip dates in ascending date order.
func ListSkipDates(ctx context.Context, db *gorm.DB, medicineID uint) ([]domain.SkipDate, error) {
	var out []domain.SkipDate
	err := db.WithContext(ctx).
		Where("medicine_id = ?", medicineID).
		Order("skip_date ASC").
		Find(&out).Error
	return out, err
}

// HasSkipDate reports whether a medication skips the given day.
func HasSkipDate(ctx context.Context, db *gorm.DB, medicineID uint, day time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.SkipDate{}).
		Where("medicine_id = ? AND skip_date = ?", medicineID, domain.DateOnly(day)).
		Count(&n).Error
	return n > 0, err
}

// DeleteSkipDate removes one skip-date row.
func DeleteSkipDate(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Delete(&domain.SkipDate{}, "id = ?", id).Error
}
