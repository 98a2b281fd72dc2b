// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Medication and Dose models.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

// CreateMedication inserts a new medication row.
func CreateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) error {
	return db.WithContext(ctx).Create(m).Error
}

// GetMedication fetches a medication by ID with its doses and skip dates,
// or ErrNotFound if missing.
func GetMedication(ctx context.Context, db *gorm.DB, id uint) (*domain.Medication, error) {
	var m domain.Medication
	err := db.WithContext(ctx).
		Preload("Doses", func(q *gorm.DB) *gorm.DB { return q.Order("time_of_day ASC, id ASC") }).
		Preload("SkipDates").
		First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMedications returns all medications ordered by name (then ID for
// stability between equal names).
func ListMedications(ctx context.Context, db *gorm.DB) ([]domain.Medication, error) {
	var out []domain.Medication
	err := db.WithContext(ctx).
		Preload("Doses", func(q *gorm.DB) *gorm.DB { return q.Order("time_of_day ASC, id ASC") }).
		Preload("SkipDates").
		Order("name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListActiveMedications returns medications whose date range covers day,
// ordered by name. Skip dates are not applied here; callers filter them.
func ListActiveMedications(ctx context.Context, db *gorm.DB, day time.Time) ([]domain.Medication, error) {
	d := domain.DateOnly(day)
	var out []domain.Medication
	err := db.WithContext(ctx).
		Preload("Doses", func(q *gorm.DB) *gorm.DB { return q.Order("time_of_day ASC, id ASC") }).
		Preload("SkipDates").
		Where("start_date <= ? AND (end_date IS NULL OR end_date >= ?)", d, d).
		Order("name ASC, id ASC").
		Find(&out).Error
	return out, err
}

// SaveMedication persists all fields of an existing medication row.
func SaveMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) error {
	return db.WithContext(ctx).Model(&domain.Medication{}).
		Where("id = ?", m.ID).
		Select("name", "strength", "route_id", "frequency_id", "start_date",
			"end_date", "sheet_size", "total_tablets", "notes", "updated_at").
		Updates(m).Error
}

// SetTotalTablets updates only the inventory counter of a medication.
func SetTotalTablets(ctx context.Context, db *gorm.DB, id uint, total float64) error {
	return db.WithContext(ctx).Model(&domain.Medication{}).
		Where("id = ?", id).
		Update("total_tablets", total).Error
}

// HardDeleteMedication removes a medication row. Doses and skip dates
// cascade via their FK constraints; notifications referencing the
// medication are removed explicitly so no orphan alerts remain.
func HardDeleteMedication(ctx context.Context, db *gorm.DB, id uint) error {
	if err := db.WithContext(ctx).Where("medicine_id = ?", id).Delete(&domain.Dose{}).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Where("medicine_id = ?", id).Delete(&domain.SkipDate{}).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Where("medicine_id = ?", id).Delete(&domain.Notification{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Delete(&domain.Medication{}, "id = ?", id).Error
}

// CreateDose inserts a new dose row for a medication.
func CreateDose(ctx context.Context, db *gorm.DB, d *domain.Dose) error {
	return db.WithContext(ctx).Create(d).Error
}

// GetDose fetches a dose by ID, or ErrNotFound if missing.
func GetDose(ctx context.Context, db *gorm.DB, id uint) (*domain.Dose, error) {
	var d domain.Dose
	if err := db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListDoses returns a medication's doses ordered by time of day.
func ListDoses(ctx context.Context, db *gorm.DB, medicineID uint) ([]domain.Dose, error) {
	var out []domain.Dose
	err := db.WithContext(ctx).
		Where("medicine_id = ?", medicineID).
		Order("time_of_day ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteDose removes one dose row.
func DeleteDose(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Delete(&domain.Dose{}, "id = ?", id).Error
}
