// Package services – MedicationService
//
// This file implements the MedicationService, which owns the lifecycle of
// medications, their doses and skip dates, and the inventory counters.
// Every state-changing operation writes exactly one audit ledger row inside
// the same transaction as the underlying change, so a failed ledger write
// aborts the business change and the ledger never diverges from the data.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
)

// MedicationService implements the use-cases around medications and their
// inventory. The zero value is not usable; construct with NewMedicationService.
type MedicationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now supplies the current instant; overridable in tests.
	Now func() time.Time
}

// NewMedicationService constructs a MedicationService using the wall clock.
func NewMedicationService(db *gorm.DB) *MedicationService {
	return &MedicationService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// DoseInput describes one scheduled daily administration.
type DoseInput struct {
	DoseAmount    float64 `json:"dose_amount"`
	TimeOfDay     string  `json:"time_of_day"`
	RouteOverride *uint   `json:"route_override,omitempty"`
	Instructions  string  `json:"instructions,omitempty"`
}

// MedicationInput carries the caller-supplied fields for create/update.
// Dates are wire-format strings so format validation lives here and not in
// every transport.
type MedicationInput struct {
	Name         string      `json:"name"`
	Strength     string      `json:"strength,omitempty"`
	RouteID      uint        `json:"route_id"`
	FrequencyID  uint        `json:"frequency_id"`
	StartDate    string      `json:"start_date"`
	EndDate      *string     `json:"end_date,omitempty"`
	SheetSize    int         `json:"sheet_size"`
	TotalTablets float64     `json:"total_tablets"`
	Notes        string      `json:"notes,omitempty"`
	Doses        []DoseInput `json:"doses,omitempty"`
}

// InventoryInput carries one of the three accepted inventory update modes.
// Exactly the first non-nil of TotalTablets, SheetCount, AddTablets is
// applied; supplying none is a validation error.
type InventoryInput struct {
	TotalTablets *float64 `json:"total_tablets,omitempty"`
	SheetCount   *int     `json:"sheet_count,omitempty"`
	AddTablets   *float64 `json:"add_tablets,omitempty"`
}

// DeleteResult reports whether a medication delete was applied as a hard
// delete (rows removed) or a soft delete (end date moved to yesterday).
type DeleteResult struct {
	MedicineID uint   `json:"medicine_id"`
	Mode       string `json:"mode"` // "hard" or "soft"
}

// Create validates the input, inserts the medication with its doses, and
// logs a CREATED ledger row, all in one transaction.
func (s *MedicationService) Create(ctx context.Context, in MedicationInput) (*domain.Medication, error) {
	m, err := s.buildMedication(in)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateMedication(ctx, tx, m); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: m.ID,
			Action:     domain.AuditCreated,
			NewValues:  domain.MustJSON(medicationSnapshot(m)),
			CreatedAt:  s.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns a medication with doses and skip dates.
func (s *MedicationService) Get(ctx context.Context, id uint) (*domain.Medication, error) {
	m, err := repo.GetMedication(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMedicationNotFound
	}
	return m, err
}

// List returns all medications ordered by name.
func (s *MedicationService) List(ctx context.Context) ([]domain.Medication, error) {
	return repo.ListMedications(ctx, s.DB)
}

// Update applies the input to an existing medication and logs an UPDATED
// ledger row carrying before/after snapshots. Doses are not touched here;
// use AddDose / RemoveDose.
func (s *MedicationService) Update(ctx context.Context, id uint, in MedicationInput) (*domain.Medication, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.buildMedication(in)
	if err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.TotalTablets = cur.TotalTablets // inventory changes go through UpdateInventory
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.Now()

	oldSnap := medicationSnapshot(cur)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SaveMedication(ctx, tx, next); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: cur.ID,
			Action:     domain.AuditUpdated,
			OldValues:  domain.MustJSON(oldSnap),
			NewValues:  domain.MustJSON(medicationSnapshot(next)),
			CreatedAt:  s.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	next.Doses, next.SkipDates = cur.Doses, cur.SkipDates
	return next, nil
}

// Delete removes a medication. If the medication's active window has fully
// elapsed it is hard-deleted (doses, skip dates, and notifications go with
// it); otherwise the end date is moved to yesterday so it becomes inactive
// without losing history. The result reports which path was taken.
func (s *MedicationService) Delete(ctx context.Context, id uint) (*DeleteResult, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	today := domain.DateOnly(now)
	oldSnap := medicationSnapshot(m)

	if m.ExpiredBy(today) {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.HardDeleteMedication(ctx, tx, id); err != nil {
				return err
			}
			return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
				MedicineID: id,
				Action:     domain.AuditDeleted,
				OldValues:  domain.MustJSON(oldSnap),
				NewValues:  domain.MustJSON(map[string]any{"mode": "hard"}),
				CreatedAt:  now,
			})
		})
		if err != nil {
			return nil, err
		}
		return &DeleteResult{MedicineID: id, Mode: "hard"}, nil
	}

	yesterday := today.AddDate(0, 0, -1)
	m.EndDate = &yesterday
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SaveMedication(ctx, tx, m); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: id,
			Action:     domain.AuditDeleted,
			OldValues:  domain.MustJSON(oldSnap),
			NewValues:  domain.MustJSON(map[string]any{"mode": "soft", "end_date": FormatDate(yesterday)}),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{MedicineID: id, Mode: "soft"}, nil
}

// UpdateInventory normalizes one of the three accepted input modes to an
// absolute tablet total and applies it, logging an INVENTORY_UPDATED row
// with the signed delta. A resulting negative total is rejected before any
// write.
func (s *MedicationService) UpdateInventory(ctx context.Context, id uint, in InventoryInput) (*domain.Medication, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var newTotal float64
	switch {
	case in.TotalTablets != nil:
		newTotal = *in.TotalTablets
	case in.SheetCount != nil:
		if *in.SheetCount < 0 {
			return nil, Validationf("sheet_count must not be negative")
		}
		newTotal = float64(*in.SheetCount) * float64(m.SheetSize)
	case in.AddTablets != nil:
		newTotal = m.TotalTablets + *in.AddTablets
	default:
		return nil, Validationf("one of total_tablets, sheet_count or add_tablets is required")
	}
	if newTotal < 0 {
		return nil, Validationf("inventory update would make total_tablets negative (%.2f)", newTotal)
	}

	oldTotal := m.TotalTablets
	delta := newTotal - oldTotal
	now := s.Now()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetTotalTablets(ctx, tx, id, newTotal); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID:     id,
			Action:         domain.AuditInventoryUpdated,
			OldValues:      domain.MustJSON(map[string]any{"total_tablets": oldTotal}),
			NewValues:      domain.MustJSON(map[string]any{"total_tablets": newTotal}),
			QuantityChange: &delta,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	m.TotalTablets = newTotal
	return m, nil
}

// RecordDoseGiven marks one scheduled dose as administered now: the dose
// amount is deducted from the inventory and a DOSE_GIVEN ledger row is
// written. The deduction is clamped at zero so the inventory invariant
// holds even when stock ran out; the ledger records the delta actually
// applied, keeping the quantity-change sum consistent.
func (s *MedicationService) RecordDoseGiven(ctx context.Context, medicineID, doseID uint) (*domain.Medication, error) {
	m, err := s.Get(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	var dose *domain.Dose
	for i := range m.Doses {
		if m.Doses[i].ID == doseID {
			dose = &m.Doses[i]
			break
		}
	}
	if dose == nil {
		return nil, ErrDoseNotFound
	}

	now := s.Now()
	applied := dose.DoseAmount
	if applied > m.TotalTablets {
		applied = m.TotalTablets
	}
	newTotal := m.TotalTablets - applied
	delta := -applied

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SetTotalTablets(ctx, tx, medicineID, newTotal); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: medicineID,
			Action:     domain.AuditDoseGiven,
			NewValues: domain.MustJSON(domain.DoseGivenRecord{
				DoseID:     doseID,
				DoseAmount: dose.DoseAmount,
				Timestamp:  now.Format(time.RFC3339),
			}),
			QuantityChange: &delta,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}
	m.TotalTablets = newTotal
	return m, nil
}

// AddDose attaches a new scheduled administration to a medication and logs
// an UPDATED ledger row with the dose snapshot.
func (s *MedicationService) AddDose(ctx context.Context, medicineID uint, in DoseInput) (*domain.Dose, error) {
	if _, err := s.Get(ctx, medicineID); err != nil {
		return nil, err
	}
	if err := validateDoseInput(in); err != nil {
		return nil, err
	}

	d := &domain.Dose{
		MedicineID:    medicineID,
		DoseAmount:    in.DoseAmount,
		TimeOfDay:     in.TimeOfDay,
		RouteOverride: in.RouteOverride,
		Instructions:  in.Instructions,
		CreatedAt:     s.Now(),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateDose(ctx, tx, d); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: medicineID,
			Action:     domain.AuditUpdated,
			NewValues:  domain.MustJSON(map[string]any{"dose_added": d}),
			CreatedAt:  s.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RemoveDose detaches a scheduled administration from a medication.
func (s *MedicationService) RemoveDose(ctx context.Context, medicineID, doseID uint) error {
	d, err := repo.GetDose(ctx, s.DB, doseID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrDoseNotFound
	}
	if err != nil {
		return err
	}
	if d.MedicineID != medicineID {
		return ErrDoseNotFound
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteDose(ctx, tx, doseID); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: medicineID,
			Action:     domain.AuditUpdated,
			OldValues:  domain.MustJSON(map[string]any{"dose_removed": d}),
			CreatedAt:  s.Now(),
		})
	})
}

// AddSkipDate registers a calendar date on which the medication's doses
// are suppressed. The date must lie within the medication's active range
// and must not already be registered.
func (s *MedicationService) AddSkipDate(ctx context.Context, medicineID uint, dateStr, reason string) (*domain.SkipDate, error) {
	m, err := s.Get(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	day, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	if !m.ActiveOn(day) {
		return nil, Validationf("skip date %s is outside the medication's date range", dateStr)
	}
	if m.SkipsOn(day) {
		return nil, Validationf("skip date %s already exists", dateStr)
	}

	sd := &domain.SkipDate{
		MedicineID: medicineID,
		SkipDate:   day,
		Reason:     reason,
		CreatedAt:  s.Now(),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateSkipDate(ctx, tx, sd); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: medicineID,
			Action:     domain.AuditSkipDateCreated,
			NewValues:  domain.MustJSON(map[string]any{"skip_date": dateStr, "reason": reason}),
			CreatedAt:  s.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return sd, nil
}

// RemoveSkipDate deletes a registered skip date.
func (s *MedicationService) RemoveSkipDate(ctx context.Context, medicineID, skipDateID uint) error {
	sd, err := repo.GetSkipDate(ctx, s.DB, skipDateID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSkipDateNotFound
	}
	if err != nil {
		return err
	}
	if sd.MedicineID != medicineID {
		return ErrSkipDateNotFound
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteSkipDate(ctx, tx, skipDateID); err != nil {
			return err
		}
		return repo.CreateAuditLog(ctx, tx, &domain.AuditLog{
			MedicineID: medicineID,
			Action:     domain.AuditSkipDateDeleted,
			OldValues:  domain.MustJSON(map[string]any{"skip_date": FormatDate(sd.SkipDate), "reason": sd.Reason}),
			CreatedAt:  s.Now(),
		})
	})
}

// AuditTrail returns a page of ledger rows for a medication.
func (s *MedicationService) AuditTrail(ctx context.Context, medicineID uint, sortBy string, desc bool, offset, limit int) ([]domain.AuditLog, int64, error) {
	if _, err := s.Get(ctx, medicineID); err != nil {
		return nil, 0, err
	}
	f := repo.AuditFilter{MedicineID: &medicineID}
	total, err := repo.CountAuditLogs(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	rows, err := repo.ListAuditLogsPage(ctx, s.DB, f, sortBy, desc, offset, limit)
	return rows, total, err
}

// buildMedication validates a MedicationInput and assembles the model.
func (s *MedicationService) buildMedication(in MedicationInput) (*domain.Medication, error) {
	if in.Name == "" {
		return nil, Validationf("name is required")
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return nil, err
	}
	var end *time.Time
	if in.EndDate != nil && *in.EndDate != "" {
		e, err := ParseDate(*in.EndDate)
		if err != nil {
			return nil, err
		}
		if e.Before(start) {
			return nil, Validationf("end_date must not be before start_date")
		}
		end = &e
	}
	if in.SheetSize <= 0 {
		return nil, Validationf("sheet_size must be greater than zero")
	}
	if in.TotalTablets < 0 {
		return nil, Validationf("total_tablets must not be negative")
	}
	for i, d := range in.Doses {
		if err := validateDoseInput(d); err != nil {
			return nil, Validationf("dose %d: %v", i+1, err)
		}
	}

	now := s.Now()
	m := &domain.Medication{
		Name:         in.Name,
		Strength:     in.Strength,
		RouteID:      in.RouteID,
		FrequencyID:  in.FrequencyID,
		StartDate:    start,
		EndDate:      end,
		SheetSize:    in.SheetSize,
		TotalTablets: in.TotalTablets,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, d := range in.Doses {
		m.Doses = append(m.Doses, domain.Dose{
			DoseAmount:    d.DoseAmount,
			TimeOfDay:     d.TimeOfDay,
			RouteOverride: d.RouteOverride,
			Instructions:  d.Instructions,
			CreatedAt:     now,
		})
	}
	return m, nil
}

func validateDoseInput(in DoseInput) error {
	if in.DoseAmount <= 0 {
		return Validationf("dose_amount must be greater than zero")
	}
	return ValidateTimeOfDay(in.TimeOfDay)
}

// medicationSnapshot is the before/after field set stored in ledger rows.
func medicationSnapshot(m *domain.Medication) map[string]any {
	snap := map[string]any{
		"name":          m.Name,
		"strength":      m.Strength,
		"route_id":      m.RouteID,
		"frequency_id":  m.FrequencyID,
		"start_date":    FormatDate(m.StartDate),
		"sheet_size":    m.SheetSize,
		"total_tablets": m.TotalTablets,
		"notes":         m.Notes,
	}
	if m.EndDate != nil {
		snap["end_date"] = FormatDate(*m.EndDate)
	}
	return snap
}
