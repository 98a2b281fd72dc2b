// Package domain defines the persistence models for medications, doses,
// skip dates, notifications, and the audit ledger. These types are mapped
// with GORM and form the core data layer of the medication tracker.
package domain

import (
	"encoding/json"
	"time"
)

// Notification types emitted by the rule engine.
const (
	NotificationBuySoon    = "BUY_SOON"
	NotificationDoseDue    = "DOSE_DUE"
	NotificationMissedDose = "MISSED_DOSE"
)

// Audit actions recorded in the ledger. One row per state-changing action.
const (
	AuditCreated          = "CREATED"
	AuditUpdated          = "UPDATED"
	AuditDeleted          = "DELETED"
	AuditDoseGiven        = "DOSE_GIVEN"
	AuditInventoryUpdated = "INVENTORY_UPDATED"
	AuditSkipDateCreated  = "SKIP_DATE_CREATED"
	AuditSkipDateDeleted  = "SKIP_DATE_DELETED"
)

// Medication represents one recurring medication with its inventory counters.
// A medication is "active" on a given day when that day falls within
// [StartDate, EndDate]; a nil EndDate means open-ended. Soft deletion is
// modeled by setting EndDate to yesterday so history is retained.
//
// Fields:
//   - SheetSize: tablets per physical sheet (> 0), used to convert
//     sheet-count inventory input to tablets.
//   - TotalTablets: current inventory level; never negative.
type Medication struct {
	ID           uint       `json:"id"            gorm:"primaryKey"`
	Name         string     `json:"name"          gorm:"type:varchar(255);not null;index"`
	Strength     string     `json:"strength,omitempty" gorm:"type:varchar(64)"`
	RouteID      uint       `json:"route_id"`
	FrequencyID  uint       `json:"frequency_id"`
	StartDate    time.Time  `json:"start_date"    gorm:"not null;index"`
	EndDate      *time.Time `json:"end_date,omitempty" gorm:"index"`
	SheetSize    int        `json:"sheet_size"    gorm:"not null;default:10;check:sheet_size > 0"`
	TotalTablets float64    `json:"total_tablets" gorm:"not null;default:0;check:total_tablets >= 0"`
	Notes        string     `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Doses     []Dose     `json:"doses,omitempty"      gorm:"foreignKey:MedicineID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	SkipDates []SkipDate `json:"skip_dates,omitempty" gorm:"foreignKey:MedicineID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Medication.
func (Medication) TableName() string { return "medications" }

// ActiveOn reports whether the medication is active on the given calendar
// day (StartDate <= day <= EndDate, EndDate inclusive and optional).
func (m *Medication) ActiveOn(day time.Time) bool {
	d := DateOnly(day)
	if d.Before(DateOnly(m.StartDate)) {
		return false
	}
	if m.EndDate != nil && d.After(DateOnly(*m.EndDate)) {
		return false
	}
	return true
}

// ExpiredBy reports whether the medication's full active window lies
// strictly before the given day, i.e. it can be hard-deleted without
// losing a still-relevant schedule.
func (m *Medication) ExpiredBy(day time.Time) bool {
	return m.EndDate != nil && DateOnly(*m.EndDate).Before(DateOnly(day))
}

// DailyConsumption sums the dose amounts of all loaded doses, i.e. tablets
// consumed per fully-taken day.
func (m *Medication) DailyConsumption() float64 {
	var total float64
	for _, d := range m.Doses {
		total += d.DoseAmount
	}
	return total
}

// SkipsOn reports whether day is in the medication's loaded skip-date set.
func (m *Medication) SkipsOn(day time.Time) bool {
	d := DateOnly(day)
	for _, s := range m.SkipDates {
		if DateOnly(s.SkipDate).Equal(d) {
			return true
		}
	}
	return false
}

// Dose is one scheduled administration per day for its medication, at a
// fixed wall-clock time. Doses exist for the medication's full lifetime.
type Dose struct {
	ID            uint      `json:"id"             gorm:"primaryKey"`
	MedicineID    uint      `json:"medicine_id"    gorm:"not null;index"`
	DoseAmount    float64   `json:"dose_amount"    gorm:"not null;check:dose_amount > 0"`
	TimeOfDay     string    `json:"time_of_day"    gorm:"type:varchar(5);not null"` // "HH:MM"
	RouteOverride *uint     `json:"route_override,omitempty"`
	Instructions  string    `json:"instructions,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Dose.
func (Dose) TableName() string { return "doses" }

// At anchors the dose's wall-clock time on the given calendar day.
// TimeOfDay must already be validated ("HH:MM"); on a malformed value the
// day's midnight is returned.
func (d *Dose) At(day time.Time) time.Time {
	t, err := time.Parse("15:04", d.TimeOfDay)
	if err != nil {
		return DateOnly(day)
	}
	return DateOnly(day).Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// SkipDate suppresses all doses of a medication on one calendar date.
// Unique per (medicine_id, skip_date); must fall inside the medication's
// date range.
type SkipDate struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	MedicineID uint      `json:"medicine_id" gorm:"not null;index;uniqueIndex:ux_skip_med_date"`
	SkipDate   time.Time `json:"skip_date"   gorm:"not null;uniqueIndex:ux_skip_med_date"`
	Reason     string    `json:"reason,omitempty" gorm:"type:varchar(255)"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for SkipDate.
func (SkipDate) TableName() string { return "skip_dates" }

// Notification is one alert produced by the rule engine. Rows are created
// only by the rule engine, never mutated except for IsRead, and removed
// individually or by retention cleanup. MedicineID is nil for system-wide
// notifications.
type Notification struct {
	ID         uint            `json:"id"          gorm:"primaryKey"`
	MedicineID *uint           `json:"medicine_id,omitempty" gorm:"index"`
	Type       string          `json:"type"        gorm:"type:varchar(32);not null;index;check:type IN ('BUY_SOON','DOSE_DUE','MISSED_DOSE')"`
	Message    string          `json:"message"     gorm:"type:text;not null"`
	Payload    json.RawMessage `json:"payload,omitempty" gorm:"type:text"`
	IsRead     bool            `json:"is_read"     gorm:"not null;default:false;index"`
	CreatedAt  time.Time       `json:"created_at"  gorm:"index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// AuditLog is one immutable row in the inventory/action ledger. Rows are
// append-only; the signed sum of QuantityChange for a medication equals
// its current TotalTablets minus the TotalTablets it was created with.
type AuditLog struct {
	ID             uint            `json:"id"           gorm:"primaryKey"`
	MedicineID     uint            `json:"medicine_id"  gorm:"not null;index"`
	Action         string          `json:"action"       gorm:"type:varchar(32);not null;index"`
	OldValues      json.RawMessage `json:"old_values,omitempty" gorm:"type:text"`
	NewValues      json.RawMessage `json:"new_values,omitempty" gorm:"type:text"`
	QuantityChange *float64        `json:"quantity_change,omitempty"`
	CreatedAt      time.Time       `json:"created_at"   gorm:"index"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }

// DateOnly truncates t to midnight UTC, the canonical representation of a
// calendar day throughout the engine.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
