// Package services – NotificationService
//
// This file implements the notification rule engine: three independent
// rules (buy-soon, dose-due, missed-dose) that consume the schedule state
// plus inventory and emit deduplicated Notification records, along with
// the read/delete/cleanup operations on existing notifications.
//
// Each rule takes one bounded integer parameter that is validated before
// any work happens; a dedup hit is a no-op for that medication or dose,
// never an error.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
)

// Result types for the on-demand check path.

// RuleResult reports how many notifications one rule created.
type RuleResult struct {
	Type  string `json:"type"` // "buy_soon" | "dose_due" | "missed_dose"
	Count int    `json:"count"`
}

// ImmediateCheckResult is returned by TriggerImmediateCheck.
type ImmediateCheckResult struct {
	Results   []RuleResult `json:"results"`
	Timestamp time.Time    `json:"timestamp"`
}

// CleanupResult reports retention cleanup volumes.
type CleanupResult struct {
	NotificationsDeleted int64     `json:"notifications_deleted"`
	AuditLogsDeleted     int64     `json:"audit_logs_deleted"`
	Cutoff               time.Time `json:"cutoff"`
}

// NotificationService implements the rule engine and notification
// lifecycle operations.
type NotificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now supplies the current instant; overridable in tests.
	Now func() time.Time

	// DedupWindow suppresses duplicate BUY_SOON alerts per medication.
	DedupWindow time.Duration

	// Default rule parameters used by TriggerImmediateCheck and the
	// background jobs.
	DefaultBuySoonDays     int
	DefaultDoseDueMinutes  int
	DefaultMissedDoseHours int
}

// NewNotificationService constructs a NotificationService with the default
// dedup window and rule parameters.
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		DB:                     db,
		Now:                    func() time.Time { return time.Now().UTC() },
		DedupWindow:            24 * time.Hour,
		DefaultBuySoonDays:     7,
		DefaultDoseDueMinutes:  60,
		DefaultMissedDoseHours: 2,
	}
}

// GenerateBuySoonAlerts creates a BUY_SOON notification for every active
// medication whose remaining supply covers at most daysAhead days of
// consumption. daysAhead must be in [1, 30]. Medications with zero daily
// consumption are treated as never running out. A BUY_SOON notification
// already created for a medication within the dedup window suppresses a
// new one.
func (s *NotificationService) GenerateBuySoonAlerts(ctx context.Context, daysAhead int) ([]domain.Notification, error) {
	if daysAhead < 1 || daysAhead > 30 {
		return nil, Validationf("days_ahead must be an integer between 1 and 30")
	}

	now := s.Now()
	meds, err := repo.ListActiveMedications(ctx, s.DB, now)
	if err != nil {
		return nil, err
	}

	var created []domain.Notification
	for i := range meds {
		m := &meds[i]
		daily := m.DailyConsumption()
		if daily <= 0 {
			continue
		}
		daysRemaining := int(math.Floor(m.TotalTablets / daily))
		if daysRemaining > daysAhead {
			continue
		}

		medID := m.ID
		n := &domain.Notification{
			MedicineID: &medID,
			Type:       domain.NotificationBuySoon,
			Message: fmt.Sprintf("%s is running low: %.1f tablets left, about %d day(s) of supply",
				m.Name, m.TotalTablets, daysRemaining),
			Payload: domain.MustJSON(domain.BuySoonPayload{
				MedicationName: m.Name,
				CurrentTablets: m.TotalTablets,
				DaysRemaining:  daysRemaining,
			}),
			CreatedAt: now,
		}
		ok, err := repo.CreateNotificationIfAbsent(ctx, s.DB, n, now.Add(-s.DedupWindow), nil)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, *n)
		}
	}
	return created, nil
}

// GenerateDoseDueNotifications creates a DOSE_DUE notification for every
// dose scheduled today within [now, now+minutesAhead] that has not been
// given and whose day is not skipped. minutesAhead must be in [1, 120].
// Dedup is one notification per dose per day: an existing DOSE_DUE for the
// medication created today, referencing the same dose, suppresses a new
// one.
func (s *NotificationService) GenerateDoseDueNotifications(ctx context.Context, minutesAhead int) ([]domain.Notification, error) {
	if minutesAhead < 1 || minutesAhead > 120 {
		return nil, Validationf("minutes_ahead must be an integer between 1 and 120")
	}

	now := s.Now()
	horizon := now.Add(time.Duration(minutesAhead) * time.Minute)
	return s.scanDoses(ctx, now, func(at time.Time) bool {
		return !at.Before(now) && !at.After(horizon)
	}, func(m *domain.Medication, d *domain.Dose) *domain.Notification {
		medID := m.ID
		return &domain.Notification{
			MedicineID: &medID,
			Type:       domain.NotificationDoseDue,
			Message:    fmt.Sprintf("%s: %.1f tablet(s) due at %s", m.Name, d.DoseAmount, d.TimeOfDay),
			Payload: domain.MustJSON(domain.DoseDuePayload{
				MedicationName: m.Name,
				DoseID:         d.ID,
				DoseAmount:     d.DoseAmount,
				TimeOfDay:      d.TimeOfDay,
			}),
			CreatedAt: now,
		}
	})
}

// GenerateMissedDoseNotifications creates a MISSED_DOSE notification for
// every dose scheduled today more than hoursOverdue hours in the past that
// has not been given and whose day is not skipped. hoursOverdue must be in
// [1, 24]. Dedup is one notification per dose per day, as for DOSE_DUE.
func (s *NotificationService) GenerateMissedDoseNotifications(ctx context.Context, hoursOverdue int) ([]domain.Notification, error) {
	if hoursOverdue < 1 || hoursOverdue > 24 {
		return nil, Validationf("hours_overdue must be an integer between 1 and 24")
	}

	now := s.Now()
	overdue := time.Duration(hoursOverdue) * time.Hour
	return s.scanDoses(ctx, now, func(at time.Time) bool {
		return now.Sub(at) > overdue
	}, func(m *domain.Medication, d *domain.Dose) *domain.Notification {
		medID := m.ID
		return &domain.Notification{
			MedicineID: &medID,
			Type:       domain.NotificationMissedDose,
			Message:    fmt.Sprintf("Missed dose: %s was scheduled at %s", m.Name, d.TimeOfDay),
			Payload: domain.MustJSON(domain.MissedDosePayload{
				MedicationName: m.Name,
				DoseID:         d.ID,
				DoseAmount:     d.DoseAmount,
				TimeOfDay:      d.TimeOfDay,
				HoursOverdue:   hoursOverdue,
			}),
			CreatedAt: now,
		}
	})
}

// scanDoses walks today's doses of all active, non-skipped medications,
// applies the time predicate, skips given doses, and inserts the built
// notification with per-dose dedup anchored at the start of the day, so
// each dose is announced at most once per calendar day.
func (s *NotificationService) scanDoses(ctx context.Context, now time.Time, match func(at time.Time) bool, build func(*domain.Medication, *domain.Dose) *domain.Notification) ([]domain.Notification, error) {
	today := domain.DateOnly(now)
	meds, err := repo.ListActiveMedications(ctx, s.DB, today)
	if err != nil {
		return nil, err
	}

	var created []domain.Notification
	for i := range meds {
		m := &meds[i]
		if m.SkipsOn(today) {
			continue
		}
		given, err := repo.DoseGivenIDs(ctx, s.DB, m.ID, today)
		if err != nil {
			return created, err
		}
		for j := range m.Doses {
			d := &m.Doses[j]
			at := d.At(today)
			if !match(at) || given[d.ID] {
				continue
			}
			n := build(m, d)
			ok, err := repo.CreateNotificationIfAbsent(ctx, s.DB, n, today, &d.ID)
			if err != nil {
				return created, err
			}
			if ok {
				created = append(created, *n)
			}
		}
	}
	return created, nil
}

// TriggerImmediateCheck runs all three rules once, synchronously, with the
// service's default parameters, and reports per-rule creation counts.
func (s *NotificationService) TriggerImmediateCheck(ctx context.Context) (*ImmediateCheckResult, error) {
	buySoon, err := s.GenerateBuySoonAlerts(ctx, s.DefaultBuySoonDays)
	if err != nil {
		return nil, err
	}
	doseDue, err := s.GenerateDoseDueNotifications(ctx, s.DefaultDoseDueMinutes)
	if err != nil {
		return nil, err
	}
	missed, err := s.GenerateMissedDoseNotifications(ctx, s.DefaultMissedDoseHours)
	if err != nil {
		return nil, err
	}

	return &ImmediateCheckResult{
		Results: []RuleResult{
			{Type: "buy_soon", Count: len(buySoon)},
			{Type: "dose_due", Count: len(doseDue)},
			{Type: "missed_dose", Count: len(missed)},
		},
		Timestamp: s.Now(),
	}, nil
}

// ListPage returns a page of notifications matching the filter, newest
// first, plus the total count.
func (s *NotificationService) ListPage(ctx context.Context, f repo.NotificationFilter, page, pageSize int) ([]domain.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountNotifications(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Notification{}, 0, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
	return items, total, err
}

// MarkAsRead flips the read flag of one notification.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uint) error {
	n, err := repo.MarkNotificationRead(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkManyAsRead flips the read flag of a set of notifications and returns
// how many rows changed. An empty ID list is a validation error.
func (s *NotificationService) MarkManyAsRead(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, Validationf("ids must not be empty")
	}
	return repo.MarkNotificationsRead(ctx, s.DB, ids)
}

// MarkAllReadForMedication flips the read flag of every unread
// notification of one medication.
func (s *NotificationService) MarkAllReadForMedication(ctx context.Context, medicineID uint) (int64, error) {
	if _, err := repo.GetMedication(ctx, s.DB, medicineID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrMedicationNotFound
		}
		return 0, err
	}
	return repo.MarkAllReadForMedication(ctx, s.DB, medicineID)
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, id uint) error {
	n, err := repo.DeleteNotification(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// CleanupOld purges notifications and audit ledger rows older than daysOld
// days. daysOld must be in [1, 365].
func (s *NotificationService) CleanupOld(ctx context.Context, daysOld int) (*CleanupResult, error) {
	if daysOld < 1 || daysOld > 365 {
		return nil, Validationf("days_old must be an integer between 1 and 365")
	}

	cutoff := s.Now().AddDate(0, 0, -daysOld)
	notifs, err := repo.DeleteNotificationsBefore(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}
	audits, err := repo.DeleteAuditLogsBefore(ctx, s.DB, cutoff)
	if err != nil {
		return nil, err
	}
	return &CleanupResult{
		NotificationsDeleted: notifs,
		AuditLogsDeleted:     audits,
		Cutoff:               cutoff,
	}, nil
}
