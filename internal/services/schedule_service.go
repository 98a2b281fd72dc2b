// Package services – ScheduleService
//
// This file implements the schedule generator: for a calendar date it
// derives the set of doses every active medication must take, honoring
// skip-date exceptions, and annotates each dose with a status relative to
// the current clock. Output ordering is deterministic (medication name,
// then time of day) so re-running for the same date and data yields the
// same schedule.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
)

// Dose statuses reported by the schedule generator.
const (
	StatusUpcoming = "upcoming"
	StatusDue      = "due"
	StatusGiven    = "given"
	StatusMissed   = "missed"
)

// ScheduleDose is one dose slot in a daily schedule.
type ScheduleDose struct {
	DoseID       uint      `json:"dose_id"`
	DoseAmount   float64   `json:"dose_amount"`
	TimeOfDay    string    `json:"time_of_day"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Status       string    `json:"status"`
	Instructions string    `json:"instructions,omitempty"`
}

// ScheduleMedication groups a medication's dose slots for one day.
type ScheduleMedication struct {
	MedicineID   uint           `json:"medicine_id"`
	Name         string         `json:"name"`
	Strength     string         `json:"strength,omitempty"`
	TotalTablets float64        `json:"total_tablets"`
	Doses        []ScheduleDose `json:"doses"`
}

// DailySchedule is the full schedule for one calendar date.
type DailySchedule struct {
	Date        string               `json:"date"`
	Medications []ScheduleMedication `json:"medications"`
}

// ScheduleSummary aggregates per-status dose counts for one date.
type ScheduleSummary struct {
	Date        string `json:"date"`
	Medications int    `json:"medications"`
	TotalDoses  int    `json:"total_doses"`
	Upcoming    int    `json:"upcoming"`
	Due         int    `json:"due"`
	Given       int    `json:"given"`
	Missed      int    `json:"missed"`
}

// ScheduleService derives daily dose schedules from medications, their
// skip dates, and the DOSE_GIVEN rows of the audit ledger.
type ScheduleService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now supplies the current instant; overridable in tests.
	Now func() time.Time

	// DueWindow is how far ahead of its scheduled time a dose counts as
	// "due" rather than "upcoming".
	DueWindow time.Duration
	// MissedAfter is how far past its scheduled time an ungiven dose
	// counts as "missed" rather than still "due".
	MissedAfter time.Duration
}

// NewScheduleService constructs a ScheduleService with the default due and
// missed windows.
func NewScheduleService(db *gorm.DB) *ScheduleService {
	return &ScheduleService{
		DB:          db,
		Now:         func() time.Time { return time.Now().UTC() },
		DueWindow:   time.Hour,
		MissedAfter: time.Hour,
	}
}

// GenerateDailySchedule returns the dose schedule for the given
// "YYYY-MM-DD" date. Medications whose skip-date set contains the date are
// excluded entirely. An empty schedule is not an error.
func (s *ScheduleService) GenerateDailySchedule(ctx context.Context, dateStr string) (*DailySchedule, error) {
	day, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	meds, err := repo.ListActiveMedications(ctx, s.DB, day)
	if err != nil {
		return nil, err
	}

	out := &DailySchedule{Date: FormatDate(day), Medications: []ScheduleMedication{}}
	for i := range meds {
		m := &meds[i]
		if m.SkipsOn(day) {
			continue
		}
		given, err := repo.DoseGivenIDs(ctx, s.DB, m.ID, day)
		if err != nil {
			return nil, err
		}

		sm := ScheduleMedication{
			MedicineID:   m.ID,
			Name:         m.Name,
			Strength:     m.Strength,
			TotalTablets: m.TotalTablets,
			Doses:        make([]ScheduleDose, 0, len(m.Doses)),
		}
		for _, d := range m.Doses { // preloaded in time_of_day order
			at := d.At(day)
			sm.Doses = append(sm.Doses, ScheduleDose{
				DoseID:       d.ID,
				DoseAmount:   d.DoseAmount,
				TimeOfDay:    d.TimeOfDay,
				ScheduledAt:  at,
				Status:       s.doseStatus(at, day, given[d.ID]),
				Instructions: d.Instructions,
			})
		}
		out.Medications = append(out.Medications, sm)
	}
	return out, nil
}

// GetScheduleSummary aggregates per-status counts across the schedule for
// one date.
func (s *ScheduleService) GetScheduleSummary(ctx context.Context, dateStr string) (*ScheduleSummary, error) {
	sched, err := s.GenerateDailySchedule(ctx, dateStr)
	if err != nil {
		return nil, err
	}

	sum := &ScheduleSummary{Date: sched.Date, Medications: len(sched.Medications)}
	for _, m := range sched.Medications {
		for _, d := range m.Doses {
			sum.TotalDoses++
			switch d.Status {
			case StatusUpcoming:
				sum.Upcoming++
			case StatusDue:
				sum.Due++
			case StatusGiven:
				sum.Given++
			case StatusMissed:
				sum.Missed++
			}
		}
	}
	return sum, nil
}

// doseStatus derives the status of one dose slot.
//
// Given always wins. On past days an ungiven dose is missed, on future
// days it is upcoming. On the current day the clock decides: more than
// DueWindow ahead is upcoming, more than MissedAfter behind is missed,
// anything in between is due.
func (s *ScheduleService) doseStatus(at, day time.Time, given bool) string {
	if given {
		return StatusGiven
	}
	now := s.Now()
	today := domain.DateOnly(now)
	switch {
	case day.After(today):
		return StatusUpcoming
	case day.Before(today):
		return StatusMissed
	case at.After(now.Add(s.DueWindow)):
		return StatusUpcoming
	case now.Sub(at) > s.MissedAfter:
		return StatusMissed
	default:
		return StatusDue
	}
}
