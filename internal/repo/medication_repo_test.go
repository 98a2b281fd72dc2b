package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateAndGetMedication(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	m := &domain.Medication{
		Name:         "Amoxicillin",
		StartDate:    day(2025, 1, 1),
		SheetSize:    10,
		TotalTablets: 20,
		Doses: []domain.Dose{
			{DoseAmount: 1, TimeOfDay: "20:00"},
			{DoseAmount: 1, TimeOfDay: "08:00"},
		},
	}
	if err := CreateMedication(ctx, db, m); err != nil {
		t.Fatalf("CreateMedication: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected assigned ID")
	}

	got, err := GetMedication(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMedication: %v", err)
	}
	if got.Name != "Amoxicillin" || len(got.Doses) != 2 {
		t.Fatalf("unexpected medication: %+v", got)
	}
	// Doses preloaded in time-of-day order.
	if got.Doses[0].TimeOfDay != "08:00" || got.Doses[1].TimeOfDay != "20:00" {
		t.Fatalf("doses not ordered by time_of_day: %+v", got.Doses)
	}
}

func TestGetMedication_NotFound(t *testing.T) {
	db := newFullDB(t)
	if _, err := GetMedication(context.Background(), db, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActiveMedications_FiltersByDateRange(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	end := day(2025, 1, 31)
	meds := []*domain.Medication{
		{Name: "B current", StartDate: day(2025, 1, 1), EndDate: &end, SheetSize: 10},
		{Name: "A open", StartDate: day(2025, 1, 10), SheetSize: 10},
		{Name: "C expired", StartDate: day(2024, 1, 1), EndDate: ptrTime(day(2024, 2, 1)), SheetSize: 10},
		{Name: "D future", StartDate: day(2025, 6, 1), SheetSize: 10},
	}
	for _, m := range meds {
		if err := CreateMedication(ctx, db, m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	active, err := ListActiveMedications(ctx, db, day(2025, 1, 15))
	if err != nil {
		t.Fatalf("ListActiveMedications: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active, got %d", len(active))
	}
	// Sorted by name for determinism.
	if active[0].Name != "A open" || active[1].Name != "B current" {
		t.Fatalf("unexpected order: %s, %s", active[0].Name, active[1].Name)
	}
}

func TestHardDeleteMedication_Cascades(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	m := &domain.Medication{
		Name:      "Old",
		StartDate: day(2024, 1, 1),
		SheetSize: 10,
		Doses:     []domain.Dose{{DoseAmount: 1, TimeOfDay: "08:00"}},
		SkipDates: []domain.SkipDate{{SkipDate: day(2024, 1, 5)}},
	}
	if err := CreateMedication(ctx, db, m); err != nil {
		t.Fatalf("seed: %v", err)
	}
	medID := m.ID
	if _, err := CreateNotificationIfAbsent(ctx, db, &domain.Notification{
		MedicineID: &medID,
		Type:       domain.NotificationBuySoon,
		Message:    "x",
		CreatedAt:  time.Now().UTC(),
	}, time.Now().UTC().Add(-time.Hour), nil); err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	if err := HardDeleteMedication(ctx, db, medID); err != nil {
		t.Fatalf("HardDeleteMedication: %v", err)
	}

	if _, err := GetMedication(ctx, db, medID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("medication should be gone, got %v", err)
	}
	doses, _ := ListDoses(ctx, db, medID)
	if len(doses) != 0 {
		t.Fatalf("doses should cascade, got %d", len(doses))
	}
	skips, _ := ListSkipDates(ctx, db, medID)
	if len(skips) != 0 {
		t.Fatalf("skip dates should cascade, got %d", len(skips))
	}
	n, _ := CountNotifications(ctx, db, NotificationFilter{MedicineID: &medID})
	if n != 0 {
		t.Fatalf("notifications should cascade, got %d", n)
	}
}

func TestSetTotalTablets(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	m := &domain.Medication{Name: "X", StartDate: day(2025, 1, 1), SheetSize: 10, TotalTablets: 5}
	if err := CreateMedication(ctx, db, m); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SetTotalTablets(ctx, db, m.ID, 42); err != nil {
		t.Fatalf("SetTotalTablets: %v", err)
	}
	got, err := GetMedication(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.TotalTablets != 42 {
		t.Fatalf("TotalTablets = %v, want 42", got.TotalTablets)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
