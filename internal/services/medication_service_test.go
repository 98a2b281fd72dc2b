package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
)

// testNow is a stable "today" used across medication service tests.
var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newMedService(t *testing.T) *MedicationService {
	t.Helper()
	s := NewMedicationService(newTestDB(t))
	s.Now = fixedClock(testNow)
	return s
}

func basicInput() MedicationInput {
	return MedicationInput{
		Name:         "Paracetamol",
		Strength:     "500mg",
		StartDate:    "2025-06-01",
		SheetSize:    10,
		TotalTablets: 30,
		Doses: []DoseInput{
			{DoseAmount: 1, TimeOfDay: "08:00"},
			{DoseAmount: 1, TimeOfDay: "20:00"},
		},
	}
}

func TestMedicationCreate_WritesLedgerRow(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID == 0 || len(m.Doses) != 2 {
		t.Fatalf("unexpected medication: %+v", m)
	}

	rows, total, err := s.AuditTrail(ctx, m.ID, repo.AuditSortCreatedAt, false, 0, 10)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if total != 1 || rows[0].Action != domain.AuditCreated {
		t.Fatalf("expected one CREATED row, got total=%d rows=%+v", total, rows)
	}
}

func TestMedicationCreate_Validation(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*MedicationInput)
	}{
		{"missing name", func(in *MedicationInput) { in.Name = "" }},
		{"bad start date", func(in *MedicationInput) { in.StartDate = "15-06-2025" }},
		{"end before start", func(in *MedicationInput) { in.EndDate = strPtr("2025-05-01") }},
		{"zero sheet size", func(in *MedicationInput) { in.SheetSize = 0 }},
		{"negative tablets", func(in *MedicationInput) { in.TotalTablets = -1 }},
		{"bad dose time", func(in *MedicationInput) { in.Doses[0].TimeOfDay = "8am" }},
		{"zero dose amount", func(in *MedicationInput) { in.Doses[0].DoseAmount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := basicInput()
			tc.mut(&in)
			if _, err := s.Create(ctx, in); !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateInventory_Modes(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Absolute total.
	got, err := s.UpdateInventory(ctx, m.ID, InventoryInput{TotalTablets: f64Ptr(100)})
	if err != nil || got.TotalTablets != 100 {
		t.Fatalf("total_tablets mode: %v total=%v", err, got.TotalTablets)
	}

	// Sheet count times sheet size.
	got, err = s.UpdateInventory(ctx, m.ID, InventoryInput{SheetCount: intPtr(20)})
	if err != nil || got.TotalTablets != 200 {
		t.Fatalf("sheet_count mode: %v total=%v, want 200", err, got.TotalTablets)
	}

	// Relative add.
	got, err = s.UpdateInventory(ctx, m.ID, InventoryInput{AddTablets: f64Ptr(50)})
	if err != nil || got.TotalTablets != 250 {
		t.Fatalf("add_tablets mode: %v total=%v, want 250", err, got.TotalTablets)
	}

	// No mode supplied.
	if _, err = s.UpdateInventory(ctx, m.ID, InventoryInput{}); !IsValidation(err) {
		t.Fatalf("expected ValidationError for empty input, got %v", err)
	}

	// Going negative is rejected before any write.
	if _, err = s.UpdateInventory(ctx, m.ID, InventoryInput{AddTablets: f64Ptr(-1000)}); !IsValidation(err) {
		t.Fatalf("expected ValidationError for negative result, got %v", err)
	}
	got, _ = s.Get(ctx, m.ID)
	if got.TotalTablets != 250 {
		t.Fatalf("rejected update must not change inventory: %v", got.TotalTablets)
	}
}

func TestLedgerSum_MatchesInventoryDrift(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput()) // starts at 30
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err = s.UpdateInventory(ctx, m.ID, InventoryInput{AddTablets: f64Ptr(20)}); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if _, err = s.RecordDoseGiven(ctx, m.ID, m.Doses[0].ID); err != nil {
		t.Fatalf("dose given: %v", err)
	}
	if _, err = s.RecordDoseGiven(ctx, m.ID, m.Doses[1].ID); err != nil {
		t.Fatalf("dose given: %v", err)
	}

	cur, err := s.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sum, err := repo.SumQuantityChange(ctx, s.DB, m.ID)
	if err != nil {
		t.Fatalf("SumQuantityChange: %v", err)
	}
	if want := cur.TotalTablets - 30; sum != want {
		t.Fatalf("ledger sum %v, inventory drift %v", sum, want)
	}
}

func TestRecordDoseGiven_ClampsAtZero(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	in := basicInput()
	in.TotalTablets = 0.5
	in.Doses = []DoseInput{{DoseAmount: 2, TimeOfDay: "08:00"}}
	m, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.RecordDoseGiven(ctx, m.ID, m.Doses[0].ID)
	if err != nil {
		t.Fatalf("RecordDoseGiven: %v", err)
	}
	if got.TotalTablets != 0 {
		t.Fatalf("inventory must clamp at zero, got %v", got.TotalTablets)
	}
	// The ledger records what was actually deducted.
	sum, _ := repo.SumQuantityChange(ctx, s.DB, m.ID)
	if sum != -0.5 {
		t.Fatalf("ledger delta = %v, want -0.5", sum)
	}
}

func TestRecordDoseGiven_UnknownDose(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err = s.RecordDoseGiven(ctx, m.ID, 9999); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("expected ErrDoseNotFound, got %v", err)
	}
}

func TestDelete_HardWhenExpired(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	in := basicInput()
	in.StartDate = "2024-01-01"
	in.EndDate = strPtr("2024-02-01")
	m, err := s.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := s.Delete(ctx, m.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Mode != "hard" {
		t.Fatalf("expected hard delete, got %q", res.Mode)
	}
	if _, err = s.Get(ctx, m.ID); !errors.Is(err, ErrMedicationNotFound) {
		t.Fatalf("expected ErrMedicationNotFound after hard delete, got %v", err)
	}
}

func TestDelete_SoftWhenStillActive(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput()) // open-ended, active today
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := s.Delete(ctx, m.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Mode != "soft" {
		t.Fatalf("expected soft delete, got %q", res.Mode)
	}

	got, err := s.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("soft-deleted medication must survive: %v", err)
	}
	yesterday := domain.DateOnly(testNow).AddDate(0, 0, -1)
	if got.EndDate == nil || !domain.DateOnly(*got.EndDate).Equal(yesterday) {
		t.Fatalf("end date = %v, want %v", got.EndDate, yesterday)
	}
	if got.ActiveOn(testNow) {
		t.Fatalf("soft-deleted medication must not be active today")
	}
}

func TestUpdate_LeavesInventoryAlone(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err = s.UpdateInventory(ctx, m.ID, InventoryInput{TotalTablets: f64Ptr(77)}); err != nil {
		t.Fatalf("inventory: %v", err)
	}

	in := basicInput()
	in.Name = "Paracetamol Forte"
	in.TotalTablets = 5 // must be ignored on update
	got, err := s.Update(ctx, m.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Paracetamol Forte" {
		t.Fatalf("name not updated: %q", got.Name)
	}
	if got.TotalTablets != 77 {
		t.Fatalf("update must not touch inventory: %v", got.TotalTablets)
	}
}

func TestSkipDates(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sd, err := s.AddSkipDate(ctx, m.ID, "2025-06-20", "travel")
	if err != nil {
		t.Fatalf("AddSkipDate: %v", err)
	}

	// Outside the medication's range.
	if _, err = s.AddSkipDate(ctx, m.ID, "2025-01-01", ""); !IsValidation(err) {
		t.Fatalf("expected ValidationError for out-of-range date, got %v", err)
	}
	// Duplicate.
	if _, err = s.AddSkipDate(ctx, m.ID, "2025-06-20", ""); !IsValidation(err) {
		t.Fatalf("expected ValidationError for duplicate date, got %v", err)
	}

	if err = s.RemoveSkipDate(ctx, m.ID, sd.ID); err != nil {
		t.Fatalf("RemoveSkipDate: %v", err)
	}
	if err = s.RemoveSkipDate(ctx, m.ID, sd.ID); !errors.Is(err, ErrSkipDateNotFound) {
		t.Fatalf("expected ErrSkipDateNotFound, got %v", err)
	}
}

func TestAddRemoveDose(t *testing.T) {
	s := newMedService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d, err := s.AddDose(ctx, m.ID, DoseInput{DoseAmount: 0.5, TimeOfDay: "14:00"})
	if err != nil {
		t.Fatalf("AddDose: %v", err)
	}
	got, _ := s.Get(ctx, m.ID)
	if len(got.Doses) != 3 {
		t.Fatalf("dose count = %d, want 3", len(got.Doses))
	}

	if err = s.RemoveDose(ctx, m.ID, d.ID); err != nil {
		t.Fatalf("RemoveDose: %v", err)
	}
	// A dose belonging to another medication is not removable through this one.
	other, err := s.Create(ctx, basicInput())
	if err != nil {
		t.Fatalf("Create other: %v", err)
	}
	if err = s.RemoveDose(ctx, m.ID, other.Doses[0].ID); !errors.Is(err, ErrDoseNotFound) {
		t.Fatalf("expected ErrDoseNotFound for foreign dose, got %v", err)
	}
}

func TestAuditTrail_UnknownMedication(t *testing.T) {
	s := newMedService(t)
	if _, _, err := s.AuditTrail(context.Background(), 42, repo.AuditSortCreatedAt, true, 0, 10); !errors.Is(err, ErrMedicationNotFound) {
		t.Fatalf("expected ErrMedicationNotFound, got %v", err)
	}
}
