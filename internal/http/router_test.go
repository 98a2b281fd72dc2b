package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/medtrack/go-medtrack-backend/internal/config"
	"github.com/medtrack/go-medtrack-backend/internal/repo"
	"github.com/medtrack/go-medtrack-backend/internal/scheduler"
	"github.com/medtrack/go-medtrack-backend/internal/services"
)

// newTestRouter builds a full engine against a throwaway database. The
// rate limit is raised so sequential test requests never hit 429.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("router_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.RateRPS = 10000
	cfg.RateBurst = 10000

	notifSvc := services.NewNotificationService(db)
	jobs := scheduler.New(notifSvc, scheduler.DefaultConfig(), zerolog.Nop())

	r := gin.New()
	RegisterRoutes(r, db, jobs, cfg)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthAndFallbacks(t *testing.T) {
	r := newTestRouter(t)

	if w := doJSON(t, r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPatch, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("bad method = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestMedicationEndpoints(t *testing.T) {
	r := newTestRouter(t)

	create := map[string]any{
		"name":          "Ibuprofen",
		"start_date":    "2025-01-01",
		"sheet_size":    10,
		"total_tablets": 30,
		"doses": []map[string]any{
			{"dose_amount": 1, "time_of_day": "08:00"},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var med struct {
		ID    uint `json:"id"`
		Doses []struct {
			ID uint `json:"id"`
		} `json:"doses"`
	}
	decode(t, w, &med)
	if med.ID == 0 || len(med.Doses) != 1 {
		t.Fatalf("unexpected create response: %s", w.Body.String())
	}

	if w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/medications/%d", med.ID), nil); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodGet, "/api/v1/medications/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("garbage id = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodGet, "/api/v1/medications/99999", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing medication = %d", w.Code)
	}

	// Validation errors surface as 400 with the error envelope.
	bad := map[string]any{"name": "", "start_date": "2025-01-01", "sheet_size": 10}
	w = doJSON(t, r, http.MethodPost, "/api/v1/medications", bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid create = %d", w.Code)
	}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	decode(t, w, &envelope)
	if envelope.Code == "" || envelope.Message == "" {
		t.Fatalf("error envelope missing fields: %s", w.Body.String())
	}

	// Inventory update and dose-given.
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/medications/%d/inventory", med.ID),
		map[string]any{"sheet_count": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("inventory = %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		TotalTablets float64 `json:"total_tablets"`
	}
	decode(t, w, &updated)
	if updated.TotalTablets != 50 {
		t.Fatalf("total_tablets = %v, want 50", updated.TotalTablets)
	}

	w = doJSON(t, r, http.MethodPost,
		fmt.Sprintf("/api/v1/medications/%d/doses/%d/given", med.ID, med.Doses[0].ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dose given = %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &updated)
	if updated.TotalTablets != 49 {
		t.Fatalf("total after dose = %v, want 49", updated.TotalTablets)
	}

	// Audit trail lists the ledger rows written above.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/medications/%d/audit", med.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit = %d", w.Code)
	}
	var audit struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &audit)
	if audit.Total != 3 { // CREATED, INVENTORY_UPDATED, DOSE_GIVEN
		t.Fatalf("audit total = %d, want 3", audit.Total)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	r := newTestRouter(t)

	create := map[string]any{
		"name":          "Vitamin D",
		"start_date":    "2025-01-01",
		"sheet_size":    10,
		"total_tablets": 60,
		"doses":         []map[string]any{{"dose_amount": 1, "time_of_day": "09:00"}},
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/medications", create); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/schedule?date=2025-02-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("schedule = %d: %s", w.Code, w.Body.String())
	}
	var sched struct {
		Date        string `json:"date"`
		Medications []struct {
			Doses []struct {
				Status string `json:"status"`
			} `json:"doses"`
		} `json:"medications"`
	}
	decode(t, w, &sched)
	if sched.Date != "2025-02-01" || len(sched.Medications) != 1 {
		t.Fatalf("unexpected schedule: %s", w.Body.String())
	}

	if w = doJSON(t, r, http.MethodGet, "/api/v1/schedule?date=02-01-2025", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed date = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/schedule/summary?date=2025-02-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary = %d", w.Code)
	}
	var sum struct {
		TotalDoses int `json:"total_doses"`
	}
	decode(t, w, &sum)
	if sum.TotalDoses != 1 {
		t.Fatalf("total_doses = %d, want 1", sum.TotalDoses)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	r := newTestRouter(t)

	// Two tablets at one per day: well under a 7-day horizon.
	create := map[string]any{
		"name":          "Low Stock",
		"start_date":    "2025-01-01",
		"sheet_size":    10,
		"total_tablets": 2,
		"doses":         []map[string]any{{"dose_amount": 1, "time_of_day": "09:00"}},
	}
	if w := doJSON(t, r, http.MethodPost, "/api/v1/medications", create); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/notifications/buy-soon", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("buy-soon = %d: %s", w.Code, w.Body.String())
	}
	var genOut struct {
		Count   int `json:"count"`
		Created []struct {
			ID uint `json:"id"`
		} `json:"created"`
	}
	decode(t, w, &genOut)
	if genOut.Count != 1 {
		t.Fatalf("buy-soon count = %d, want 1", genOut.Count)
	}
	notifID := genOut.Created[0].ID

	// Out-of-range parameter is rejected before any work.
	if w = doJSON(t, r, http.MethodPost, "/api/v1/notifications/buy-soon?days_ahead=0", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("days_ahead=0 = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodPost, "/api/v1/notifications/dose-due?minutes_ahead=later", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-integer param = %d", w.Code)
	}

	// Listing and read state.
	w = doJSON(t, r, http.MethodGet, "/api/v1/notifications?type=BUY_SOON", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Fatalf("list total = %d, want 1", list.Total)
	}

	if w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/notifications/%d/read", notifID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("mark read = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodPut, "/api/v1/notifications/99999/read", nil); w.Code != http.StatusNotFound {
		t.Fatalf("mark read missing = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodPut, "/api/v1/notifications/read", map[string]any{"ids": []uint{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty ids = %d", w.Code)
	}

	// Immediate check reports all three rules.
	w = doJSON(t, r, http.MethodPost, "/api/v1/notifications/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("check = %d", w.Code)
	}
	var check struct {
		Results []struct {
			Type string `json:"type"`
		} `json:"results"`
	}
	decode(t, w, &check)
	if len(check.Results) != 3 {
		t.Fatalf("check results = %d, want 3", len(check.Results))
	}

	if w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/notifications/%d", notifID), nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodPost, "/api/v1/notifications/cleanup?days_old=400", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("cleanup out of range = %d", w.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st struct {
		TotalJobs int `json:"total_jobs"`
		Jobs      []struct {
			JobName string `json:"job_name"`
			Running bool   `json:"running"`
		} `json:"jobs"`
	}
	decode(t, w, &st)
	if st.TotalJobs != 4 {
		t.Fatalf("total_jobs = %d, want 4", st.TotalJobs)
	}
	for _, j := range st.Jobs {
		if j.Running {
			t.Fatalf("job %q running before start", j.JobName)
		}
	}

	if w = doJSON(t, r, http.MethodPost, "/api/v1/jobs/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start all = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/jobs/status", nil)
	decode(t, w, &st)
	for _, j := range st.Jobs {
		if !j.Running {
			t.Fatalf("job %q not running after start", j.JobName)
		}
	}

	if w = doJSON(t, r, http.MethodPost, "/api/v1/jobs/cleanup/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("stop one = %d", w.Code)
	}
	if w = doJSON(t, r, http.MethodPost, "/api/v1/jobs/reportWeather/start", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown job = %d: %s", w.Code, w.Body.String())
	}

	if w = doJSON(t, r, http.MethodPost, "/api/v1/jobs/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("stop all = %d", w.Code)
	}
}
