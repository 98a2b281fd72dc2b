// Package handlers – notification endpoints.
//
// The generate endpoints expose the three rule-engine rules with their
// bounded integer parameters; out-of-range values surface as 400s from the
// service's validation, before any write.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/go-medtrack-backend/internal/repo"
	"github.com/medtrack/go-medtrack-backend/internal/utils"
)

// ruleParam parses an integer query parameter with a default. A present
// but non-integer value yields ok=false so the caller can 400 instead of
// silently applying the default.
func ruleParam(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// ListNotifications handles GET /notifications with medicine_id, type,
// is_read filters and page/page_size pagination.
func (h *Handler) ListNotifications(c *gin.Context) {
	var f repo.NotificationFilter
	if raw := c.Query("medicine_id"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid medicine_id")
			return
		}
		id := uint(n)
		f.MedicineID = &id
	}
	f.Type = c.Query("type")
	if raw := c.Query("is_read"); raw != "" {
		v := raw == "true" || raw == "1"
		f.IsRead = &v
	}

	page := utils.AtoiDefault(c.Query("page"), 1)
	pageSize := utils.ClampLimit(utils.AtoiDefault(c.Query("page_size"), 20))

	items, total, err := h.Notifications.ListPage(c.Request.Context(), f, page, pageSize)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

// GenerateBuySoon handles POST /notifications/buy-soon?days_ahead=N.
func (h *Handler) GenerateBuySoon(c *gin.Context) {
	days, okP := ruleParam(c, "days_ahead", h.Notifications.DefaultBuySoonDays)
	if !okP {
		return
	}
	created, err := h.Notifications.GenerateBuySoonAlerts(c.Request.Context(), days)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"created": created, "count": len(created)})
}

// GenerateDoseDue handles POST /notifications/dose-due?minutes_ahead=N.
func (h *Handler) GenerateDoseDue(c *gin.Context) {
	minutes, okP := ruleParam(c, "minutes_ahead", h.Notifications.DefaultDoseDueMinutes)
	if !okP {
		return
	}
	created, err := h.Notifications.GenerateDoseDueNotifications(c.Request.Context(), minutes)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"created": created, "count": len(created)})
}

// GenerateMissedDose handles POST /notifications/missed-dose?hours_overdue=N.
func (h *Handler) GenerateMissedDose(c *gin.Context) {
	hours, okP := ruleParam(c, "hours_overdue", h.Notifications.DefaultMissedDoseHours)
	if !okP {
		return
	}
	created, err := h.Notifications.GenerateMissedDoseNotifications(c.Request.Context(), hours)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"created": created, "count": len(created)})
}

// ImmediateCheck handles POST /notifications/check: all three rules once,
// synchronously, with defaults.
func (h *Handler) ImmediateCheck(c *gin.Context) {
	res, err := h.Notifications.TriggerImmediateCheck(c.Request.Context())
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// MarkNotificationRead handles PUT /notifications/:id/read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.Notifications.MarkAsRead(c.Request.Context(), id); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// MarkNotificationsRead handles PUT /notifications/read with {"ids": [...]}.
func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	var in struct {
		IDs []uint `json:"ids"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	updated, err := h.Notifications.MarkManyAsRead(c.Request.Context(), in.IDs)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": updated})
}

// MarkMedicationNotificationsRead handles
// PUT /medications/:id/notifications/read.
func (h *Handler) MarkMedicationNotificationsRead(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	updated, err := h.Notifications.MarkAllReadForMedication(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": updated})
}

// DeleteNotification handles DELETE /notifications/:id.
func (h *Handler) DeleteNotification(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.Notifications.Delete(c.Request.Context(), id); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// CleanupNotifications handles POST /notifications/cleanup?days_old=N.
func (h *Handler) CleanupNotifications(c *gin.Context) {
	days, okP := ruleParam(c, "days_old", 30)
	if !okP {
		return
	}
	res, err := h.Notifications.CleanupOld(c.Request.Context(), days)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
