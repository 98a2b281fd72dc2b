// Package handlers – medication endpoints.
//
// Thin wrappers over MedicationService: bind/validate request shapes, call
// the service, translate errors. Inventory and dose-given semantics live
// entirely in the service.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/go-medtrack-backend/internal/repo"
	"github.com/medtrack/go-medtrack-backend/internal/services"
	"github.com/medtrack/go-medtrack-backend/internal/utils"
)

// pathID parses a uint path parameter, failing the request on garbage.
func pathID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

// CreateMedication handles POST /medications.
func (h *Handler) CreateMedication(c *gin.Context) {
	var in services.MedicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	m, err := h.Medications.Create(c.Request.Context(), in)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// GetMedication handles GET /medications/:id.
func (h *Handler) GetMedication(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	m, err := h.Medications.Get(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ListMedications handles GET /medications.
func (h *Handler) ListMedications(c *gin.Context) {
	items, err := h.Medications.List(c.Request.Context())
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// UpdateMedication handles PUT /medications/:id.
func (h *Handler) UpdateMedication(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var in services.MedicationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	m, err := h.Medications.Update(c.Request.Context(), id, in)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMedication handles DELETE /medications/:id. The response reports
// whether the delete was hard or soft.
func (h *Handler) DeleteMedication(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	res, err := h.Medications.Delete(c.Request.Context(), id)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// UpdateInventory handles PUT /medications/:id/inventory.
func (h *Handler) UpdateInventory(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var in services.InventoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	m, err := h.Medications.UpdateInventory(c.Request.Context(), id, in)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// RecordDoseGiven handles POST /medications/:id/doses/:doseId/given.
func (h *Handler) RecordDoseGiven(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	doseID, okID := pathID(c, "doseId")
	if !okID {
		return
	}
	m, err := h.Medications.RecordDoseGiven(c.Request.Context(), id, doseID)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// AddDose handles POST /medications/:id/doses.
func (h *Handler) AddDose(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var in services.DoseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	d, err := h.Medications.AddDose(c.Request.Context(), id, in)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

// RemoveDose handles DELETE /medications/:id/doses/:doseId.
func (h *Handler) RemoveDose(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	doseID, okID := pathID(c, "doseId")
	if !okID {
		return
	}
	if err := h.Medications.RemoveDose(c.Request.Context(), id, doseID); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// AddSkipDate handles POST /medications/:id/skip-dates.
func (h *Handler) AddSkipDate(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var in struct {
		SkipDate string `json:"skip_date"`
		Reason   string `json:"reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	sd, err := h.Medications.AddSkipDate(c.Request.Context(), id, in.SkipDate, in.Reason)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, sd)
}

// RemoveSkipDate handles DELETE /medications/:id/skip-dates/:skipDateId.
func (h *Handler) RemoveSkipDate(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	sdID, okID := pathID(c, "skipDateId")
	if !okID {
		return
	}
	if err := h.Medications.RemoveSkipDate(c.Request.Context(), id, sdID); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// MedicationAuditTrail handles GET /medications/:id/audit.
func (h *Handler) MedicationAuditTrail(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	sortBy := c.DefaultQuery("sort", repo.AuditSortCreatedAt)
	desc := c.DefaultQuery("order", "desc") != "asc"
	offset := utils.AtoiDefault(c.Query("offset"), 0)
	limit := utils.ClampLimit(utils.AtoiDefault(c.Query("limit"), 50))

	rows, total, err := h.Medications.AuditTrail(c.Request.Context(), id, sortBy, desc, offset, limit)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": rows, "total": total})
}
