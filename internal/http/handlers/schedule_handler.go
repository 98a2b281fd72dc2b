// Package handlers – schedule endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// scheduleDate resolves the date query parameter, defaulting to today.
func scheduleDate(c *gin.Context) string {
	if d := c.Query("date"); d != "" {
		return d
	}
	return time.Now().UTC().Format("2006-01-02")
}

// DailySchedule handles GET /schedule?date=YYYY-MM-DD.
func (h *Handler) DailySchedule(c *gin.Context) {
	sched, err := h.Schedule.GenerateDailySchedule(c.Request.Context(), scheduleDate(c))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, sched)
}

// ScheduleSummary handles GET /schedule/summary?date=YYYY-MM-DD.
func (h *Handler) ScheduleSummary(c *gin.Context) {
	sum, err := h.Schedule.GetScheduleSummary(c.Request.Context(), scheduleDate(c))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}
