// Package handlers – background job lifecycle endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartAllJobs handles POST /jobs/start.
func (h *Handler) StartAllJobs(c *gin.Context) {
	ok(c, http.StatusOK, h.Jobs.StartAll())
}

// StopAllJobs handles POST /jobs/stop.
func (h *Handler) StopAllJobs(c *gin.Context) {
	ok(c, http.StatusOK, h.Jobs.StopAll())
}

// JobStatus handles GET /jobs/status.
func (h *Handler) JobStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.Jobs.Status())
}

// StartJob handles POST /jobs/:name/start.
func (h *Handler) StartJob(c *gin.Context) {
	tr, err := h.Jobs.StartJob(c.Param("name"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	ok(c, http.StatusOK, tr)
}

// StopJob handles POST /jobs/:name/stop.
func (h *Handler) StopJob(c *gin.Context) {
	tr, err := h.Jobs.StopJob(c.Param("name"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	ok(c, http.StatusOK, tr)
}
