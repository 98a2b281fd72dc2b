package handlers

import (
	"github.com/medtrack/go-medtrack-backend/internal/scheduler"
	"github.com/medtrack/go-medtrack-backend/internal/services"
)

// Handler bundles the services behind the public API. All fields are
// required.
type Handler struct {
	Medications   *services.MedicationService
	Schedule      *services.ScheduleService
	Notifications *services.NotificationService
	Jobs          *scheduler.Scheduler
}

// New constructs the handler set.
func New(med *services.MedicationService, sched *services.ScheduleService, notif *services.NotificationService, jobs *scheduler.Scheduler) *Handler {
	return &Handler{
		Medications:   med,
		Schedule:      sched,
		Notifications: notif,
		Jobs:          jobs,
	}
}
