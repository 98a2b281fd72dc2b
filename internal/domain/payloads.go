package domain

import "encoding/json"

// Typed notification payloads. Each notification type carries one of these
// structures serialized into Notification.Payload, so consumers never deal
// with untyped maps.

// BuySoonPayload accompanies BUY_SOON notifications.
type BuySoonPayload struct {
	MedicationName string  `json:"medication_name"`
	CurrentTablets float64 `json:"current_tablets"`
	DaysRemaining  int     `json:"days_remaining"`
}

// DoseDuePayload accompanies DOSE_DUE notifications.
type DoseDuePayload struct {
	MedicationName string  `json:"medication_name"`
	DoseID         uint    `json:"dose_id"`
	DoseAmount     float64 `json:"dose_amount"`
	TimeOfDay      string  `json:"time_of_day"`
}

// MissedDosePayload accompanies MISSED_DOSE notifications.
type MissedDosePayload struct {
	MedicationName string  `json:"medication_name"`
	DoseID         uint    `json:"dose_id"`
	DoseAmount     float64 `json:"dose_amount"`
	TimeOfDay      string  `json:"time_of_day"`
	HoursOverdue   int     `json:"hours_overdue"`
}

// DoseGivenRecord is the NewValues snapshot of a DOSE_GIVEN audit row. The
// dose ID in the snapshot is what ties a ledger row back to one scheduled
// administration when computing given/missed statuses.
type DoseGivenRecord struct {
	DoseID     uint    `json:"dose_id"`
	DoseAmount float64 `json:"dose_amount"`
	Timestamp  string  `json:"timestamp"`
}

// MustJSON serializes v for use as a payload or audit snapshot. The input
// types are plain structs and maps of scalars, so marshaling cannot fail;
// a nil RawMessage is returned on the impossible error path rather than
// panicking inside a transaction.
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
