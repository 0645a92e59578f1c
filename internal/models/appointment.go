package models

import "time"

// Appointment is an already-booked session from the appointment store,
// read-only to the scheduling core.
type Appointment struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	TechnicianID string    `db:"technician_id" json:"technician_id"`
	ClientID     string    `db:"client_id" json:"client_id"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	EndTime      time.Time `db:"end_time" json:"end_time"`
	Status       string    `db:"status" json:"status"`
}

// AppointmentFilter narrows appointment listings.
type AppointmentFilter struct {
	TechnicianID string
	StartDate    time.Time
	EndDate      time.Time
}
