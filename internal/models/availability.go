package models

import "time"

// MinutesPerDay bounds slot times; slots are expressed as minute-of-day.
const MinutesPerDay = 1440

// AvailabilitySlot is a recurring weekly availability window for a
// technician. Day 0 is Sunday. Within one technician and day, persisted
// slots are non-overlapping and sorted by start after normalization.
type AvailabilitySlot struct {
	ID           string    `db:"id" json:"id"`
	TechnicianID string    `db:"technician_id" json:"technician_id"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	StartMinute  int       `db:"start_minute" json:"start_minute"`
	EndMinute    int       `db:"end_minute" json:"end_minute"`
	Recurring    bool      `db:"recurring" json:"recurring"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TimeOffStatus tracks the time-off request lifecycle.
type TimeOffStatus string

const (
	TimeOffStatusPending  TimeOffStatus = "PENDING"
	TimeOffStatusApproved TimeOffStatus = "APPROVED"
	TimeOffStatusDenied   TimeOffStatus = "DENIED"
)

// TimeOffRequest is created pending and transitions to a terminal
// approved or denied state; immutable once terminal.
type TimeOffRequest struct {
	ID           string        `db:"id" json:"id"`
	TechnicianID string        `db:"technician_id" json:"technician_id"`
	StartDate    time.Time     `db:"start_date" json:"start_date"`
	EndDate      time.Time     `db:"end_date" json:"end_date"`
	Reason       string        `db:"reason" json:"reason"`
	Status       TimeOffStatus `db:"status" json:"status"`
	RequestedAt  time.Time     `db:"requested_at" json:"requested_at"`
	ReviewedAt   *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy   string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
}

// TimeOffRecord is a materialized unavailability window consulted by
// availability queries. Approval of a request writes one of these.
type TimeOffRecord struct {
	ID           string    `db:"id" json:"id"`
	TechnicianID string    `db:"technician_id" json:"technician_id"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AvailabilityBlock is a materialized per-date view of availability used
// for calendar rendering, not by the optimizer hot path.
type AvailabilityBlock struct {
	Date        time.Time `json:"date"`
	DayOfWeek   int       `json:"day_of_week"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Available   bool      `json:"available"`
	Reason      string    `json:"reason,omitempty"`
}

// DateForDay resolves a day-of-week inside the week anchored at
// weekStart (a Sunday) to its concrete calendar date.
func DateForDay(weekStart time.Time, dayOfWeek int) time.Time {
	return weekStart.AddDate(0, 0, dayOfWeek)
}
