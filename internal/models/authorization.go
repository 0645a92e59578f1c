package models

import (
	"math"
	"time"
)

// UnitsPerHour is the fixed billing conversion: 4 units per hour.
const UnitsPerHour = 4

// AuthorizationStatus tracks whether an authorization is usable.
type AuthorizationStatus string

const (
	AuthorizationStatusActive  AuthorizationStatus = "ACTIVE"
	AuthorizationStatusExpired AuthorizationStatus = "EXPIRED"
)

// ClientStatus mirrors the care-recipient's enrolment state as reported
// by the authorization store.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "ACTIVE"
	ClientStatusInactive ClientStatus = "INACTIVE"
)

// ServiceAuthorization is a payer-approved budget of billable units for
// a client within a date range. Read-only to the scheduling core.
type ServiceAuthorization struct {
	ID             string              `db:"id" json:"id"`
	UserID         string              `db:"user_id" json:"user_id"`
	ClientID       string              `db:"client_id" json:"client_id"`
	ClientStatus   ClientStatus        `db:"client_status" json:"client_status"`
	ServiceCode    string              `db:"service_code" json:"service_code"`
	TotalUnits     int                 `db:"total_units" json:"total_units"`
	UsedUnits      int                 `db:"used_units" json:"used_units"`
	RemainingUnits int                 `db:"remaining_units" json:"remaining_units"`
	StartDate      time.Time           `db:"start_date" json:"start_date"`
	EndDate        time.Time           `db:"end_date" json:"end_date"`
	Status         AuthorizationStatus `db:"status" json:"status"`
}

// WeeksRemaining counts whole weeks from now until the authorization
// expires, never less than 1.
func (a ServiceAuthorization) WeeksRemaining(now time.Time) int {
	weeks := int(a.EndDate.Sub(now).Hours() / (24 * 7))
	if weeks < 1 {
		return 1
	}
	return weeks
}

// BillableUnits converts a session duration to billing units, rounding
// partial units up.
func BillableUnits(durationMinutes int) int {
	hours := float64(durationMinutes) / 60.0
	return int(math.Ceil(hours * UnitsPerHour))
}
