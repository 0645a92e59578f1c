package models

import "time"

// TechnicianStatus represents the lifecycle state of a technician profile.
type TechnicianStatus string

const (
	TechnicianStatusActive   TechnicianStatus = "ACTIVE"
	TechnicianStatusInactive TechnicianStatus = "INACTIVE"
)

// TechnicianProfile describes a mobile technician assignable to client
// sessions. Owned by the profile store; read-only to the scheduling core.
type TechnicianProfile struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	FirstName       string           `db:"first_name" json:"first_name"`
	LastName        string           `db:"last_name" json:"last_name"`
	Email           string           `db:"email" json:"email"`
	MaxHoursPerWeek float64          `db:"max_hours_per_week" json:"max_hours_per_week"`
	Skills          []string         `db:"-" json:"skills"`
	HomeLocation    string           `db:"home_location" json:"home_location"`
	ServiceAreas    []string         `db:"-" json:"service_areas"`
	Status          TechnicianStatus `db:"status" json:"status"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}
