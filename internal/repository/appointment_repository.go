package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// AppointmentRepository exposes read-only access to booked appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// ListAppointments returns bookings for a technician within a window.
func (r *AppointmentRepository) ListAppointments(ctx context.Context, userID string, filter models.AppointmentFilter) ([]models.Appointment, error) {
	const query = `SELECT id, user_id, technician_id, client_id, start_time, end_time, status
		FROM appointments
		WHERE user_id = $1 AND technician_id = $2 AND start_time < $4 AND end_time > $3
		ORDER BY start_time`
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, userID, filter.TechnicianID, filter.StartDate, filter.EndDate); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
