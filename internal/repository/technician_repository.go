package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// TechnicianRepository backs the profile store: technician rosters,
// weekly availability and time off.
type TechnicianRepository struct {
	db *sqlx.DB
}

// NewTechnicianRepository constructs the repository.
func NewTechnicianRepository(db *sqlx.DB) *TechnicianRepository {
	return &TechnicianRepository{db: db}
}

// GetActiveTechnicians lists active technicians within a user scope.
func (r *TechnicianRepository) GetActiveTechnicians(ctx context.Context, userID string) ([]models.TechnicianProfile, error) {
	const query = `SELECT id, user_id, first_name, last_name, email, max_hours_per_week, home_location, status, created_at, updated_at
		FROM technicians WHERE user_id = $1 AND status = $2 ORDER BY last_name, first_name`
	var technicians []models.TechnicianProfile
	if err := r.db.SelectContext(ctx, &technicians, query, userID, models.TechnicianStatusActive); err != nil {
		return nil, fmt.Errorf("list active technicians: %w", err)
	}
	return technicians, nil
}

// ReplaceAvailability swaps a technician's weekly slots wholesale inside
// one transaction.
func (r *TechnicianRepository) ReplaceAvailability(ctx context.Context, technicianID string, slots []models.AvailabilitySlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin availability replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots WHERE technician_id = $1`, technicianID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}

	const insert = `INSERT INTO availability_slots (id, technician_id, day_of_week, start_minute, end_minute, recurring, created_at, updated_at)
		VALUES (:id, :technician_id, :day_of_week, :start_minute, :end_minute, :recurring, :created_at, :updated_at)`
	for _, slot := range slots {
		if _, err := tx.NamedExecContext(ctx, insert, slot); err != nil {
			return fmt.Errorf("insert availability slot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit availability replace: %w", err)
	}
	return nil
}

// GetAvailability returns the stored weekly slots sorted by day and
// start minute.
func (r *TechnicianRepository) GetAvailability(ctx context.Context, technicianID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, technician_id, day_of_week, start_minute, end_minute, recurring, created_at, updated_at
		FROM availability_slots WHERE technician_id = $1 ORDER BY day_of_week, start_minute`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, technicianID); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// ListTimeOff returns time-off records intersecting the window.
func (r *TechnicianRepository) ListTimeOff(ctx context.Context, technicianID string, from, to time.Time) ([]models.TimeOffRecord, error) {
	const query = `SELECT id, technician_id, start_date, end_date, reason, created_at
		FROM time_off_records WHERE technician_id = $1 AND start_date <= $3 AND end_date >= $2 ORDER BY start_date`
	var records []models.TimeOffRecord
	if err := r.db.SelectContext(ctx, &records, query, technicianID, from, to); err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	return records, nil
}

// AddTimeOff inserts a materialized time-off record.
func (r *TechnicianRepository) AddTimeOff(ctx context.Context, record *models.TimeOffRecord) error {
	const query = `INSERT INTO time_off_records (id, technician_id, start_date, end_date, reason, created_at)
		VALUES (:id, :technician_id, :start_date, :end_date, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert time off record: %w", err)
	}
	return nil
}

// RemoveTimeOff deletes a time-off record.
func (r *TechnicianRepository) RemoveTimeOff(ctx context.Context, recordID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM time_off_records WHERE id = $1`, recordID); err != nil {
		return fmt.Errorf("delete time off record: %w", err)
	}
	return nil
}

// CreateTimeOffRequest inserts a pending request.
func (r *TechnicianRepository) CreateTimeOffRequest(ctx context.Context, request *models.TimeOffRequest) error {
	const query = `INSERT INTO time_off_requests (id, technician_id, start_date, end_date, reason, status, requested_at, reviewed_at, reviewed_by)
		VALUES (:id, :technician_id, :start_date, :end_date, :reason, :status, :requested_at, :reviewed_at, :reviewed_by)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("insert time off request: %w", err)
	}
	return nil
}

// GetTimeOffRequest loads one request.
func (r *TechnicianRepository) GetTimeOffRequest(ctx context.Context, requestID string) (*models.TimeOffRequest, error) {
	const query = `SELECT id, technician_id, start_date, end_date, reason, status, requested_at, reviewed_at, reviewed_by
		FROM time_off_requests WHERE id = $1`
	var request models.TimeOffRequest
	if err := r.db.GetContext(ctx, &request, query, requestID); err != nil {
		return nil, fmt.Errorf("load time off request: %w", err)
	}
	return &request, nil
}

// UpdateTimeOffRequest persists a review decision.
func (r *TechnicianRepository) UpdateTimeOffRequest(ctx context.Context, request *models.TimeOffRequest) error {
	const query = `UPDATE time_off_requests
		SET status = :status, reviewed_at = :reviewed_at, reviewed_by = :reviewed_by
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("update time off request: %w", err)
	}
	return nil
}
