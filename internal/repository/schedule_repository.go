package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// ScheduleRepository persists weekly schedules. Assignments travel as a
// JSON document on the schedule row; conflicts are ephemeral and never
// stored.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

type scheduleRow struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	TechnicianID       string         `db:"technician_id"`
	WeekStart          time.Time      `db:"week_start"`
	WeekEnd            time.Time      `db:"week_end"`
	Assignments        types.JSONText `db:"assignments"`
	ScheduledHours     float64        `db:"scheduled_hours"`
	AvailableHours     float64        `db:"available_hours"`
	UtilizationPercent float64        `db:"utilization_percent"`
	Status             string         `db:"status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func toScheduleRow(schedule *models.WeeklySchedule) (*scheduleRow, error) {
	assignments := schedule.Assignments
	if assignments == nil {
		assignments = []models.ScheduleAssignment{}
	}
	payload, err := json.Marshal(assignments)
	if err != nil {
		return nil, fmt.Errorf("encode assignments: %w", err)
	}
	return &scheduleRow{
		ID:                 schedule.ID,
		UserID:             schedule.UserID,
		TechnicianID:       schedule.TechnicianID,
		WeekStart:          schedule.WeekStart,
		WeekEnd:            schedule.WeekEnd,
		Assignments:        types.JSONText(payload),
		ScheduledHours:     schedule.ScheduledHours,
		AvailableHours:     schedule.AvailableHours,
		UtilizationPercent: schedule.UtilizationPercent,
		Status:             string(schedule.Status),
		CreatedAt:          schedule.CreatedAt,
		UpdatedAt:          schedule.UpdatedAt,
	}, nil
}

func (row *scheduleRow) toModel() (*models.WeeklySchedule, error) {
	schedule := &models.WeeklySchedule{
		ID:                 row.ID,
		UserID:             row.UserID,
		TechnicianID:       row.TechnicianID,
		WeekStart:          row.WeekStart,
		WeekEnd:            row.WeekEnd,
		ScheduledHours:     row.ScheduledHours,
		AvailableHours:     row.AvailableHours,
		UtilizationPercent: row.UtilizationPercent,
		Status:             models.ScheduleStatus(row.Status),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if len(row.Assignments) > 0 {
		if err := json.Unmarshal(row.Assignments, &schedule.Assignments); err != nil {
			return nil, fmt.Errorf("decode assignments: %w", err)
		}
	}
	return schedule, nil
}

const scheduleColumns = `id, user_id, technician_id, week_start, week_end, assignments, scheduled_hours, available_hours, utilization_percent, status, created_at, updated_at`

// CreateSchedule inserts a new schedule row.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule *models.WeeklySchedule) error {
	row, err := toScheduleRow(schedule)
	if err != nil {
		return err
	}
	const query = `INSERT INTO weekly_schedules (` + scheduleColumns + `)
		VALUES (:id, :user_id, :technician_id, :week_start, :week_end, :assignments, :scheduled_hours, :available_hours, :utilization_percent, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule loads one schedule within a user scope.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, userID, scheduleID string) (*models.WeeklySchedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM weekly_schedules WHERE user_id = $1 AND id = $2`
	var row scheduleRow
	if err := r.db.GetContext(ctx, &row, query, userID, scheduleID); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return row.toModel()
}

// UpdateSchedule rewrites a schedule row.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule *models.WeeklySchedule) error {
	row, err := toScheduleRow(schedule)
	if err != nil {
		return err
	}
	const query = `UPDATE weekly_schedules
		SET assignments = :assignments, scheduled_hours = :scheduled_hours, available_hours = :available_hours,
		    utilization_percent = :utilization_percent, status = :status, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, userID, scheduleID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM weekly_schedules WHERE user_id = $1 AND id = $2`, userID, scheduleID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// ListSchedules returns every schedule for a week.
func (r *ScheduleRepository) ListSchedules(ctx context.Context, userID string, weekStart time.Time) ([]models.WeeklySchedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM weekly_schedules WHERE user_id = $1 AND week_start = $2 ORDER BY technician_id`
	var rows []scheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, weekStart); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	schedules := make([]models.WeeklySchedule, 0, len(rows))
	for i := range rows {
		schedule, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, nil
}

// GetScheduleByTechnician loads a technician's schedule for a week.
func (r *ScheduleRepository) GetScheduleByTechnician(ctx context.Context, userID, technicianID string, weekStart time.Time) (*models.WeeklySchedule, error) {
	const query = `SELECT ` + scheduleColumns + ` FROM weekly_schedules WHERE user_id = $1 AND technician_id = $2 AND week_start = $3`
	var row scheduleRow
	if err := r.db.GetContext(ctx, &row, query, userID, technicianID, weekStart); err != nil {
		return nil, fmt.Errorf("load technician schedule: %w", err)
	}
	return row.toModel()
}
