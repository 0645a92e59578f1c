package dto

import (
	"time"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// AvailabilitySlotInput is one requested weekly window. Start/end
// ordering is checked by the service since it spans two fields.
type AvailabilitySlotInput struct {
	DayOfWeek   int  `json:"day_of_week" validate:"min=0,max=6"`
	StartMinute int  `json:"start_minute" validate:"min=0,max=1440"`
	EndMinute   int  `json:"end_minute" validate:"min=0,max=1440"`
	Recurring   bool `json:"recurring"`
}

// SetAvailabilityRequest replaces a technician's weekly availability
// wholesale.
type SetAvailabilityRequest struct {
	TechnicianID string                  `json:"technician_id" validate:"required"`
	Slots        []AvailabilitySlotInput `json:"slots" validate:"dive"`
}

// TimeOffRequestInput opens a pending time-off request.
type TimeOffRequestInput struct {
	TechnicianID string    `json:"technician_id" validate:"required"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	Reason       string    `json:"reason"`
}

// OptimizeScheduleRequest scopes one optimization run.
type OptimizeScheduleRequest struct {
	UserID      string                             `json:"user_id" validate:"required"`
	WeekStart   time.Time                          `json:"week_start" validate:"required"`
	Constraints models.OptimizationConstraints     `json:"constraints"`
	Weights     models.PriorityWeights             `json:"weights"`
	Preferences []models.PatientSchedulePreference `json:"preferences"`
}

// CreateScheduleRequest opens a new draft weekly schedule.
type CreateScheduleRequest struct {
	UserID       string                      `json:"user_id" validate:"required"`
	TechnicianID string                      `json:"technician_id" validate:"required"`
	WeekStart    time.Time                   `json:"week_start" validate:"required"`
	Assignments  []models.ScheduleAssignment `json:"assignments"`
}
