package models

import "time"

// ScheduleStatus represents lifecycle phases of a weekly schedule.
type ScheduleStatus string

const (
	ScheduleStatusDraft     ScheduleStatus = "DRAFT"
	ScheduleStatusPublished ScheduleStatus = "PUBLISHED"
	// ScheduleStatusModified is declared in the data model but is never
	// produced automatically; marking an edited published schedule is
	// left to the embedding application.
	ScheduleStatusModified ScheduleStatus = "MODIFIED"
)

// ScheduleAssignment is one session commitment inside a weekly schedule.
// It has no lifecycle of its own.
type ScheduleAssignment struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	DayOfWeek   int    `json:"day_of_week"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	ServiceCode string `json:"service_code"`
	Location    string `json:"location"`
}

// DurationMinutes returns the assignment length in minutes.
func (a ScheduleAssignment) DurationMinutes() int {
	return a.EndMinute - a.StartMinute
}

// Overlaps reports whether two assignments on the same day intersect.
func (a ScheduleAssignment) Overlaps(other ScheduleAssignment) bool {
	return a.DayOfWeek == other.DayOfWeek &&
		a.StartMinute < other.EndMinute && a.EndMinute > other.StartMinute
}

// WeeklySchedule is a technician's proposed or published assignment set
// for one week.
type WeeklySchedule struct {
	ID                 string               `json:"id"`
	UserID             string               `json:"user_id"`
	TechnicianID       string               `json:"technician_id"`
	WeekStart          time.Time            `json:"week_start"`
	WeekEnd            time.Time            `json:"week_end"`
	Assignments        []ScheduleAssignment `json:"assignments"`
	ScheduledHours     float64              `json:"scheduled_hours"`
	AvailableHours     float64              `json:"available_hours"`
	UtilizationPercent float64              `json:"utilization_percent"`
	Conflicts          []ScheduleConflict   `json:"conflicts,omitempty"`
	Status             ScheduleStatus       `json:"status"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// TotalScheduledHours sums assignment durations in hours.
func (s *WeeklySchedule) TotalScheduledHours() float64 {
	total := 0
	for _, a := range s.Assignments {
		total += a.DurationMinutes()
	}
	return float64(total) / 60.0
}

// RecomputeDerived refreshes scheduled hours and utilization after the
// assignment list changed.
func (s *WeeklySchedule) RecomputeDerived() {
	s.ScheduledHours = s.TotalScheduledHours()
	if s.AvailableHours > 0 {
		s.UtilizationPercent = s.ScheduledHours / s.AvailableHours * 100
	} else {
		s.UtilizationPercent = 0
	}
}

// FindAssignment returns a pointer into the assignment list, or nil.
func (s *WeeklySchedule) FindAssignment(id string) *ScheduleAssignment {
	for i := range s.Assignments {
		if s.Assignments[i].ID == id {
			return &s.Assignments[i]
		}
	}
	return nil
}
