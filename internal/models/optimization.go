package models

import "time"

// PatientSchedulePreference is the per-client demand specification. When
// a client has no explicit preference one is synthesized from their
// authorization budget.
type PatientSchedulePreference struct {
	ClientID             string   `json:"client_id"`
	PreferredTechnicians []string `json:"preferred_technicians"`
	PreferredDays        []int    `json:"preferred_days"`
	PreferredStartMinute int      `json:"preferred_start_minute"`
	PreferredEndMinute   int      `json:"preferred_end_minute"`
	SessionsPerWeek      int      `json:"sessions_per_week"`
	SessionMinutes       int      `json:"session_minutes"`
	ServiceCode          string   `json:"service_code"`
	Location             string   `json:"location"`
}

// OptimizationConstraints are optional hard limits on the generated
// schedules.
type OptimizationConstraints struct {
	MaxHoursPerDay      float64  `json:"max_hours_per_day"`
	MaxHoursPerWeek     float64  `json:"max_hours_per_week"`
	PreferredLocations  []string `json:"preferred_locations"`
	ExcludedTechnicians []string `json:"excluded_technicians"`
}

// PriorityWeights are 0-1 dials for the post-processing passes and the
// quality metrics.
type PriorityWeights struct {
	TravelMinimization  float64 `json:"travel_minimization"`
	Utilization         float64 `json:"utilization"`
	WorkloadBalance     float64 `json:"workload_balance"`
	PreferenceAdherence float64 `json:"preference_adherence"`
}

// OptimizationMetrics summarise the quality of a produced week.
type OptimizationMetrics struct {
	TotalSessions       int     `json:"total_sessions"`
	TotalHours          float64 `json:"total_hours"`
	Utilization         float64 `json:"utilization"`
	PreferenceAdherence float64 `json:"preference_adherence"`
	WorkloadVariance    float64 `json:"workload_variance"`
}

// OptimizationResult is always returned; infeasibility is reported
// in-band through Success, UnassignedClients and Warnings.
type OptimizationResult struct {
	Success           bool                `json:"success"`
	WeekStart         time.Time           `json:"week_start"`
	Schedules         []WeeklySchedule    `json:"schedules"`
	Metrics           OptimizationMetrics `json:"metrics"`
	UnassignedClients []string            `json:"unassigned_clients"`
	Warnings          []string            `json:"warnings"`
}
