package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bridgecare/scheduling-core/internal/events"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

type appointmentStore interface {
	ListAppointments(ctx context.Context, userID string, filter models.AppointmentFilter) ([]models.Appointment, error)
}

type authorizationStore interface {
	ListActiveAuthorizations(ctx context.Context, userID, clientID string) ([]models.ServiceAuthorization, error)
	GetAuthorizationForService(ctx context.Context, userID, clientID, serviceCode string) (*models.ServiceAuthorization, error)
}

// ConflictConfig tunes the travel-time rule. Travel estimation is a
// placeholder constant until real geocoding is wired in.
type ConflictConfig struct {
	TravelBufferMinutes  int
	RescheduleGapMinutes int
}

// ConflictService runs the conflict-detection rules against a weekly
// schedule and proposes remediations for individual conflicts.
type ConflictService struct {
	schedules      scheduleStore
	appointments   appointmentStore
	authorizations authorizationStore
	ids            ids.Generator
	sink           events.Sink
	logger         *zap.Logger
	cfg            ConflictConfig
}

// NewConflictService wires conflict-detection dependencies.
func NewConflictService(
	schedules scheduleStore,
	appointments appointmentStore,
	authorizations authorizationStore,
	idGen ids.Generator,
	sink events.Sink,
	logger *zap.Logger,
	cfg ConflictConfig,
) *ConflictService {
	if idGen == nil {
		idGen = ids.NewUUIDGenerator()
	}
	if sink == nil {
		sink = events.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TravelBufferMinutes <= 0 {
		cfg.TravelBufferMinutes = 30
	}
	if cfg.RescheduleGapMinutes <= 0 {
		cfg.RescheduleGapMinutes = 15
	}
	return &ConflictService{
		schedules:      schedules,
		appointments:   appointments,
		authorizations: authorizations,
		ids:            idGen,
		sink:           sink,
		logger:         logger,
		cfg:            cfg,
	}
}

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func dayName(day int) string {
	if day < 0 || day > 6 {
		return fmt.Sprintf("day %d", day)
	}
	return dayNames[day]
}

// DetectConflicts runs the four detection rules independently and
// concatenates their findings. Detection never fails: store errors
// degrade the affected rule and are logged, not returned.
func (s *ConflictService) DetectConflicts(ctx context.Context, userID string, schedule *models.WeeklySchedule) []models.ScheduleConflict {
	conflicts := s.detectDoubleBookings(schedule)
	conflicts = append(conflicts, s.detectTravelConflicts(schedule)...)
	conflicts = append(conflicts, s.detectAppointmentOverlaps(ctx, userID, schedule)...)
	conflicts = append(conflicts, s.detectAuthorizationConflicts(ctx, userID, schedule)...)
	return conflicts
}

// detectDoubleBookings scans all same-day assignment pairs for interval
// overlap. Every overlapping pair is reported exactly once.
func (s *ConflictService) detectDoubleBookings(schedule *models.WeeklySchedule) []models.ScheduleConflict {
	var conflicts []models.ScheduleConflict
	assignments := schedule.Assignments
	for i := 0; i < len(assignments); i++ {
		for j := i + 1; j < len(assignments); j++ {
			if !assignments[i].Overlaps(assignments[j]) {
				continue
			}
			conflicts = append(conflicts, models.ScheduleConflict{
				ID:       s.ids.NewID(),
				Type:     models.ConflictDoubleBooking,
				Severity: models.SeverityError,
				Description: fmt.Sprintf("sessions for clients %s and %s overlap on %s",
					assignments[i].ClientID, assignments[j].ClientID, dayName(assignments[i].DayOfWeek)),
				AssignmentIDs: []string{assignments[i].ID, assignments[j].ID},
				Metadata: map[string]any{
					"day_of_week": assignments[i].DayOfWeek,
				},
			})
		}
	}
	return conflicts
}

// estimateTravelMinutes is a placeholder for geocoding-backed travel
// estimation: zero within one location, a flat buffer otherwise.
func (s *ConflictService) estimateTravelMinutes(from, to string) int {
	if from == to {
		return 0
	}
	return s.cfg.TravelBufferMinutes
}

func (s *ConflictService) detectTravelConflicts(schedule *models.WeeklySchedule) []models.ScheduleConflict {
	byDay := make(map[int][]models.ScheduleAssignment)
	for _, a := range schedule.Assignments {
		byDay[a.DayOfWeek] = append(byDay[a.DayOfWeek], a)
	}

	var conflicts []models.ScheduleConflict
	for day := 0; day <= 6; day++ {
		assignments := byDay[day]
		if len(assignments) < 2 {
			continue
		}
		sort.Slice(assignments, func(i, j int) bool { return assignments[i].StartMinute < assignments[j].StartMinute })
		for i := 0; i < len(assignments)-1; i++ {
			current, next := assignments[i], assignments[i+1]
			if current.Location == next.Location {
				continue
			}
			required := s.estimateTravelMinutes(current.Location, next.Location)
			gap := next.StartMinute - current.EndMinute
			if gap >= required {
				continue
			}
			conflicts = append(conflicts, models.ScheduleConflict{
				ID:       s.ids.NewID(),
				Type:     models.ConflictTravelTime,
				Severity: models.SeverityWarning,
				Description: fmt.Sprintf("only %d minutes to travel from %s to %s on %s, %d needed",
					gap, current.Location, next.Location, dayName(day), required),
				AssignmentIDs: []string{current.ID, next.ID},
				Metadata: map[string]any{
					"gap_minutes":      gap,
					"required_minutes": required,
					"from_location":    current.Location,
					"to_location":      next.Location,
				},
			})
		}
	}
	return conflicts
}

func (s *ConflictService) detectAppointmentOverlaps(ctx context.Context, userID string, schedule *models.WeeklySchedule) []models.ScheduleConflict {
	if s.appointments == nil {
		return nil
	}
	booked, err := s.appointments.ListAppointments(ctx, userID, models.AppointmentFilter{
		TechnicianID: schedule.TechnicianID,
		StartDate:    schedule.WeekStart,
		EndDate:      schedule.WeekEnd,
	})
	if err != nil {
		s.logger.Warn("appointment overlap rule skipped",
			zap.String("technician_id", schedule.TechnicianID), zap.Error(err))
		return nil
	}

	var conflicts []models.ScheduleConflict
	for _, assignment := range schedule.Assignments {
		date := models.DateForDay(schedule.WeekStart, assignment.DayOfWeek)
		assignStart := date.Add(time.Duration(assignment.StartMinute) * time.Minute)
		assignEnd := date.Add(time.Duration(assignment.EndMinute) * time.Minute)

		for _, appointment := range booked {
			if appointment.ClientID == assignment.ClientID {
				// Same-client bookings are assumed intentional.
				continue
			}
			if assignStart.Before(appointment.EndTime) && assignEnd.After(appointment.StartTime) {
				conflicts = append(conflicts, models.ScheduleConflict{
					ID:       s.ids.NewID(),
					Type:     models.ConflictAppointmentOverlap,
					Severity: models.SeverityError,
					Description: fmt.Sprintf("session for client %s on %s overlaps booked appointment %s",
						assignment.ClientID, dayName(assignment.DayOfWeek), appointment.ID),
					AssignmentIDs: []string{assignment.ID},
					Metadata: map[string]any{
						"appointment_id":     appointment.ID,
						"appointment_client": appointment.ClientID,
					},
				})
			}
		}
	}
	return conflicts
}

func (s *ConflictService) detectAuthorizationConflicts(ctx context.Context, userID string, schedule *models.WeeklySchedule) []models.ScheduleConflict {
	if s.authorizations == nil {
		return nil
	}

	type groupKey struct {
		clientID    string
		serviceCode string
	}
	groups := make(map[groupKey][]models.ScheduleAssignment)
	var order []groupKey
	for _, a := range schedule.Assignments {
		key := groupKey{clientID: a.ClientID, serviceCode: a.ServiceCode}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	var conflicts []models.ScheduleConflict
	for _, key := range order {
		assignments := groups[key]
		assignmentIDs := make([]string, 0, len(assignments))
		unitsScheduled := 0
		for _, a := range assignments {
			assignmentIDs = append(assignmentIDs, a.ID)
			unitsScheduled += models.BillableUnits(a.DurationMinutes())
		}

		authorization, err := s.authorizations.GetAuthorizationForService(ctx, userID, key.clientID, key.serviceCode)
		if err != nil {
			s.logger.Warn("authorization rule degraded",
				zap.String("client_id", key.clientID), zap.String("service_code", key.serviceCode), zap.Error(err))
			continue
		}
		if authorization == nil || authorization.Status != models.AuthorizationStatusActive {
			conflicts = append(conflicts, models.ScheduleConflict{
				ID:       s.ids.NewID(),
				Type:     models.ConflictAuthorizationMissing,
				Severity: models.SeverityError,
				Description: fmt.Sprintf("no active authorization for client %s service %s",
					key.clientID, key.serviceCode),
				AssignmentIDs: assignmentIDs,
				Metadata: map[string]any{
					"client_id":    key.clientID,
					"service_code": key.serviceCode,
				},
			})
			continue
		}
		if unitsScheduled > authorization.RemainingUnits {
			conflicts = append(conflicts, models.ScheduleConflict{
				ID:       s.ids.NewID(),
				Type:     models.ConflictAuthorizationExceeded,
				Severity: models.SeverityWarning,
				Description: fmt.Sprintf("client %s scheduled for %d units with only %d remaining",
					key.clientID, unitsScheduled, authorization.RemainingUnits),
				AssignmentIDs: assignmentIDs,
				Metadata: map[string]any{
					"units_scheduled": unitsScheduled,
					"units_remaining": authorization.RemainingUnits,
					"units_over":      unitsScheduled - authorization.RemainingUnits,
				},
			})
		}
	}
	return conflicts
}

// SuggestResolutions proposes up to two remediations for a single
// conflict, ranked most-preferred first. The schedule supplies the
// assignment details the directives need.
func (s *ConflictService) SuggestResolutions(conflict models.ScheduleConflict, schedule *models.WeeklySchedule) []models.ResolutionSuggestion {
	switch conflict.Type {
	case models.ConflictDoubleBooking:
		return s.suggestForDoubleBooking(conflict, schedule)
	case models.ConflictTravelTime:
		return s.suggestForTravel(conflict, schedule)
	case models.ConflictAuthorizationExceeded:
		return s.suggestForAuthorizationExceeded(conflict, schedule)
	case models.ConflictAppointmentOverlap:
		return s.suggestForAppointmentOverlap(conflict)
	default:
		return nil
	}
}

func (s *ConflictService) suggestForDoubleBooking(conflict models.ScheduleConflict, schedule *models.WeeklySchedule) []models.ResolutionSuggestion {
	if len(conflict.AssignmentIDs) < 2 {
		return nil
	}
	first := schedule.FindAssignment(conflict.AssignmentIDs[0])
	second := schedule.FindAssignment(conflict.AssignmentIDs[1])
	if first == nil || second == nil {
		return nil
	}

	newStart := first.EndMinute + s.cfg.RescheduleGapMinutes
	newEnd := newStart + second.DurationMinutes()
	return []models.ResolutionSuggestion{
		{
			Type: models.ResolutionReschedule,
			Description: fmt.Sprintf("move the session for client %s to start at minute %d, after the earlier session ends",
				second.ClientID, newStart),
			Changes: []models.ScheduleChange{{
				AssignmentID: second.ID,
				Action:       models.ActionMove,
				Params:       map[string]any{"start_minute": newStart, "end_minute": newEnd},
			}},
			Impact: models.ImpactMedium,
		},
		{
			Type:        models.ResolutionReassign,
			Description: fmt.Sprintf("reassign the session for client %s to a different technician", second.ClientID),
			Changes: []models.ScheduleChange{{
				AssignmentID: second.ID,
				Action:       models.ActionReassign,
			}},
			Impact: models.ImpactLow,
		},
	}
}

func (s *ConflictService) suggestForTravel(conflict models.ScheduleConflict, schedule *models.WeeklySchedule) []models.ResolutionSuggestion {
	if len(conflict.AssignmentIDs) < 2 {
		return nil
	}
	first := schedule.FindAssignment(conflict.AssignmentIDs[0])
	second := schedule.FindAssignment(conflict.AssignmentIDs[1])
	if first == nil || second == nil {
		return nil
	}

	required := s.estimateTravelMinutes(first.Location, second.Location)
	missing := required - (second.StartMinute - first.EndMinute)
	if missing < 0 {
		missing = 0
	}
	return []models.ResolutionSuggestion{
		{
			Type:        models.ResolutionReschedule,
			Description: fmt.Sprintf("push the later session back by %d minutes to allow travel", missing),
			Changes: []models.ScheduleChange{{
				AssignmentID: second.ID,
				Action:       models.ActionMove,
				Params: map[string]any{
					"start_minute": second.StartMinute + missing,
					"end_minute":   second.EndMinute + missing,
				},
			}},
			Impact: models.ImpactLow,
		},
		{
			Type:        models.ResolutionSwap,
			Description: "swap the two sessions' time slots, which may shorten the route",
			Changes: []models.ScheduleChange{{
				AssignmentID: first.ID,
				Action:       models.ActionSwap,
				Params:       map[string]any{"with_assignment_id": second.ID},
			}},
			Impact: models.ImpactMedium,
		},
	}
}

func (s *ConflictService) suggestForAuthorizationExceeded(conflict models.ScheduleConflict, schedule *models.WeeklySchedule) []models.ResolutionSuggestion {
	if len(conflict.AssignmentIDs) == 0 {
		return nil
	}

	reduceChanges := make([]models.ScheduleChange, 0, len(conflict.AssignmentIDs))
	for _, id := range conflict.AssignmentIDs {
		reduceChanges = append(reduceChanges, models.ScheduleChange{
			AssignmentID: id,
			Action:       models.ActionReduce,
			Params:       map[string]any{"units_remaining": conflict.Metadata["units_remaining"]},
		})
	}

	cancelChanges := make([]models.ScheduleChange, 0, len(conflict.AssignmentIDs)-1)
	for _, id := range conflict.AssignmentIDs[1:] {
		cancelChanges = append(cancelChanges, models.ScheduleChange{
			AssignmentID: id,
			Action:       models.ActionCancel,
		})
	}

	suggestions := []models.ResolutionSuggestion{{
		Type:        models.ResolutionSplit,
		Description: "reduce session durations to fit the remaining authorized units",
		Changes:     reduceChanges,
		Impact:      models.ImpactMedium,
	}}
	if len(cancelChanges) > 0 {
		suggestions = append(suggestions, models.ResolutionSuggestion{
			Type:        models.ResolutionCancel,
			Description: "cancel all but the first session for this client",
			Changes:     cancelChanges,
			Impact:      models.ImpactHigh,
		})
	}
	return suggestions
}

func (s *ConflictService) suggestForAppointmentOverlap(conflict models.ScheduleConflict) []models.ResolutionSuggestion {
	if len(conflict.AssignmentIDs) == 0 {
		return nil
	}
	// No deterministic slot search here; the caller supplies the target
	// time before applying.
	return []models.ResolutionSuggestion{{
		Type:        models.ResolutionReschedule,
		Description: "find an alternate time that avoids the booked appointment",
		Changes: []models.ScheduleChange{{
			AssignmentID: conflict.AssignmentIDs[0],
			Action:       models.ActionMove,
		}},
		Impact: models.ImpactMedium,
	}}
}

// ApplyResolution mechanically executes move directives against the
// persisted schedule. Every other directive kind is advisory and is
// intentionally left to the caller; this asymmetry is part of the
// contract.
func (s *ConflictService) ApplyResolution(ctx context.Context, userID, scheduleID string, suggestion models.ResolutionSuggestion) (*models.WeeklySchedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "schedule not found")
	}

	applied := 0
	for _, change := range suggestion.Changes {
		if change.Action != models.ActionMove {
			continue
		}
		start, okStart := minuteParam(change.Params, "start_minute")
		end, okEnd := minuteParam(change.Params, "end_minute")
		if !okStart || !okEnd {
			continue
		}
		assignment := schedule.FindAssignment(change.AssignmentID)
		if assignment == nil {
			continue
		}
		assignment.StartMinute = start
		assignment.EndMinute = end
		applied++
	}

	if applied == 0 {
		return schedule, nil
	}

	schedule.RecomputeDerived()
	if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}

	s.sink.Record(ctx, models.DomainEvent{
		ID:         s.ids.NewID(),
		Type:       models.EventConflictResolved,
		OccurredAt: time.Now().UTC(),
		Payload: map[string]any{
			"schedule_id":     schedule.ID,
			"resolution_type": string(suggestion.Type),
			"changes_applied": applied,
		},
	})
	return schedule, nil
}

func minuteParam(params map[string]any, key string) (int, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
