package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/events"
	"github.com/bridgecare/scheduling-core/internal/lock"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

type scheduleStore interface {
	CreateSchedule(ctx context.Context, schedule *models.WeeklySchedule) error
	GetSchedule(ctx context.Context, userID, scheduleID string) (*models.WeeklySchedule, error)
	UpdateSchedule(ctx context.Context, schedule *models.WeeklySchedule) error
	DeleteSchedule(ctx context.Context, userID, scheduleID string) error
	ListSchedules(ctx context.Context, userID string, weekStart time.Time) ([]models.WeeklySchedule, error)
	GetScheduleByTechnician(ctx context.Context, userID, technicianID string, weekStart time.Time) (*models.WeeklySchedule, error)
}

type optimizer interface {
	Optimize(ctx context.Context, req dto.OptimizeScheduleRequest) (*models.OptimizationResult, error)
}

// SchedulingService is the integration facade: schedule CRUD, the
// publish precondition, and serialized optimization runs.
type SchedulingService struct {
	schedules scheduleStore
	conflicts conflictDetector
	optimizer optimizer
	locker    lock.Locker
	metrics   *MetricsService
	validator *validator.Validate
	ids       ids.Generator
	sink      events.Sink
	logger    *zap.Logger
}

// NewSchedulingService wires the facade.
func NewSchedulingService(
	schedules scheduleStore,
	conflicts conflictDetector,
	opt optimizer,
	locker lock.Locker,
	metrics *MetricsService,
	validate *validator.Validate,
	idGen ids.Generator,
	sink events.Sink,
	logger *zap.Logger,
) *SchedulingService {
	if locker == nil {
		locker = lock.Unlocked{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if idGen == nil {
		idGen = ids.NewUUIDGenerator()
	}
	if sink == nil {
		sink = events.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{
		schedules: schedules,
		conflicts: conflicts,
		optimizer: opt,
		locker:    locker,
		metrics:   metrics,
		validator: validate,
		ids:       idGen,
		sink:      sink,
		logger:    logger,
	}
}

// CreateSchedule opens a new draft weekly schedule.
func (s *SchedulingService) CreateSchedule(ctx context.Context, req dto.CreateScheduleRequest) (*models.WeeklySchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	now := time.Now().UTC()
	schedule := &models.WeeklySchedule{
		ID:           s.ids.NewID(),
		UserID:       req.UserID,
		TechnicianID: req.TechnicianID,
		WeekStart:    req.WeekStart,
		WeekEnd:      req.WeekStart.AddDate(0, 0, 6),
		Assignments:  req.Assignments,
		Status:       models.ScheduleStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	schedule.RecomputeDerived()

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.emit(ctx, models.EventScheduleCreated, map[string]any{
		"schedule_id":   schedule.ID,
		"technician_id": schedule.TechnicianID,
	})
	return schedule, nil
}

// GetSchedule loads one schedule.
func (s *SchedulingService) GetSchedule(ctx context.Context, userID, scheduleID string) (*models.WeeklySchedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "schedule not found")
	}
	return schedule, nil
}

// ListSchedules returns every schedule for the week.
func (s *SchedulingService) ListSchedules(ctx context.Context, userID string, weekStart time.Time) ([]models.WeeklySchedule, error) {
	schedules, err := s.schedules.ListSchedules(ctx, userID, weekStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, nil
}

// GetScheduleByTechnician loads a technician's schedule for the week.
func (s *SchedulingService) GetScheduleByTechnician(ctx context.Context, userID, technicianID string, weekStart time.Time) (*models.WeeklySchedule, error) {
	schedule, err := s.schedules.GetScheduleByTechnician(ctx, userID, technicianID, weekStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "schedule not found")
	}
	return schedule, nil
}

// AddAssignment appends a session to the schedule. Published schedules
// keep their status; flipping to MODIFIED is left to the embedder.
func (s *SchedulingService) AddAssignment(ctx context.Context, userID, scheduleID string, assignment models.ScheduleAssignment) (*models.WeeklySchedule, error) {
	schedule, err := s.GetSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, err
	}
	if assignment.ID == "" {
		assignment.ID = s.ids.NewID()
	}
	schedule.Assignments = append(schedule.Assignments, assignment)
	return s.saveUpdated(ctx, schedule)
}

// RemoveAssignment deletes a session from the schedule.
func (s *SchedulingService) RemoveAssignment(ctx context.Context, userID, scheduleID, assignmentID string) (*models.WeeklySchedule, error) {
	schedule, err := s.GetSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, err
	}
	found := false
	for i, a := range schedule.Assignments {
		if a.ID == assignmentID {
			schedule.Assignments = append(schedule.Assignments[:i], schedule.Assignments[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found on schedule")
	}
	return s.saveUpdated(ctx, schedule)
}

func (s *SchedulingService) saveUpdated(ctx context.Context, schedule *models.WeeklySchedule) (*models.WeeklySchedule, error) {
	schedule.RecomputeDerived()
	schedule.UpdatedAt = time.Now().UTC()
	if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	s.emit(ctx, models.EventScheduleUpdated, map[string]any{"schedule_id": schedule.ID})
	return schedule, nil
}

// DeleteSchedule removes a schedule.
func (s *SchedulingService) DeleteSchedule(ctx context.Context, userID, scheduleID string) error {
	if err := s.schedules.DeleteSchedule(ctx, userID, scheduleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "schedule not found")
	}
	s.emit(ctx, models.EventScheduleDeleted, map[string]any{"schedule_id": scheduleID})
	return nil
}

// PublishSchedule re-runs conflict detection immediately before the
// status flip and refuses while any error-severity conflict remains.
// Warnings never block.
func (s *SchedulingService) PublishSchedule(ctx context.Context, userID, scheduleID string) (*models.WeeklySchedule, error) {
	schedule, err := s.GetSchedule(ctx, userID, scheduleID)
	if err != nil {
		return nil, err
	}

	conflicts := s.conflicts.DetectConflicts(ctx, userID, schedule)
	schedule.Conflicts = conflicts
	s.metrics.ObserveConflictDetection(conflicts)

	var blocking []string
	for _, conflict := range conflicts {
		if conflict.IsBlocking() {
			blocking = append(blocking, conflict.Description)
		}
	}
	if len(blocking) > 0 {
		s.metrics.ObservePublish(false)
		return nil, appErrors.Clone(appErrors.ErrPublishBlocked,
			"cannot publish schedule: "+strings.Join(blocking, "; "))
	}

	schedule.Status = models.ScheduleStatusPublished
	schedule.UpdatedAt = time.Now().UTC()
	if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish schedule")
	}

	s.metrics.ObservePublish(true)
	s.emit(ctx, models.EventSchedulePublished, map[string]any{
		"schedule_id":   schedule.ID,
		"technician_id": schedule.TechnicianID,
	})
	return schedule, nil
}

// RunOptimization executes one optimization run under the per
// (user, week) lock, persists the produced drafts, and reports metrics.
// A concurrent run for the same scope is rejected in-band.
func (s *SchedulingService) RunOptimization(ctx context.Context, req dto.OptimizeScheduleRequest) (*models.OptimizationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimization payload")
	}

	var result *models.OptimizationResult
	err := s.locker.WithOptimizationLock(ctx, req.UserID, req.WeekStart, func(ctx context.Context) error {
		started := time.Now()
		var optErr error
		result, optErr = s.optimizer.Optimize(ctx, req)
		if optErr != nil {
			return optErr
		}

		for i := range result.Schedules {
			if err := s.schedules.CreateSchedule(ctx, &result.Schedules[i]); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist optimized schedule")
			}
		}

		s.metrics.ObserveOptimizationRun(time.Since(started), result)
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.Clone(appErrors.ErrLocked, "an optimization run for this week is already in progress")
		}
		return nil, err
	}

	s.emit(ctx, models.EventOptimizationCompleted, map[string]any{
		"week_start":         req.WeekStart.Format("2006-01-02"),
		"success":            result.Success,
		"schedules":          len(result.Schedules),
		"unassigned_clients": len(result.UnassignedClients),
	})
	return result, nil
}

func (s *SchedulingService) emit(ctx context.Context, eventType models.EventType, payload map[string]any) {
	s.sink.Record(ctx, models.DomainEvent{
		ID:         s.ids.NewID(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}
