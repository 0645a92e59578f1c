package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/events"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

type availabilityStore interface {
	ReplaceAvailability(ctx context.Context, technicianID string, slots []models.AvailabilitySlot) error
	GetAvailability(ctx context.Context, technicianID string) ([]models.AvailabilitySlot, error)
}

type timeOffStore interface {
	ListTimeOff(ctx context.Context, technicianID string, from, to time.Time) ([]models.TimeOffRecord, error)
	AddTimeOff(ctx context.Context, record *models.TimeOffRecord) error
	CreateTimeOffRequest(ctx context.Context, request *models.TimeOffRequest) error
	GetTimeOffRequest(ctx context.Context, requestID string) (*models.TimeOffRequest, error)
	UpdateTimeOffRequest(ctx context.Context, request *models.TimeOffRequest) error
}

// AvailabilityService owns recurring weekly availability and the
// time-off workflow for technicians.
type AvailabilityService struct {
	availability availabilityStore
	timeOff      timeOffStore
	validator    *validator.Validate
	ids          ids.Generator
	sink         events.Sink
	logger       *zap.Logger
}

// NewAvailabilityService wires availability dependencies.
func NewAvailabilityService(
	availability availabilityStore,
	timeOff timeOffStore,
	validate *validator.Validate,
	idGen ids.Generator,
	sink events.Sink,
	logger *zap.Logger,
) *AvailabilityService {
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
	return &AvailabilityService{
		availability: availability,
		timeOff:      timeOff,
		validator:    validate,
		ids:          idGen,
		sink:         sink,
		logger:       logger,
	}
}

// SetAvailability validates, normalizes and persists a technician's
// weekly availability wholesale. Any malformed slot fails the whole call
// without mutation.
func (s *AvailabilityService) SetAvailability(ctx context.Context, req dto.SetAvailabilityRequest) ([]models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	for _, slot := range req.Slots {
		if slot.StartMinute >= slot.EndMinute {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("slot on day %d must start before it ends (%d >= %d)", slot.DayOfWeek, slot.StartMinute, slot.EndMinute))
		}
	}

	merged := s.normalizeSlots(req.TechnicianID, req.Slots)
	if err := s.availability.ReplaceAvailability(ctx, req.TechnicianID, merged); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist availability")
	}

	s.emit(ctx, models.EventAvailabilityChanged, map[string]any{
		"technician_id": req.TechnicianID,
		"slot_count":    len(merged),
	})
	return merged, nil
}

// normalizeSlots merges overlapping or adjacent windows per day and
// returns them sorted by day then start minute.
func (s *AvailabilityService) normalizeSlots(technicianID string, inputs []dto.AvailabilitySlotInput) []models.AvailabilitySlot {
	byDay := make(map[int][]dto.AvailabilitySlotInput)
	for _, slot := range inputs {
		byDay[slot.DayOfWeek] = append(byDay[slot.DayOfWeek], slot)
	}

	days := make([]int, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Ints(days)

	now := time.Now().UTC()
	var merged []models.AvailabilitySlot
	for _, day := range days {
		slots := byDay[day]
		sort.Slice(slots, func(i, j int) bool { return slots[i].StartMinute < slots[j].StartMinute })

		current := slots[0]
		flush := func(slot dto.AvailabilitySlotInput) {
			merged = append(merged, models.AvailabilitySlot{
				ID:           s.ids.NewID(),
				TechnicianID: technicianID,
				DayOfWeek:    day,
				StartMinute:  slot.StartMinute,
				EndMinute:    slot.EndMinute,
				Recurring:    slot.Recurring,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
		for _, next := range slots[1:] {
			if next.StartMinute <= current.EndMinute {
				if next.EndMinute > current.EndMinute {
					current.EndMinute = next.EndMinute
				}
				continue
			}
			flush(current)
			current = next
		}
		flush(current)
	}
	return merged
}

// IsAvailable reports whether the technician can take a session on the
// given date between start and end minutes. Approved time off wins over
// slot coverage.
func (s *AvailabilityService) IsAvailable(ctx context.Context, technicianID string, date time.Time, startMinute, endMinute int) (bool, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	timeOff, err := s.timeOff.ListTimeOff(ctx, technicianID, dayStart, dayEnd)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time off")
	}
	for _, record := range timeOff {
		if record.StartDate.Before(dayEnd) && !record.EndDate.Before(dayStart) {
			return false, nil
		}
	}

	slots, err := s.availability.GetAvailability(ctx, technicianID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	dayOfWeek := int(date.Weekday())
	for _, slot := range slots {
		if slot.DayOfWeek != dayOfWeek {
			continue
		}
		if slot.StartMinute <= startMinute && slot.EndMinute >= endMinute {
			return true, nil
		}
	}
	return false, nil
}

// GetAvailabilityBlocks materializes per-date blocks for every calendar
// day in the range, for calendar views.
func (s *AvailabilityService) GetAvailabilityBlocks(ctx context.Context, technicianID string, rangeStart, rangeEnd time.Time) ([]models.AvailabilityBlock, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end must not precede range start")
	}

	timeOff, err := s.timeOff.ListTimeOff(ctx, technicianID, rangeStart, rangeEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time off")
	}
	slots, err := s.availability.GetAvailability(ctx, technicianID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}

	slotsByDay := make(map[int][]models.AvailabilitySlot)
	for _, slot := range slots {
		slotsByDay[slot.DayOfWeek] = append(slotsByDay[slot.DayOfWeek], slot)
	}

	var blocks []models.AvailabilityBlock
	day := time.Date(rangeStart.Year(), rangeStart.Month(), rangeStart.Day(), 0, 0, 0, 0, rangeStart.Location())
	for !day.After(rangeEnd) {
		dayEnd := day.AddDate(0, 0, 1)
		if reason, off := timeOffReason(timeOff, day, dayEnd); off {
			blocks = append(blocks, models.AvailabilityBlock{
				Date:        day,
				DayOfWeek:   int(day.Weekday()),
				StartMinute: 0,
				EndMinute:   models.MinutesPerDay,
				Available:   false,
				Reason:      reason,
			})
		} else {
			for _, slot := range slotsByDay[int(day.Weekday())] {
				blocks = append(blocks, models.AvailabilityBlock{
					Date:        day,
					DayOfWeek:   slot.DayOfWeek,
					StartMinute: slot.StartMinute,
					EndMinute:   slot.EndMinute,
					Available:   true,
				})
			}
		}
		day = dayEnd
	}
	return blocks, nil
}

func timeOffReason(records []models.TimeOffRecord, dayStart, dayEnd time.Time) (string, bool) {
	for _, record := range records {
		if record.StartDate.Before(dayEnd) && !record.EndDate.Before(dayStart) {
			return record.Reason, true
		}
	}
	return "", false
}

// RequestTimeOff opens a pending request.
func (s *AvailabilityService) RequestTimeOff(ctx context.Context, input dto.TimeOffRequestInput) (*models.TimeOffRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time off payload")
	}
	if !input.StartDate.Before(input.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time off must start before it ends")
	}

	request := &models.TimeOffRequest{
		ID:           s.ids.NewID(),
		TechnicianID: input.TechnicianID,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		Reason:       input.Reason,
		Status:       models.TimeOffStatusPending,
		RequestedAt:  time.Now().UTC(),
	}
	if err := s.timeOff.CreateTimeOffRequest(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create time off request")
	}

	s.emit(ctx, models.EventTimeOffRequested, map[string]any{
		"request_id":    request.ID,
		"technician_id": request.TechnicianID,
	})
	return request, nil
}

// ApproveTimeOff transitions a pending request to approved and
// materializes the time-off record so availability queries reflect it
// immediately. Non-pending requests fail without mutation.
func (s *AvailabilityService) ApproveTimeOff(ctx context.Context, requestID, reviewer string) (*models.TimeOffRequest, error) {
	request, err := s.reviewTimeOff(ctx, requestID, reviewer, models.TimeOffStatusApproved)
	if err != nil {
		return nil, err
	}

	record := &models.TimeOffRecord{
		ID:           s.ids.NewID(),
		TechnicianID: request.TechnicianID,
		StartDate:    request.StartDate,
		EndDate:      request.EndDate,
		Reason:       request.Reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.timeOff.AddTimeOff(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize time off record")
	}

	s.emit(ctx, models.EventTimeOffApproved, map[string]any{
		"request_id":    request.ID,
		"technician_id": request.TechnicianID,
	})
	return request, nil
}

// DenyTimeOff transitions a pending request to denied.
func (s *AvailabilityService) DenyTimeOff(ctx context.Context, requestID, reviewer string) (*models.TimeOffRequest, error) {
	request, err := s.reviewTimeOff(ctx, requestID, reviewer, models.TimeOffStatusDenied)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventTimeOffDenied, map[string]any{
		"request_id":    request.ID,
		"technician_id": request.TechnicianID,
	})
	return request, nil
}

func (s *AvailabilityService) reviewTimeOff(ctx context.Context, requestID, reviewer string, target models.TimeOffStatus) (*models.TimeOffRequest, error) {
	request, err := s.timeOff.GetTimeOffRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "time off request not found")
	}
	if request.Status != models.TimeOffStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("time off request %s is already %s", requestID, request.Status))
	}

	now := time.Now().UTC()
	request.Status = target
	request.ReviewedAt = &now
	request.ReviewedBy = reviewer
	if err := s.timeOff.UpdateTimeOffRequest(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update time off request")
	}
	return request, nil
}

// AddTimeOff bypasses the request workflow for direct administrative
// entry.
func (s *AvailabilityService) AddTimeOff(ctx context.Context, technicianID string, startDate, endDate time.Time, reason string) (*models.TimeOffRecord, error) {
	if !startDate.Before(endDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time off must start before it ends")
	}
	record := &models.TimeOffRecord{
		ID:           s.ids.NewID(),
		TechnicianID: technicianID,
		StartDate:    startDate,
		EndDate:      endDate,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.timeOff.AddTimeOff(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add time off")
	}
	return record, nil
}

func (s *AvailabilityService) emit(ctx context.Context, eventType models.EventType, payload map[string]any) {
	s.sink.Record(ctx, models.DomainEvent{
		ID:         s.ids.NewID(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}
