package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/events"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

// Monday 2026-01-05; the surrounding week starts Sunday 2026-01-04.
var (
	testWeekStart = time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	testMonday    = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
)

func TestSetAvailabilityMergesOverlappingSlots(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	merged, err := fixture.service.SetAvailability(context.Background(), dto.SetAvailabilityRequest{
		TechnicianID: "tech-1",
		Slots: []dto.AvailabilitySlotInput{
			{DayOfWeek: 1, StartMinute: 720, EndMinute: 840},
			{DayOfWeek: 1, StartMinute: 540, EndMinute: 660},
			{DayOfWeek: 1, StartMinute: 660, EndMinute: 700},
			{DayOfWeek: 3, StartMinute: 480, EndMinute: 600},
		},
	})
	require.NoError(t, err)
	require.Len(t, merged, 3)

	// Monday: 540-660 and 660-700 are adjacent and merge; 720-840 stands alone.
	assert.Equal(t, 1, merged[0].DayOfWeek)
	assert.Equal(t, 540, merged[0].StartMinute)
	assert.Equal(t, 700, merged[0].EndMinute)
	assert.Equal(t, 720, merged[1].StartMinute)
	assert.Equal(t, 840, merged[1].EndMinute)
	assert.Equal(t, 3, merged[2].DayOfWeek)

	assert.Equal(t, merged, fixture.availability.slots["tech-1"], "merged set should be persisted wholesale")
}

func TestSetAvailabilityMergeIsIdempotent(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	inputs := []dto.AvailabilitySlotInput{
		{DayOfWeek: 2, StartMinute: 500, EndMinute: 620},
		{DayOfWeek: 2, StartMinute: 600, EndMinute: 720},
	}
	first, err := fixture.service.SetAvailability(context.Background(), dto.SetAvailabilityRequest{TechnicianID: "tech-1", Slots: inputs})
	require.NoError(t, err)

	again := make([]dto.AvailabilitySlotInput, 0, len(first))
	for _, slot := range first {
		again = append(again, dto.AvailabilitySlotInput{
			DayOfWeek:   slot.DayOfWeek,
			StartMinute: slot.StartMinute,
			EndMinute:   slot.EndMinute,
			Recurring:   slot.Recurring,
		})
	}
	second, err := fixture.service.SetAvailability(context.Background(), dto.SetAvailabilityRequest{TechnicianID: "tech-1", Slots: again})
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, 500, second[0].StartMinute)
	assert.Equal(t, 720, second[0].EndMinute)
}

func TestSetAvailabilityRejectsMalformedSlotWithoutMutation(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	_, err := fixture.service.SetAvailability(context.Background(), dto.SetAvailabilityRequest{
		TechnicianID: "tech-1",
		Slots: []dto.AvailabilitySlotInput{
			{DayOfWeek: 1, StartMinute: 540, EndMinute: 660},
			{DayOfWeek: 1, StartMinute: 700, EndMinute: 700},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fixture.availability.slots["tech-1"], "failed validation must not persist anything")
}

func TestIsAvailableWithinSlot(t *testing.T) {
	fixture := newAvailabilityFixture(t)
	fixture.availability.slots["tech-1"] = []models.AvailabilitySlot{
		{TechnicianID: "tech-1", DayOfWeek: 1, StartMinute: 540, EndMinute: 1020},
	}

	available, err := fixture.service.IsAvailable(context.Background(), "tech-1", testMonday, 600, 660)
	require.NoError(t, err)
	assert.True(t, available)

	available, err = fixture.service.IsAvailable(context.Background(), "tech-1", testMonday, 1000, 1100)
	require.NoError(t, err)
	assert.False(t, available, "slot must contain the whole window, not merely intersect it")
}

func TestIsAvailableTimeOffWinsOverSlotCoverage(t *testing.T) {
	fixture := newAvailabilityFixture(t)
	fixture.availability.slots["tech-1"] = []models.AvailabilitySlot{
		{TechnicianID: "tech-1", DayOfWeek: 1, StartMinute: 0, EndMinute: 1440},
	}
	fixture.timeOff.records = []models.TimeOffRecord{
		{TechnicianID: "tech-1", StartDate: testMonday, EndDate: testMonday.AddDate(0, 0, 2), Reason: "vacation"},
	}

	available, err := fixture.service.IsAvailable(context.Background(), "tech-1", testMonday, 600, 660)
	require.NoError(t, err)
	assert.False(t, available)
}

func TestGetAvailabilityBlocksMarksTimeOffDays(t *testing.T) {
	fixture := newAvailabilityFixture(t)
	fixture.availability.slots["tech-1"] = []models.AvailabilitySlot{
		{TechnicianID: "tech-1", DayOfWeek: 1, StartMinute: 540, EndMinute: 1020},
		{TechnicianID: "tech-1", DayOfWeek: 2, StartMinute: 540, EndMinute: 1020},
	}
	tuesday := testMonday.AddDate(0, 0, 1)
	fixture.timeOff.records = []models.TimeOffRecord{
		{TechnicianID: "tech-1", StartDate: tuesday, EndDate: tuesday, Reason: "appointment"},
	}

	blocks, err := fixture.service.GetAvailabilityBlocks(context.Background(), "tech-1", testMonday, tuesday)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.True(t, blocks[0].Available)
	assert.Equal(t, 540, blocks[0].StartMinute)

	assert.False(t, blocks[1].Available)
	assert.Equal(t, "appointment", blocks[1].Reason)
	assert.Equal(t, models.MinutesPerDay, blocks[1].EndMinute)
}

func TestTimeOffWorkflow(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	request, err := fixture.service.RequestTimeOff(context.Background(), dto.TimeOffRequestInput{
		TechnicianID: "tech-1",
		StartDate:    testMonday,
		EndDate:      testMonday.AddDate(0, 0, 3),
		Reason:       "family leave",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffStatusPending, request.Status)

	approved, err := fixture.service.ApproveTimeOff(context.Background(), request.ID, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffStatusApproved, approved.Status)
	assert.Equal(t, "supervisor-1", approved.ReviewedBy)
	require.Len(t, fixture.timeOff.records, 1, "approval must materialize a time-off record")

	// Availability reflects the approval immediately.
	fixture.availability.slots["tech-1"] = []models.AvailabilitySlot{
		{TechnicianID: "tech-1", DayOfWeek: 1, StartMinute: 0, EndMinute: 1440},
	}
	available, err := fixture.service.IsAvailable(context.Background(), "tech-1", testMonday, 600, 660)
	require.NoError(t, err)
	assert.False(t, available)

	// Terminal requests cannot be reviewed again.
	_, err = fixture.service.ApproveTimeOff(context.Background(), request.ID, "supervisor-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestRequestTimeOffRejectsInvertedRange(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	_, err := fixture.service.RequestTimeOff(context.Background(), dto.TimeOffRequestInput{
		TechnicianID: "tech-1",
		StartDate:    testMonday.AddDate(0, 0, 3),
		EndDate:      testMonday,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSetAvailabilityEmitsEvent(t *testing.T) {
	fixture := newAvailabilityFixture(t)

	_, err := fixture.service.SetAvailability(context.Background(), dto.SetAvailabilityRequest{
		TechnicianID: "tech-1",
		Slots:        []dto.AvailabilitySlotInput{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}},
	})
	require.NoError(t, err)

	emitted := fixture.collector.Drain()
	require.Len(t, emitted, 1)
	assert.Equal(t, models.EventAvailabilityChanged, emitted[0].Type)
	assert.Equal(t, "tech-1", emitted[0].Payload["technician_id"])
}

// --- Fixtures ---

type availabilityFixture struct {
	service      *AvailabilityService
	availability *availabilityStoreStub
	timeOff      *timeOffStoreStub
	collector    *events.Collector
}

func newAvailabilityFixture(t *testing.T) *availabilityFixture {
	t.Helper()
	availability := &availabilityStoreStub{slots: make(map[string][]models.AvailabilitySlot)}
	timeOff := &timeOffStoreStub{requests: make(map[string]*models.TimeOffRequest)}
	collector := events.NewCollector()
	service := NewAvailabilityService(availability, timeOff, nil, ids.NewSequential("id"), collector, nil)
	return &availabilityFixture{
		service:      service,
		availability: availability,
		timeOff:      timeOff,
		collector:    collector,
	}
}

type availabilityStoreStub struct {
	slots map[string][]models.AvailabilitySlot
}

func (s *availabilityStoreStub) ReplaceAvailability(_ context.Context, technicianID string, slots []models.AvailabilitySlot) error {
	s.slots[technicianID] = slots
	return nil
}

func (s *availabilityStoreStub) GetAvailability(_ context.Context, technicianID string) ([]models.AvailabilitySlot, error) {
	return s.slots[technicianID], nil
}

type timeOffStoreStub struct {
	records  []models.TimeOffRecord
	requests map[string]*models.TimeOffRequest
}

func (s *timeOffStoreStub) ListTimeOff(_ context.Context, technicianID string, _, _ time.Time) ([]models.TimeOffRecord, error) {
	var matched []models.TimeOffRecord
	for _, record := range s.records {
		if record.TechnicianID == technicianID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (s *timeOffStoreStub) AddTimeOff(_ context.Context, record *models.TimeOffRecord) error {
	s.records = append(s.records, *record)
	return nil
}

func (s *timeOffStoreStub) CreateTimeOffRequest(_ context.Context, request *models.TimeOffRequest) error {
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

func (s *timeOffStoreStub) GetTimeOffRequest(_ context.Context, requestID string) (*models.TimeOffRequest, error) {
	request, ok := s.requests[requestID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "time off request not found")
	}
	clone := *request
	return &clone, nil
}

func (s *timeOffStoreStub) UpdateTimeOffRequest(_ context.Context, request *models.TimeOffRequest) error {
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}
