package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

func TestOptimizeFillsWeeklyQuota(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.technicians.technicians = []models.TechnicianProfile{activeTechnician("tech-1")}
	fixture.authorizations.authorizations = []models.ServiceAuthorization{activeAuthorization("client-1", "97153", 1000)}

	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:    "user-1",
		WeekStart: testWeekStart,
		Preferences: []models.PatientSchedulePreference{{
			ClientID:             "client-1",
			PreferredDays:        []int{1, 3, 5},
			PreferredStartMinute: 540,
			PreferredEndMinute:   1020,
			SessionsPerWeek:      3,
			SessionMinutes:       120,
		}},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.UnassignedClients)
	require.Len(t, result.Schedules, 1)

	schedule := result.Schedules[0]
	require.Len(t, schedule.Assignments, 3)
	days := make([]int, 0, 3)
	for _, a := range schedule.Assignments {
		days = append(days, a.DayOfWeek)
		assert.Equal(t, 540, a.StartMinute)
		assert.Equal(t, 660, a.EndMinute)
		assert.Equal(t, "client-1", a.ClientID)
	}
	assert.Equal(t, []int{1, 3, 5}, days)
	assert.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	assert.InDelta(t, 6.0, schedule.ScheduledHours, 1e-9)
	assert.Equal(t, 3, result.Metrics.TotalSessions)
}

func TestOptimizeReportsInfeasibilityInBand(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.technicians.technicians = []models.TechnicianProfile{activeTechnician("tech-1")}
	fixture.authorizations.authorizations = []models.ServiceAuthorization{activeAuthorization("client-1", "97153", 1000)}
	fixture.availability.fn = func(string, time.Time, int, int) (bool, error) { return false, nil }

	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:    "user-1",
		WeekStart: testWeekStart,
		Preferences: []models.PatientSchedulePreference{{
			ClientID:        "client-1",
			PreferredDays:   []int{1},
			SessionsPerWeek: 1,
			SessionMinutes:  120,
		}},
	})
	require.NoError(t, err, "infeasibility is not an error")

	assert.False(t, result.Success)
	assert.Equal(t, []string{"client-1"}, result.UnassignedClients)
	require.Len(t, result.Schedules, 1)
	assert.Empty(t, result.Schedules[0].Assignments)
}

func TestOptimizeWithEmptyPool(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.authorizations.authorizations = []models.ServiceAuthorization{activeAuthorization("client-1", "97153", 1000)}

	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:    "user-1",
		WeekStart: testWeekStart,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"client-1"}, result.UnassignedClients)
	assert.Contains(t, result.Warnings, "no eligible technicians in scope")
	assert.Empty(t, result.Schedules)
}

func TestOptimizeHonorsExcludedTechnicians(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.technicians.technicians = []models.TechnicianProfile{activeTechnician("tech-1"), activeTechnician("tech-2")}
	fixture.authorizations.authorizations = []models.ServiceAuthorization{activeAuthorization("client-1", "97153", 1000)}

	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:      "user-1",
		WeekStart:   testWeekStart,
		Constraints: models.OptimizationConstraints{ExcludedTechnicians: []string{"tech-1"}},
		Preferences: []models.PatientSchedulePreference{{
			ClientID:        "client-1",
			PreferredDays:   []int{1},
			SessionsPerWeek: 1,
			SessionMinutes:  120,
		}},
	})
	require.NoError(t, err)

	require.Len(t, result.Schedules, 1)
	assert.Equal(t, "tech-2", result.Schedules[0].TechnicianID)
	require.Len(t, result.Schedules[0].Assignments, 1)
}

func TestOptimizeRespectsDailyHourCap(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.technicians.technicians = []models.TechnicianProfile{activeTechnician("tech-1")}
	fixture.authorizations.authorizations = []models.ServiceAuthorization{
		activeAuthorization("client-1", "97153", 1000),
		activeAuthorization("client-2", "97153", 1000),
	}

	// Both clients want the only technician on Monday; a 2-hour daily cap
	// leaves room for exactly one session.
	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:      "user-1",
		WeekStart:   testWeekStart,
		Constraints: models.OptimizationConstraints{MaxHoursPerDay: 2},
		Preferences: []models.PatientSchedulePreference{
			{ClientID: "client-1", PreferredDays: []int{1}, PreferredStartMinute: 540, SessionsPerWeek: 1, SessionMinutes: 120},
			{ClientID: "client-2", PreferredDays: []int{1}, PreferredStartMinute: 800, SessionsPerWeek: 1, SessionMinutes: 120},
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.UnassignedClients, 1)
	require.Len(t, result.Schedules, 1)
	assert.Len(t, result.Schedules[0].Assignments, 1)
}

func TestSynthesizePreferenceFromAuthorizationBudget(t *testing.T) {
	fixture := newOptimizationFixture(t)

	now := time.Now().UTC()
	authorization := activeAuthorization("client-1", "97153", 32)
	authorization.EndDate = now.AddDate(0, 0, 15) // two whole weeks remain

	pref := fixture.service.synthesizePreference(authorization, now)

	// 32 units over 2 weeks is 16 units/week = 4 hours = 2 default sessions.
	assert.Equal(t, 2, pref.SessionsPerWeek)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pref.PreferredDays)
	assert.Equal(t, 540, pref.PreferredStartMinute)
	assert.Equal(t, 1020, pref.PreferredEndMinute)
	assert.Equal(t, 120, pref.SessionMinutes)
	assert.Equal(t, "97153", pref.ServiceCode)
}

func TestSynthesizePreferenceNeverBelowOneSession(t *testing.T) {
	fixture := newOptimizationFixture(t)

	now := time.Now().UTC()
	authorization := activeAuthorization("client-1", "97153", 1)
	authorization.EndDate = now.AddDate(1, 0, 0)

	pref := fixture.service.synthesizePreference(authorization, now)
	assert.Equal(t, 1, pref.SessionsPerWeek)
}

func TestOrderDemandConstrainedClientsFirst(t *testing.T) {
	fixture := newOptimizationFixture(t)

	demand := []models.PatientSchedulePreference{
		{ClientID: "client-a", SessionsPerWeek: 5},
		{ClientID: "client-b", SessionsPerWeek: 1, PreferredTechnicians: []string{"tech-1"}},
		{ClientID: "client-c", SessionsPerWeek: 3},
	}
	fixture.service.orderDemand(demand)

	assert.Equal(t, "client-b", demand[0].ClientID)
	assert.Equal(t, "client-a", demand[1].ClientID)
	assert.Equal(t, "client-c", demand[2].ClientID)
}

func TestOptimizeRoutesGroupsByLocationAndRetimes(t *testing.T) {
	fixture := newOptimizationFixture(t)

	draft := weeklyScheduleWith(
		models.ScheduleAssignment{ID: "a-1", ClientID: "client-a", DayOfWeek: 1, StartMinute: 600, EndMinute: 660, Location: "north-clinic"},
		models.ScheduleAssignment{ID: "a-2", ClientID: "client-b", DayOfWeek: 1, StartMinute: 900, EndMinute: 960, Location: "south-clinic"},
		models.ScheduleAssignment{ID: "a-3", ClientID: "client-c", DayOfWeek: 1, StartMinute: 700, EndMinute: 760, Location: "north-clinic"},
	)
	before := draft.TotalScheduledHours()

	fixture.service.optimizeRoutes(draft)

	// Nearest-neighbor keeps the two north-clinic visits together, then
	// re-times the day back-to-back with the 15-minute buffer.
	assert.Equal(t, 600, draft.FindAssignment("a-1").StartMinute)
	assert.Equal(t, 675, draft.FindAssignment("a-3").StartMinute)
	assert.Equal(t, 750, draft.FindAssignment("a-2").StartMinute)
	assert.InDelta(t, before, draft.TotalScheduledHours(), 1e-9, "route pass must not change total duration")
}

func TestBalanceWorkloadsMovesSessionsTowardTheMean(t *testing.T) {
	fixture := newOptimizationFixture(t)

	overloaded := weeklyScheduleWith(
		models.ScheduleAssignment{ID: "a-1", ClientID: "client-a", DayOfWeek: 1, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-2", ClientID: "client-b", DayOfWeek: 2, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-3", ClientID: "client-c", DayOfWeek: 3, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-4", ClientID: "client-d", DayOfWeek: 4, StartMinute: 540, EndMinute: 660},
	)
	overloaded.TechnicianID = "tech-1"
	idle := weeklyScheduleWith()
	idle.TechnicianID = "tech-2"

	drafts := map[string]*models.WeeklySchedule{"tech-1": overloaded, "tech-2": idle}
	fixture.service.balanceWorkloads(drafts)

	assert.Len(t, overloaded.Assignments, 2)
	assert.Len(t, idle.Assignments, 2)
	assert.InDelta(t, 4.0, overloaded.TotalScheduledHours(), 1e-9)
	assert.InDelta(t, 4.0, idle.TotalScheduledHours(), 1e-9)
}

func TestBalanceWorkloadsSkipsConflictingSlots(t *testing.T) {
	fixture := newOptimizationFixture(t)

	overloaded := weeklyScheduleWith(
		models.ScheduleAssignment{ID: "a-1", ClientID: "client-a", DayOfWeek: 1, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-2", ClientID: "client-b", DayOfWeek: 2, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-3", ClientID: "client-c", DayOfWeek: 3, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-4", ClientID: "client-d", DayOfWeek: 4, StartMinute: 540, EndMinute: 660},
	)
	overloaded.TechnicianID = "tech-1"
	// The receiver works far fewer hours but a short visit collides with
	// every window that could move, so nothing transfers.
	receiver := weeklyScheduleWith(
		models.ScheduleAssignment{ID: "b-1", ClientID: "client-x", DayOfWeek: 1, StartMinute: 590, EndMinute: 610},
		models.ScheduleAssignment{ID: "b-2", ClientID: "client-x", DayOfWeek: 2, StartMinute: 590, EndMinute: 610},
		models.ScheduleAssignment{ID: "b-3", ClientID: "client-x", DayOfWeek: 3, StartMinute: 590, EndMinute: 610},
		models.ScheduleAssignment{ID: "b-4", ClientID: "client-x", DayOfWeek: 4, StartMinute: 590, EndMinute: 610},
	)
	receiver.TechnicianID = "tech-2"

	drafts := map[string]*models.WeeklySchedule{"tech-1": overloaded, "tech-2": receiver}
	fixture.service.balanceWorkloads(drafts)

	assert.Len(t, overloaded.Assignments, 4, "nothing should move when every slot collides")
	assert.Len(t, receiver.Assignments, 4)
}

func TestComputeMetrics(t *testing.T) {
	fixture := newOptimizationFixture(t)

	pool := []models.TechnicianProfile{activeTechnician("tech-1"), activeTechnician("tech-2")}
	working := weeklyScheduleWith(
		models.ScheduleAssignment{ID: "a-1", ClientID: "client-p", DayOfWeek: 1, StartMinute: 540, EndMinute: 660},
		models.ScheduleAssignment{ID: "a-2", ClientID: "client-p", DayOfWeek: 2, StartMinute: 540, EndMinute: 660},
	)
	working.TechnicianID = "tech-1"
	idle := weeklyScheduleWith()
	idle.TechnicianID = "tech-2"
	drafts := map[string]*models.WeeklySchedule{"tech-1": working, "tech-2": idle}

	demand := []models.PatientSchedulePreference{{
		ClientID:             "client-p",
		PreferredTechnicians: []string{"tech-1"},
	}}
	metrics := fixture.service.computeMetrics(pool, drafts, demand)

	assert.Equal(t, 2, metrics.TotalSessions)
	assert.InDelta(t, 4.0, metrics.TotalHours, 1e-9)
	// Hours are [4, 0]: mean 2, population variance ((4-2)^2+(0-2)^2)/2 = 4.
	assert.InDelta(t, 4.0, metrics.WorkloadVariance, 1e-9)
	assert.InDelta(t, 4.0/(2*40), metrics.Utilization, 1e-9)
	assert.InDelta(t, 1.0, metrics.PreferenceAdherence, 1e-9)
}

func TestOptimizeValidatesRequest(t *testing.T) {
	fixture := newOptimizationFixture(t)

	_, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{WeekStart: testWeekStart})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOptimizePrefersDeclaredTechnicians(t *testing.T) {
	fixture := newOptimizationFixture(t)
	fixture.technicians.technicians = []models.TechnicianProfile{activeTechnician("tech-1"), activeTechnician("tech-2")}
	fixture.authorizations.authorizations = []models.ServiceAuthorization{activeAuthorization("client-1", "97153", 1000)}

	result, err := fixture.service.Optimize(context.Background(), dto.OptimizeScheduleRequest{
		UserID:    "user-1",
		WeekStart: testWeekStart,
		Preferences: []models.PatientSchedulePreference{{
			ClientID:             "client-1",
			PreferredTechnicians: []string{"tech-2"},
			PreferredDays:        []int{1},
			PreferredStartMinute: 540,
			SessionsPerWeek:      1,
			SessionMinutes:       120,
		}},
	})
	require.NoError(t, err)

	for _, schedule := range result.Schedules {
		if schedule.TechnicianID == "tech-2" {
			assert.Len(t, schedule.Assignments, 1)
		} else {
			assert.Empty(t, schedule.Assignments)
		}
	}
}

// --- Fixtures ---

type optimizationFixture struct {
	service        *OptimizationService
	technicians    *technicianStoreStub
	authorizations *authorizationStoreStub
	availability   *availabilityCheckerStub
}

func newOptimizationFixture(t *testing.T) *optimizationFixture {
	t.Helper()
	technicians := &technicianStoreStub{}
	authorizations := &authorizationStoreStub{}
	availability := &availabilityCheckerStub{}
	service := NewOptimizationService(technicians, authorizations, availability, nil,
		nil, ids.NewSequential("opt"), nil, OptimizationConfig{})
	return &optimizationFixture{
		service:        service,
		technicians:    technicians,
		authorizations: authorizations,
		availability:   availability,
	}
}

func activeTechnician(id string) models.TechnicianProfile {
	return models.TechnicianProfile{
		ID:     id,
		UserID: "user-1",
		Status: models.TechnicianStatusActive,
	}
}

func activeAuthorization(clientID, serviceCode string, remainingUnits int) models.ServiceAuthorization {
	return models.ServiceAuthorization{
		ID:             "auth-" + clientID,
		UserID:         "user-1",
		ClientID:       clientID,
		ClientStatus:   models.ClientStatusActive,
		ServiceCode:    serviceCode,
		RemainingUnits: remainingUnits,
		EndDate:        time.Now().UTC().AddDate(0, 6, 0),
		Status:         models.AuthorizationStatusActive,
	}
}

type technicianStoreStub struct {
	technicians []models.TechnicianProfile
	err         error
}

func (s *technicianStoreStub) GetActiveTechnicians(context.Context, string) ([]models.TechnicianProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.technicians, nil
}

type availabilityCheckerStub struct {
	fn func(technicianID string, date time.Time, startMinute, endMinute int) (bool, error)
}

func (s *availabilityCheckerStub) IsAvailable(_ context.Context, technicianID string, date time.Time, startMinute, endMinute int) (bool, error) {
	if s.fn == nil {
		return true, nil
	}
	return s.fn(technicianID, date, startMinute, endMinute)
}
