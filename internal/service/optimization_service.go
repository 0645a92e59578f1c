package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/models"
	appErrors "github.com/bridgecare/scheduling-core/pkg/errors"
	"github.com/bridgecare/scheduling-core/pkg/ids"
)

type technicianStore interface {
	GetActiveTechnicians(ctx context.Context, userID string) ([]models.TechnicianProfile, error)
}

type availabilityChecker interface {
	IsAvailable(ctx context.Context, technicianID string, date time.Time, startMinute, endMinute int) (bool, error)
}

type conflictDetector interface {
	DetectConflicts(ctx context.Context, userID string, schedule *models.WeeklySchedule) []models.ScheduleConflict
}

// OptimizationConfig tunes the assignment heuristics.
type OptimizationConfig struct {
	SessionMinutes        int
	RouteBufferMinutes    int
	WorkWeekHours         float64
	BalanceUpperTolerance float64
	BalanceLowerTolerance float64
}

// OptimizationService builds a full weekly assignment for every eligible
// technician: greedy demand fill, nearest-neighbor route pass, workload
// balancing, then a validation pass through conflict detection.
type OptimizationService struct {
	technicians    technicianStore
	authorizations authorizationStore
	availability   availabilityChecker
	conflicts      conflictDetector
	validator      *validator.Validate
	ids            ids.Generator
	logger         *zap.Logger
	cfg            OptimizationConfig
}

// NewOptimizationService wires optimizer dependencies.
func NewOptimizationService(
	technicians technicianStore,
	authorizations authorizationStore,
	availability availabilityChecker,
	conflicts conflictDetector,
	validate *validator.Validate,
	idGen ids.Generator,
	logger *zap.Logger,
	cfg OptimizationConfig,
) *OptimizationService {
	if validate == nil {
		validate = validator.New()
	}
	if idGen == nil {
		idGen = ids.NewUUIDGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionMinutes <= 0 {
		cfg.SessionMinutes = 120
	}
	if cfg.RouteBufferMinutes <= 0 {
		cfg.RouteBufferMinutes = 15
	}
	if cfg.WorkWeekHours <= 0 {
		cfg.WorkWeekHours = 40
	}
	if cfg.BalanceUpperTolerance <= 0 {
		cfg.BalanceUpperTolerance = 1.1
	}
	if cfg.BalanceLowerTolerance <= 0 {
		cfg.BalanceLowerTolerance = 0.9
	}
	return &OptimizationService{
		technicians:    technicians,
		authorizations: authorizations,
		availability:   availability,
		conflicts:      conflicts,
		validator:      validate,
		ids:            idGen,
		logger:         logger,
		cfg:            cfg,
	}
}

// Optimize runs the full pipeline for one week. Infeasibility is
// reported in-band: the result always comes back, Success is true only
// when every client reached their weekly session quota.
func (s *OptimizationService) Optimize(ctx context.Context, req dto.OptimizeScheduleRequest) (*models.OptimizationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimization payload")
	}

	technicians, err := s.technicians.GetActiveTechnicians(ctx, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load technicians")
	}
	pool := excludeTechnicians(technicians, req.Constraints.ExcludedTechnicians)

	demand, err := s.deriveDemand(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &models.OptimizationResult{WeekStart: req.WeekStart}
	if len(pool) == 0 {
		for _, pref := range demand {
			result.UnassignedClients = append(result.UnassignedClients, pref.ClientID)
		}
		result.Warnings = append(result.Warnings, "no eligible technicians in scope")
		return result, nil
	}

	drafts := s.seedDrafts(req, pool)
	s.orderDemand(demand)

	for _, pref := range demand {
		placed := s.assignClient(ctx, req, pool, drafts, pref)
		if placed < pref.SessionsPerWeek {
			result.UnassignedClients = append(result.UnassignedClients, pref.ClientID)
		}
	}

	if req.Weights.TravelMinimization > 0 {
		for _, draft := range drafts {
			s.optimizeRoutes(draft)
		}
	}
	if req.Weights.WorkloadBalance > 0 {
		s.balanceWorkloads(drafts)
	}

	schedules := make([]models.WeeklySchedule, 0, len(pool))
	for _, tech := range pool {
		draft := drafts[tech.ID]
		draft.RecomputeDerived()
		if s.conflicts != nil {
			draft.Conflicts = s.conflicts.DetectConflicts(ctx, req.UserID, draft)
			for _, conflict := range draft.Conflicts {
				result.Warnings = append(result.Warnings, string(conflict.Type)+": "+conflict.Description)
			}
		}
		schedules = append(schedules, *draft)
	}
	result.Schedules = schedules
	result.Metrics = s.computeMetrics(pool, drafts, demand)
	result.Success = len(result.UnassignedClients) == 0
	return result, nil
}

func excludeTechnicians(technicians []models.TechnicianProfile, excluded []string) []models.TechnicianProfile {
	if len(excluded) == 0 {
		return technicians
	}
	drop := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		drop[id] = true
	}
	pool := make([]models.TechnicianProfile, 0, len(technicians))
	for _, tech := range technicians {
		if !drop[tech.ID] {
			pool = append(pool, tech)
		}
	}
	return pool
}

// deriveDemand resolves the per-client demand: explicit preferences win,
// everyone else gets one synthesized from their authorization budget.
func (s *OptimizationService) deriveDemand(ctx context.Context, req dto.OptimizeScheduleRequest) ([]models.PatientSchedulePreference, error) {
	authorizations, err := s.authorizations.ListActiveAuthorizations(ctx, req.UserID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load authorizations")
	}

	explicit := make(map[string]models.PatientSchedulePreference, len(req.Preferences))
	for _, pref := range req.Preferences {
		explicit[pref.ClientID] = pref
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var demand []models.PatientSchedulePreference
	for _, authorization := range authorizations {
		if authorization.ClientStatus != models.ClientStatusActive || seen[authorization.ClientID] {
			continue
		}
		seen[authorization.ClientID] = true

		if pref, ok := explicit[authorization.ClientID]; ok {
			if pref.SessionMinutes <= 0 {
				pref.SessionMinutes = s.cfg.SessionMinutes
			}
			if pref.ServiceCode == "" {
				pref.ServiceCode = authorization.ServiceCode
			}
			demand = append(demand, pref)
			continue
		}
		demand = append(demand, s.synthesizePreference(authorization, now))
	}
	return demand, nil
}

// synthesizePreference derives a weekly session count from the remaining
// unit budget at 4 units/hour and the default session length: weekday
// sessions in a 9am-5pm window.
func (s *OptimizationService) synthesizePreference(authorization models.ServiceAuthorization, now time.Time) models.PatientSchedulePreference {
	weeks := authorization.WeeksRemaining(now)
	sessionHours := float64(s.cfg.SessionMinutes) / 60.0
	unitsPerWeek := float64(authorization.RemainingUnits) / float64(weeks)
	sessions := int(math.Round(unitsPerWeek / models.UnitsPerHour / sessionHours))
	if sessions < 1 {
		sessions = 1
	}
	return models.PatientSchedulePreference{
		ClientID:             authorization.ClientID,
		PreferredDays:        []int{1, 2, 3, 4, 5},
		PreferredStartMinute: 540,
		PreferredEndMinute:   1020,
		SessionsPerWeek:      sessions,
		SessionMinutes:       s.cfg.SessionMinutes,
		ServiceCode:          authorization.ServiceCode,
	}
}

func (s *OptimizationService) seedDrafts(req dto.OptimizeScheduleRequest, pool []models.TechnicianProfile) map[string]*models.WeeklySchedule {
	now := time.Now().UTC()
	drafts := make(map[string]*models.WeeklySchedule, len(pool))
	for _, tech := range pool {
		available := tech.MaxHoursPerWeek
		if available <= 0 {
			available = s.cfg.WorkWeekHours
		}
		drafts[tech.ID] = &models.WeeklySchedule{
			ID:             s.ids.NewID(),
			UserID:         req.UserID,
			TechnicianID:   tech.ID,
			WeekStart:      req.WeekStart,
			WeekEnd:        req.WeekStart.AddDate(0, 0, 6),
			Status:         models.ScheduleStatusDraft,
			AvailableHours: available,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return drafts
}

// orderDemand schedules tighter-constrained clients first: those with an
// explicit preferred-technician list, then descending sessions per week.
func (s *OptimizationService) orderDemand(demand []models.PatientSchedulePreference) {
	sort.SliceStable(demand, func(i, j int) bool {
		iConstrained := len(demand[i].PreferredTechnicians) > 0
		jConstrained := len(demand[j].PreferredTechnicians) > 0
		if iConstrained != jConstrained {
			return iConstrained
		}
		return demand[i].SessionsPerWeek > demand[j].SessionsPerWeek
	})
}

// assignClient greedily fills the client's weekly quota, preferred days
// outer, candidate technicians inner, one session per day.
func (s *OptimizationService) assignClient(
	ctx context.Context,
	req dto.OptimizeScheduleRequest,
	pool []models.TechnicianProfile,
	drafts map[string]*models.WeeklySchedule,
	pref models.PatientSchedulePreference,
) int {
	candidates := candidateTechnicians(pool, pref.PreferredTechnicians)
	sessionEnd := pref.PreferredStartMinute + pref.SessionMinutes
	if pref.PreferredEndMinute > 0 && sessionEnd > pref.PreferredEndMinute {
		sessionEnd = pref.PreferredEndMinute
	}

	placed := 0
	for _, day := range pref.PreferredDays {
		if placed >= pref.SessionsPerWeek {
			break
		}
		if day < 0 || day > 6 {
			continue
		}
		date := models.DateForDay(req.WeekStart, day)

		for _, tech := range candidates {
			draft := drafts[tech.ID]

			available, err := s.availability.IsAvailable(ctx, tech.ID, date, pref.PreferredStartMinute, sessionEnd)
			if err != nil {
				s.logger.Warn("availability check failed, skipping candidate",
					zap.String("technician_id", tech.ID), zap.Error(err))
				continue
			}
			if !available {
				continue
			}
			if hasOverlap(draft, day, pref.PreferredStartMinute, sessionEnd) {
				continue
			}
			if exceedsDailyCap(draft, day, sessionEnd-pref.PreferredStartMinute, req.Constraints.MaxHoursPerDay) {
				continue
			}

			draft.Assignments = append(draft.Assignments, models.ScheduleAssignment{
				ID:          s.ids.NewID(),
				ClientID:    pref.ClientID,
				DayOfWeek:   day,
				StartMinute: pref.PreferredStartMinute,
				EndMinute:   sessionEnd,
				ServiceCode: pref.ServiceCode,
				Location:    pref.Location,
			})
			placed++
			break
		}
	}
	return placed
}

func candidateTechnicians(pool []models.TechnicianProfile, preferred []string) []models.TechnicianProfile {
	if len(preferred) == 0 {
		return pool
	}
	wanted := make(map[string]bool, len(preferred))
	for _, id := range preferred {
		wanted[id] = true
	}
	candidates := make([]models.TechnicianProfile, 0, len(preferred))
	for _, tech := range pool {
		if wanted[tech.ID] {
			candidates = append(candidates, tech)
		}
	}
	if len(candidates) == 0 {
		// None of the preferred technicians are in the active pool.
		return pool
	}
	return candidates
}

func hasOverlap(draft *models.WeeklySchedule, day, start, end int) bool {
	for _, a := range draft.Assignments {
		if a.DayOfWeek == day && start < a.EndMinute && end > a.StartMinute {
			return true
		}
	}
	return false
}

func exceedsDailyCap(draft *models.WeeklySchedule, day, addMinutes int, maxHoursPerDay float64) bool {
	if maxHoursPerDay <= 0 {
		return false
	}
	minutes := addMinutes
	for _, a := range draft.Assignments {
		if a.DayOfWeek == day {
			minutes += a.DurationMinutes()
		}
	}
	return float64(minutes) > maxHoursPerDay*60
}

// estimateDistance is the geocoding placeholder: zero within one
// location, one unit otherwise.
func estimateDistance(from, to string) float64 {
	if from == to {
		return 0
	}
	return 1
}

// optimizeRoutes reorders each day's assignments with a nearest-neighbor
// walk from the earliest session, then re-times the visit order
// back-to-back with a fixed buffer. Total assigned duration is
// unchanged.
func (s *OptimizationService) optimizeRoutes(draft *models.WeeklySchedule) {
	byDay := make(map[int][]int)
	for idx, a := range draft.Assignments {
		byDay[a.DayOfWeek] = append(byDay[a.DayOfWeek], idx)
	}

	for day := 0; day <= 6; day++ {
		indices := byDay[day]
		if len(indices) < 2 {
			continue
		}
		sort.Slice(indices, func(i, j int) bool {
			return draft.Assignments[indices[i]].StartMinute < draft.Assignments[indices[j]].StartMinute
		})
		dayStart := draft.Assignments[indices[0]].StartMinute

		visited := make([]int, 0, len(indices))
		remaining := append([]int(nil), indices...)
		current := remaining[0]
		visited = append(visited, current)
		remaining = remaining[1:]

		for len(remaining) > 0 {
			bestIdx := 0
			bestDistance := math.Inf(1)
			for i, candidate := range remaining {
				d := estimateDistance(draft.Assignments[current].Location, draft.Assignments[candidate].Location)
				if d < bestDistance {
					bestDistance = d
					bestIdx = i
				}
			}
			current = remaining[bestIdx]
			visited = append(visited, current)
			remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		}

		cursor := dayStart
		for _, idx := range visited {
			duration := draft.Assignments[idx].DurationMinutes()
			draft.Assignments[idx].StartMinute = cursor
			draft.Assignments[idx].EndMinute = cursor + duration
			cursor += duration + s.cfg.RouteBufferMinutes
		}
	}
}

// balanceWorkloads is a best-effort single pass: move one assignment at
// a time from the most-overloaded technician (above the upper tolerance
// of the mean) to the most-underloaded one (below the lower tolerance)
// with a free matching slot. It can fail to fully balance when no
// compatible slot exists on the receiving side.
func (s *OptimizationService) balanceWorkloads(drafts map[string]*models.WeeklySchedule) {
	techIDs := make([]string, 0, len(drafts))
	hours := make(map[string]float64, len(drafts))
	totalAssignments := 0
	for id, draft := range drafts {
		techIDs = append(techIDs, id)
		hours[id] = draft.TotalScheduledHours()
		totalAssignments += len(draft.Assignments)
	}
	sort.Strings(techIDs)
	if len(techIDs) < 2 {
		return
	}

	var total float64
	for _, id := range techIDs {
		total += hours[id]
	}
	target := total / float64(len(techIDs))
	if target == 0 {
		return
	}
	upper := target * s.cfg.BalanceUpperTolerance
	lower := target * s.cfg.BalanceLowerTolerance

	exhausted := make(map[string]bool)
	for moves := 0; moves < totalAssignments; moves++ {
		overloaded, underloaded := "", ""
		for _, id := range techIDs {
			if exhausted[id] {
				continue
			}
			if hours[id] > upper && (overloaded == "" || hours[id] > hours[overloaded]) {
				overloaded = id
			}
		}
		if overloaded == "" {
			return
		}
		for _, id := range techIDs {
			if id != overloaded && hours[id] < lower && (underloaded == "" || hours[id] < hours[underloaded]) {
				underloaded = id
			}
		}
		if underloaded == "" {
			return
		}

		if !s.transferOneAssignment(drafts[overloaded], drafts[underloaded], hours) {
			exhausted[overloaded] = true
		}
	}
}

func (s *OptimizationService) transferOneAssignment(from, to *models.WeeklySchedule, hours map[string]float64) bool {
	for i, a := range from.Assignments {
		if hasOverlap(to, a.DayOfWeek, a.StartMinute, a.EndMinute) {
			continue
		}
		from.Assignments = append(from.Assignments[:i], from.Assignments[i+1:]...)
		to.Assignments = append(to.Assignments, a)
		delta := float64(a.DurationMinutes()) / 60.0
		hours[from.TechnicianID] -= delta
		hours[to.TechnicianID] += delta
		return true
	}
	return false
}

func (s *OptimizationService) computeMetrics(
	pool []models.TechnicianProfile,
	drafts map[string]*models.WeeklySchedule,
	demand []models.PatientSchedulePreference,
) models.OptimizationMetrics {
	preferredBy := make(map[string]map[string]bool, len(demand))
	for _, pref := range demand {
		if len(pref.PreferredTechnicians) == 0 {
			continue
		}
		set := make(map[string]bool, len(pref.PreferredTechnicians))
		for _, id := range pref.PreferredTechnicians {
			set[id] = true
		}
		preferredBy[pref.ClientID] = set
	}

	metrics := models.OptimizationMetrics{}
	perTechHours := make([]float64, 0, len(pool))
	adherent := 0
	for _, tech := range pool {
		draft := drafts[tech.ID]
		techHours := draft.TotalScheduledHours()
		perTechHours = append(perTechHours, techHours)
		metrics.TotalHours += techHours
		metrics.TotalSessions += len(draft.Assignments)
		for _, a := range draft.Assignments {
			if preferredBy[a.ClientID][tech.ID] {
				adherent++
			}
		}
	}

	if len(pool) > 0 {
		metrics.Utilization = metrics.TotalHours / (float64(len(pool)) * s.cfg.WorkWeekHours)
		metrics.WorkloadVariance = stat.PopVariance(perTechHours, nil)
	}
	if metrics.TotalSessions > 0 {
		metrics.PreferenceAdherence = float64(adherent) / float64(metrics.TotalSessions)
	}
	return metrics
}
