package models

// ConflictType classifies a detected scheduling rule violation.
type ConflictType string

const (
	ConflictDoubleBooking         ConflictType = "DOUBLE_BOOKING"
	ConflictTravelTime            ConflictType = "TRAVEL_TIME"
	ConflictOvertime              ConflictType = "OVERTIME"
	ConflictCertificationGap      ConflictType = "CERTIFICATION_GAP"
	ConflictPatientPreference     ConflictType = "PATIENT_PREFERENCE"
	ConflictAppointmentOverlap    ConflictType = "APPOINTMENT_OVERLAP"
	ConflictAuthorizationMissing  ConflictType = "AUTHORIZATION_MISSING"
	ConflictAuthorizationExceeded ConflictType = "AUTHORIZATION_EXCEEDED"
)

// ConflictSeverity separates blocking errors from advisory warnings.
type ConflictSeverity string

const (
	SeverityError   ConflictSeverity = "ERROR"
	SeverityWarning ConflictSeverity = "WARNING"
)

// ScheduleConflict is recomputed on demand against a schedule and never
// persisted independently of it.
type ScheduleConflict struct {
	ID            string           `json:"id"`
	Type          ConflictType     `json:"type"`
	Severity      ConflictSeverity `json:"severity"`
	Description   string           `json:"description"`
	AssignmentIDs []string         `json:"assignment_ids"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// IsBlocking reports whether the conflict prevents publishing.
func (c ScheduleConflict) IsBlocking() bool {
	return c.Severity == SeverityError
}

// ResolutionType classifies a remediation strategy.
type ResolutionType string

const (
	ResolutionReassign   ResolutionType = "REASSIGN"
	ResolutionReschedule ResolutionType = "RESCHEDULE"
	ResolutionSwap       ResolutionType = "SWAP"
	ResolutionCancel     ResolutionType = "CANCEL"
	ResolutionSplit      ResolutionType = "SPLIT"
)

// ImpactLevel estimates how disruptive applying a suggestion would be.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "LOW"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactHigh   ImpactLevel = "HIGH"
)

// ChangeAction names a concrete directive inside a suggestion. Only
// ActionMove is executed mechanically; the rest are advisory.
type ChangeAction string

const (
	ActionMove     ChangeAction = "MOVE"
	ActionReassign ChangeAction = "REASSIGN"
	ActionCancel   ChangeAction = "CANCEL"
	ActionReduce   ChangeAction = "REDUCE_DURATION"
	ActionSwap     ChangeAction = "SWAP"
)

// ScheduleChange is one directive: which assignment, what to do, and the
// parameters the action needs.
type ScheduleChange struct {
	AssignmentID string         `json:"assignment_id"`
	Action       ChangeAction   `json:"action"`
	Params       map[string]any `json:"params,omitempty"`
}

// ResolutionSuggestion is a pure value object proposing a remediation.
type ResolutionSuggestion struct {
	Type        ResolutionType   `json:"type"`
	Description string           `json:"description"`
	Changes     []ScheduleChange `json:"changes"`
	Impact      ImpactLevel      `json:"impact"`
}
