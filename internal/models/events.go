package models

import "time"

// EventType names a domain event emitted by the scheduling core.
type EventType string

const (
	EventAvailabilityChanged   EventType = "availability.changed"
	EventTimeOffRequested      EventType = "timeoff.requested"
	EventTimeOffApproved       EventType = "timeoff.approved"
	EventTimeOffDenied         EventType = "timeoff.denied"
	EventScheduleCreated       EventType = "schedule.created"
	EventScheduleUpdated       EventType = "schedule.updated"
	EventSchedulePublished     EventType = "schedule.published"
	EventScheduleDeleted       EventType = "schedule.deleted"
	EventConflictResolved      EventType = "conflict.resolved"
	EventOptimizationCompleted EventType = "optimization.completed"
)

// DomainEvent is a fire-and-forget notification handed to the event
// sink; delivery failures never affect the emitting operation.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}
