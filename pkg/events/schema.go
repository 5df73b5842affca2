package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Fact events
	EventTypeFlowCreated EventType = "fact.funding_flow.created"
	EventTypeFlowUpdated EventType = "fact.funding_flow.updated"
	EventTypeRoleCreated EventType = "fact.role_event.created"
	EventTypeRoleUpdated EventType = "fact.role_event.updated"

	// Pipeline events
	EventTypeRunFinished    EventType = "pipeline.run.finished"
	EventTypeGraphProjected EventType = "pipeline.graph.projected"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewBaseEvent creates a base event with a fresh correlation ID
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
