package kafka

import (
	"encoding/json"
	"time"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	FactEvent *FactEvent
}

// ParseFactEvent parses the message value as a fact event
func (m *IncomingMessage) ParseFactEvent() error {
	var event FactEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return err
	}
	m.FactEvent = &event
	return nil
}

// GetEventType returns the event type, preferring the parsed body over
// the message header.
func (m *IncomingMessage) GetEventType() string {
	if m.FactEvent != nil && m.FactEvent.EventType != "" {
		return m.FactEvent.EventType
	}
	return m.Headers["event_type"]
}

// GetFactType returns the canonical fact type for this message
func (m *IncomingMessage) GetFactType() string {
	if m.FactEvent != nil && m.FactEvent.FactType != "" {
		return m.FactEvent.FactType
	}
	return m.Headers["fact_type"]
}

// GetSourceSystem returns the source system that produced the fact
func (m *IncomingMessage) GetSourceSystem() string {
	if m.FactEvent != nil && m.FactEvent.SourceSystem != "" {
		return m.FactEvent.SourceSystem
	}
	return m.Headers["source_system"]
}

// GetData returns the fact payload as JSON
func (m *IncomingMessage) GetData() json.RawMessage {
	if m.FactEvent != nil {
		return m.FactEvent.Data
	}
	return m.Value
}
