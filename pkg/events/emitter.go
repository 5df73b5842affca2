// Package events handles event emission for canonical fact changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes fact events when consolidation changes the canonical
// model. Emission is best effort; failures are logged and never fail the
// run that produced the fact.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitFlowConsolidated emits a created or updated event for a funding flow
func (e *Emitter) EmitFlowConsolidated(ctx context.Context, flow *models.FundingFlow, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitFlowConsolidated")
	defer span.End()

	eventType := EventTypeFlowUpdated
	if created {
		eventType = EventTypeFlowCreated
	}

	data, _ := json.Marshal(flow)
	event := &kafka.FactEvent{
		EventType:    string(eventType),
		FactType:     models.FactTypeFundingFlow,
		FactID:       flow.ID,
		SourceSystem: flow.SourceSystem,
		Data:         data,
	}

	if err := e.producer.PublishFactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit funding flow event")
		return err
	}

	return nil
}

// EmitRoleEventConsolidated emits a created or updated event for a role event
func (e *Emitter) EmitRoleEventConsolidated(ctx context.Context, roleEvent *models.RoleEvent, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRoleEventConsolidated")
	defer span.End()

	eventType := EventTypeRoleUpdated
	if created {
		eventType = EventTypeRoleCreated
	}

	data, _ := json.Marshal(roleEvent)
	event := &kafka.FactEvent{
		EventType: string(eventType),
		FactType:  models.FactTypeRoleEvent,
		FactID:    roleEvent.ID,
		Data:      data,
	}

	if err := e.producer.PublishFactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit role event")
		return err
	}

	return nil
}

// EmitRunFinished emits a summary event when a pipeline run closes
func (e *Emitter) EmitRunFinished(ctx context.Context, runID, sourceSystem, status string, counts models.RunCounts) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFinished")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"status":        status,
		"rows_seen":     counts.RowsSeen,
		"rows_ingested": counts.RowsIngested,
		"rows_skipped":  counts.RowsSkipped,
	})
	event := &kafka.FactEvent{
		EventType:    string(EventTypeRunFinished),
		FactType:     "ingest_run",
		FactID:       runID,
		SourceSystem: sourceSystem,
		RunID:        runID,
		Data:         data,
	}

	if err := e.producer.PublishFactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run finished event")
		return err
	}

	return nil
}

// EmitGraphProjected emits a summary event after a graph projection pass
func (e *Emitter) EmitGraphProjected(ctx context.Context, scope string, nodes, relationships, failures int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGraphProjected")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"scope":         scope,
		"nodes":         nodes,
		"relationships": relationships,
		"failures":      failures,
	})
	event := &kafka.FactEvent{
		EventType: string(EventTypeGraphProjected),
		FactType:  "graph_projection",
		FactID:    scope,
		Data:      data,
	}

	if err := e.producer.PublishFactEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit graph projected event")
		return err
	}

	return nil
}
