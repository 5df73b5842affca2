package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gobusters/ectologger/zapadapter"

	"github.com/Ramsey-B/willow/pkg/kafka"
	"github.com/Ramsey-B/willow/pkg/models"
)

func newTestSyncConsumer() *SyncConsumer {
	zapLogger, _ := zap.NewDevelopment()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	projector := NewProjector(nil, nil, nil, nil, nil, nil, nil, nil, nil, DefaultProjectorConfig(), logger)
	return NewSyncConsumer(projector, logger)
}

func factEventMessage(t *testing.T, factType string, fact any) *kafka.IncomingMessage {
	t.Helper()
	data, err := json.Marshal(fact)
	require.NoError(t, err)
	return &kafka.IncomingMessage{
		Headers: map[string]string{"fact_type": factType},
		FactEvent: &kafka.FactEvent{
			EventType: "fact.funding_flow.updated",
			FactType:  factType,
			Data:      data,
		},
	}
}

func TestSyncConsumerIgnoresCoordinationEvents(t *testing.T) {
	consumer := newTestSyncConsumer()

	msg := factEventMessage(t, "ingest_run", map[string]any{"status": "success"})
	err := consumer.Handle(context.Background(), msg)
	assert.NoError(t, err)
}

func TestSyncConsumerRejectsMalformedFlowPayload(t *testing.T) {
	consumer := newTestSyncConsumer()

	msg := &kafka.IncomingMessage{
		FactEvent: &kafka.FactEvent{
			FactType: models.FactTypeFundingFlow,
			Data:     json.RawMessage(`{"id": 42}`),
		},
	}
	err := consumer.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse funding flow event")
}

func TestSyncConsumerRejectsFlowWithoutID(t *testing.T) {
	consumer := newTestSyncConsumer()

	msg := factEventMessage(t, models.FactTypeFundingFlow, models.FundingFlow{})
	err := consumer.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing fact id")
}

// A flow with no resolvable donor or recipient has nothing to anchor in
// the graph and is dropped without touching the backend.
func TestApplyFlowSkipsFlowWithoutEndpoints(t *testing.T) {
	consumer := newTestSyncConsumer()

	msg := factEventMessage(t, models.FactTypeFundingFlow, models.FundingFlow{
		ID:           "f-1",
		SourceSystem: models.SourceSystemIATI,
	})
	err := consumer.Handle(context.Background(), msg)
	assert.NoError(t, err)
}
