package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFactEvent(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{"event_type":"fact.funding_flow.created","fact_type":"funding_flow","fact_id":"f-1","source_system":"iati","data":{"id":"f-1"}}`),
	}

	require.NoError(t, msg.ParseFactEvent())
	require.NotNil(t, msg.FactEvent)
	assert.Equal(t, "fact.funding_flow.created", msg.GetEventType())
	assert.Equal(t, "funding_flow", msg.GetFactType())
	assert.Equal(t, "iati", msg.GetSourceSystem())
	assert.JSONEq(t, `{"id":"f-1"}`, string(msg.GetData()))
}

func TestParseFactEventRejectsMalformedBody(t *testing.T) {
	msg := &IncomingMessage{Value: []byte("not json")}
	assert.Error(t, msg.ParseFactEvent())
}

func TestMessageFallsBackToHeaders(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{}`),
		Headers: map[string]string{
			"event_type":    "fact.role_event.updated",
			"fact_type":     "role_event",
			"source_system": "curated_sheet",
		},
	}

	require.NoError(t, msg.ParseFactEvent())
	assert.Equal(t, "fact.role_event.updated", msg.GetEventType())
	assert.Equal(t, "role_event", msg.GetFactType())
	assert.Equal(t, "curated_sheet", msg.GetSourceSystem())
}

func TestGetDataWithoutParsedEventReturnsRawValue(t *testing.T) {
	raw := json.RawMessage(`{"anything":true}`)
	msg := &IncomingMessage{Value: raw}
	assert.Equal(t, json.RawMessage(raw), msg.GetData())
}
