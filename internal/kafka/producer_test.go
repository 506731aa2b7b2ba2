package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	msg, err := buildMessage("storefront.order.created", Event{
		Type:       "order.created",
		EntityID:   "order-1",
		OccurredAt: at,
		Data:       map[string]any{"code": "DH-250301-ABCDEF"},
	})
	require.NoError(t, err)

	assert.Equal(t, "storefront.order.created", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "order.created", decoded.Type)
	assert.True(t, at.Equal(decoded.OccurredAt))
}

func TestBuildMessageStampsTime(t *testing.T) {
	msg, err := buildMessage("t", Event{Type: "x", EntityID: "e"})
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.False(t, decoded.OccurredAt.IsZero())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), "t", Event{Type: "x"}))
}
