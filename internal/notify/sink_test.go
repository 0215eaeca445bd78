package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	routingKey string
	event      any
	headers    map[string]string
}

func (r *recordingPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	r.routingKey = routingKey
	r.event = event
	r.headers = headers
	return nil
}

func TestAMQPSinkPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewAMQPSink(pub)

	require.NoError(t, sink.Notify(context.Background(), Notification{
		Type:           TypeMessageOffline,
		RecipientID:    5,
		ConversationID: 2,
		MessageID:      11,
	}))

	assert.Equal(t, RoutingKey, pub.routingKey)
	assert.Equal(t, "5", pub.headers["recipient_id"])
	n, ok := pub.event.(Notification)
	require.True(t, ok)
	assert.False(t, n.OccurredAt.IsZero())
	assert.Equal(t, int64(11), n.MessageID)
}
