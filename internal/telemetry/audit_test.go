package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	event      any
	headers    map[string]string
}

func (c *capturePublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	c.routingKey = routingKey
	c.event = event
	c.headers = headers
	return nil
}

func TestRecordBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-service", "test", nil)

	emitter.Record(context.Background(), "req-1", Record{
		Action:         ActionMemberRemoved,
		ActorID:        7,
		ConversationID: 3,
		TargetUserID:   9,
	})

	assert.Equal(t, "audit.chat", pub.routingKey)
	assert.Equal(t, "req-1", pub.headers["x-request-id"])
	env, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", env.EventType)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "7", *env.UserID)
	assert.Equal(t, ActionMemberRemoved, env.Payload.Action)
	assert.Equal(t, ActionMemberRemoved, env.Payload.Text)
	assert.Equal(t, int64(3), env.Payload.ConversationID)
	assert.Equal(t, int64(9), env.Payload.TargetUserID)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "x", "", nil)
	emitter.Record(context.Background(), "", Record{Action: ActionMemberAdded})
}
