package observability

import (
	"context"

	"go.uber.org/zap"
)

const wsEventsRoutingKey = "ws_events.chat"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// EventPublisher emits websocket lifecycle events to the event bus and counts them.
type EventPublisher struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewEventPublisher(publisher Publisher, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{publisher: publisher, logger: logger}
}

// PublishWS counts the event and publishes it. A nil EventPublisher only counts.
func (e *EventPublisher) PublishWS(ctx context.Context, eventName string, payload map[string]interface{}, requestID, traceID string) {
	IncWSEvent(eventName)
	if e == nil || e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, wsEventsRoutingKey, EventEnvelope{
		EventType: "ws_events",
		EventName: eventName,
		Payload:   payload,
	}, BuildHeaders(requestID, traceID))
	if err != nil {
		IncAMQPPublishError()
		e.logger.Warn("ws event publish failed", zap.String("event", eventName), zap.Error(err))
	}
}
