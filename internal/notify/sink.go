// Package notify hands chat events to the platform's notification pipeline.
package notify

import (
	"context"
	"strconv"
	"time"
)

const (
	RoutingKey         = "notifications.chat"
	TypeMessageOffline = "chat.message.offline"
)

// Notification is a structured event for a recipient outside the realtime channel.
type Notification struct {
	Type           string    `json:"type"`
	RecipientID    int64     `json:"recipient_id"`
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id,omitempty"`
	SenderID       int64     `json:"sender_id,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Sink accepts notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AMQPSink publishes notifications to the chat exchange.
type AMQPSink struct {
	publisher  Publisher
	routingKey string
}

// NewAMQPSink constructs an AMQPSink.
func NewAMQPSink(publisher Publisher) *AMQPSink {
	return &AMQPSink{publisher: publisher, routingKey: RoutingKey}
}

func (s *AMQPSink) Notify(ctx context.Context, n Notification) error {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	return s.publisher.Publish(ctx, s.routingKey, n, map[string]string{
		"notification_type": n.Type,
		"recipient_id":      strconv.FormatInt(n.RecipientID, 10),
	})
}
