package models

import (
	"encoding/json"
	"time"
)

// Inbound realtime event types.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventHeartbeat         = "heartbeat"
	EventMarkRead          = "mark_read"
)

// Outbound realtime event types.
const (
	EventNewMessage             = "new_message"
	EventMessageEdited          = "message_edited"
	EventMessageDeleted         = "message_deleted"
	EventUserJoinedConversation = "user_joined_conversation"
	EventUserLeftConversation   = "user_left_conversation"
	EventTypingStateChanged     = "typing_state_changed"
	EventPresenceChanged        = "presence_changed"
	EventConversationCreated    = "conversation_created"
	EventJoined                 = "joined"
	EventAck                    = "ack"
	EventError                  = "error"
)

// Event is the envelope written to live connections.
type Event struct {
	Type           string    `json:"type"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEvent stamps an outbound event with the current time.
func NewEvent(eventType string, conversationID int64, data any) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	}
}

// InboundEvent is the envelope read from live connections.
type InboundEvent struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MembershipChange is the payload of joined/left notices.
type MembershipChange struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	ActorID        int64  `json:"actor_id,omitempty"`
	Role           Role   `json:"role,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// TypingState is the payload of typing_state_changed.
type TypingState struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	IsTyping       bool  `json:"is_typing"`
}

// PresenceChange is the payload of presence_changed.
type PresenceChange struct {
	UserID   int64     `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Presence status values.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// MessageDeletion is the payload of message_deleted.
type MessageDeletion struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
	DeletedBy      int64 `json:"deleted_by"`
}

// ErrorPayload is the payload of an outbound error event.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
