package models

import "time"

// MessageType enumerates the supported message payloads.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// DeletedMessageMarker replaces the content of a soft-deleted message.
const DeletedMessageMarker = "This message was deleted"

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile, MessageSystem:
		return true
	}
	return false
}

// RequiresContent reports whether a message of this type must carry text.
func (t MessageType) RequiresContent() bool {
	return t == MessageText
}

// Message represents a single unit of conversation content.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int64       `db:"conversation_id" json:"conversation_id"`
	SenderID       int64       `db:"sender_id" json:"sender_id"`
	Content        *string     `db:"content" json:"content,omitempty"`
	Type           MessageType `db:"message_type" json:"type"`
	MediaURL       *string     `db:"media_url" json:"media_url,omitempty"`
	ReplyToID      *int64      `db:"reply_to_id" json:"reply_to_id,omitempty"`
	IsEdited       bool        `db:"is_edited" json:"is_edited"`
	EditedAt       *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
	IsDeleted      bool        `db:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	Metadata       JSONMap     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`

	Sender *UserSummary `db:"-" json:"sender,omitempty"`
}

// Preview returns a short text suitable for notifications and list views.
func (m Message) Preview(max int) string {
	if m.IsDeleted {
		return DeletedMessageMarker
	}
	if m.Content == nil || *m.Content == "" {
		return "[" + string(m.Type) + "]"
	}
	runes := []rune(*m.Content)
	if len(runes) <= max {
		return *m.Content
	}
	return string(runes[:max]) + "…"
}
