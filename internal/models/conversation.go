package models

import (
	"fmt"
	"time"
)

// ConversationKind distinguishes one-to-one chats from group chats.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Role is the tagged role a member holds inside a conversation.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// CanModerate reports whether the role may manage other members and their messages.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Outranks reports whether r may act on a member holding other.
func (r Role) Outranks(other Role) bool {
	return r.rank() > other.rank()
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Conversation represents a direct or group chat.
type Conversation struct {
	ID            int64            `db:"id" json:"id"`
	Kind          ConversationKind `db:"kind" json:"kind"`
	Name          *string          `db:"name" json:"name,omitempty"`
	Description   *string          `db:"description" json:"description,omitempty"`
	CreatedBy     int64            `db:"created_by" json:"created_by"`
	AvatarURL     *string          `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive      bool             `db:"is_active" json:"is_active"`
	DirectKey     *string          `db:"direct_key" json:"-"`
	Settings      JSONMap          `db:"settings" json:"settings,omitempty"`
	LastMessageAt *time.Time       `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`

	Members []Membership `db:"-" json:"members,omitempty"`
}

// ConversationSummary is a conversation as seen from one member's list view.
type ConversationSummary struct {
	Conversation
	MyRole      Role     `db:"my_role" json:"my_role"`
	UnreadCount int      `db:"my_unread_count" json:"unread_count"`
	IsMuted     bool     `db:"my_is_muted" json:"is_muted"`
	LastMessage *Message `db:"-" json:"last_message,omitempty"`
}

// NewGroup carries the attributes of a group conversation being created.
type NewGroup struct {
	Name        *string
	Description *string
	AvatarURL   *string
	MemberIDs   []int64
	Settings    JSONMap
}

// DirectKey canonicalizes an unordered pair of identities.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Membership links an identity to a conversation.
type Membership struct {
	ID             int64      `db:"id" json:"id"`
	ConversationID int64      `db:"conversation_id" json:"conversation_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Role           Role       `db:"role" json:"role"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	JoinedAt       time.Time  `db:"joined_at" json:"joined_at"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	IsMuted        bool       `db:"is_muted" json:"is_muted"`
	MutedUntil     *time.Time `db:"muted_until" json:"muted_until,omitempty"`
	UnreadCount    int        `db:"unread_count" json:"unread_count"`

	User *UserSummary `db:"-" json:"user,omitempty"`
}

// MutedAt reports whether notifications are suppressed for the member at t.
func (m Membership) MutedAt(t time.Time) bool {
	if !m.IsMuted {
		return false
	}
	return m.MutedUntil == nil || t.Before(*m.MutedUntil)
}

// UserSummary is the denormalized view of an identity attached to responses.
type UserSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RemovalResult describes the outcome of a membership removal.
type RemovalResult struct {
	ConversationDeactivated bool
	RemainingMemberIDs      []int64
}
