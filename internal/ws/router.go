package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/presence"
)

// MemberLister resolves the identities that currently belong to a conversation.
type MemberLister interface {
	ActiveMemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// MemberListerFunc adapts a function to MemberLister.
type MemberListerFunc func(ctx context.Context, conversationID int64) ([]int64, error)

func (f MemberListerFunc) ActiveMemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	return f(ctx, conversationID)
}

// Router turns conversation and identity scoped events into deliveries to live connections.
// Member deliveries go through the presence registry, so only the newest connection of an identity is reached.
// Rooms hold the connections that explicitly joined a conversation and receive ephemeral traffic.
type Router struct {
	registry *presence.Registry
	members  MemberLister
	logger   *zap.Logger

	mu          sync.RWMutex
	rooms       map[int64]map[string]presence.Handle // conversation -> conn id -> handle
	handleRooms map[string]map[int64]struct{}        // conn id -> conversations
}

// NewRouter constructs a Router on top of registry.
func NewRouter(registry *presence.Registry, members MemberLister, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry:    registry,
		members:     members,
		logger:      logger,
		rooms:       make(map[int64]map[string]presence.Handle),
		handleRooms: make(map[string]map[int64]struct{}),
	}
}

// ToConversation delivers event to the live connection of every active member except exclude.
func (r *Router) ToConversation(ctx context.Context, conversationID int64, event models.Event, exclude int64) {
	ids, err := r.members.ActiveMemberIDs(ctx, conversationID)
	if err != nil {
		observability.IncRouterDrop("member_lookup")
		r.logger.Warn("fan-out skipped, member lookup failed",
			zap.Int64("conversation_id", conversationID),
			zap.String("event", event.Type),
			zap.Error(err))
		return
	}
	payload, ok := r.encode(event)
	if !ok {
		return
	}
	for _, id := range ids {
		if id == exclude {
			continue
		}
		r.deliver(id, event.Type, payload)
	}
}

// ToIdentity delivers event to the live connection of userID, if any.
func (r *Router) ToIdentity(userID int64, event models.Event) {
	payload, ok := r.encode(event)
	if !ok {
		return
	}
	r.deliver(userID, event.Type, payload)
}

// ToRoom delivers event to every connection subscribed to the conversation except those of exclude.
func (r *Router) ToRoom(conversationID int64, event models.Event, exclude int64) {
	payload, ok := r.encode(event)
	if !ok {
		return
	}

	r.mu.RLock()
	targets := make([]presence.Handle, 0, len(r.rooms[conversationID]))
	for _, h := range r.rooms[conversationID] {
		if h.UserID() != exclude {
			targets = append(targets, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range targets {
		r.send(h, event.Type, payload)
	}
}

// Join subscribes h to the conversation's room.
func (r *Router) Join(conversationID int64, h presence.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]presence.Handle)
		r.rooms[conversationID] = room
	}
	room[h.ID()] = h

	joined := r.handleRooms[h.ID()]
	if joined == nil {
		joined = make(map[int64]struct{})
		r.handleRooms[h.ID()] = joined
	}
	joined[conversationID] = struct{}{}
}

// Leave unsubscribes h from the conversation's room. It reports whether h was subscribed.
func (r *Router) Leave(conversationID int64, h presence.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(conversationID, h.ID())
}

// Subscribed reports whether h has joined the conversation's room.
func (r *Router) Subscribed(conversationID int64, h presence.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][h.ID()]
	return ok
}

// Unsubscribe removes every connection of userID from the conversation's room.
func (r *Router) Unsubscribe(conversationID, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID, h := range r.rooms[conversationID] {
		if h.UserID() == userID {
			r.leaveLocked(conversationID, connID)
		}
	}
}

// Detach removes h from all rooms.
func (r *Router) Detach(h presence.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversationID := range r.handleRooms[h.ID()] {
		r.leaveLocked(conversationID, h.ID())
	}
	delete(r.handleRooms, h.ID())
}

// RoomSize returns the number of connections subscribed to the conversation.
func (r *Router) RoomSize(conversationID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

func (r *Router) leaveLocked(conversationID int64, connID string) bool {
	room := r.rooms[conversationID]
	if _, ok := room[connID]; !ok {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if joined, ok := r.handleRooms[connID]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(r.handleRooms, connID)
		}
	}
	return true
}

func (r *Router) deliver(userID int64, eventType string, payload []byte) {
	h, ok := r.registry.Lookup(userID)
	if !ok {
		return
	}
	r.send(h, eventType, payload)
}

func (r *Router) send(h presence.Handle, eventType string, payload []byte) {
	if err := h.Send(payload); err != nil {
		observability.IncRouterDrop("send_failed")
		r.logger.Warn("delivery dropped",
			zap.Int64("user_id", h.UserID()),
			zap.String("conn_id", h.ID()),
			zap.String("event", eventType),
			zap.Error(err))
	}
}

func (r *Router) encode(event models.Event) ([]byte, bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		observability.IncRouterDrop("encode")
		r.logger.Error("event encoding failed", zap.String("event", event.Type), zap.Error(err))
		return nil, false
	}
	return payload, true
}
