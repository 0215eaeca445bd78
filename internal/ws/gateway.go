package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/chat"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/presence"
)

// ChatService is the part of the chat service the gateway dispatches into.
type ChatService interface {
	Authorize(ctx context.Context, actorID, conversationID int64) (models.Membership, error)
	Contacts(ctx context.Context, userID int64) ([]int64, error)
	SendMessage(ctx context.Context, actorID, conversationID int64, in chat.SendInput) (models.Message, error)
	MarkRead(ctx context.Context, actorID, conversationID int64) error
}

// GatewayConfig tunes connection handling.
type GatewayConfig struct {
	SendQueue           int
	SweepInterval       time.Duration
	InactivityThreshold time.Duration
}

// Gateway authenticates websocket connections, tracks them in the presence registry and
// dispatches inbound events.
type Gateway struct {
	provider identity.Provider
	service  ChatService
	registry *presence.Registry
	router   *Router
	events   *observability.EventPublisher
	validate *validator.Validate
	logger   *zap.Logger
	cfg      GatewayConfig
}

// NewGateway constructs a Gateway. events may be nil.
func NewGateway(provider identity.Provider, service ChatService, registry *presence.Registry, router *Router,
	events *observability.EventPublisher, logger *zap.Logger, cfg GatewayConfig) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = 90 * time.Second
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Gateway{
		provider: provider,
		service:  service,
		registry: registry,
		router:   router,
		events:   events,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates and upgrades the request, then serves the connection until it closes.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	requestID := observability.RequestIDFromRequest(c.Request)
	ctx = observability.WithRequestID(ctx, requestID)
	traceID := span.SpanContext().TraceID().String()

	id, err := identity.Resolve(ctx, g.provider, credentialFromRequest(c.Request))
	if err != nil {
		span.End()
		g.events.PublishWS(ctx, "ws_error", map[string]interface{}{
			"ws":       map[string]interface{}{"kind": "chat", "event": "ws_error", "reason": "unauthenticated"},
			"identity": map[string]interface{}{"ip": observability.IPFromRequest(c.Request)},
		}, requestID, traceID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthenticated", "message": "invalid credential"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      id.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info, g.cfg.SendQueue)
	go client.writePump()

	prev := g.registry.Register(id.UserID, client)
	if prev != nil {
		g.router.Detach(prev)
		prev.Close(CloseSessionReplaced, "session replaced")
	}
	span.End()
	ctx = context.WithoutCancel(ctx)

	observability.IncWSActive()
	g.events.PublishWS(ctx, "ws_connect", info.lifecyclePayload("ws_connect", ""), requestID, traceID)
	g.logger.Info("websocket connected", zap.Int64("user_id", id.UserID), zap.String("conn_id", info.ConnID))
	if prev == nil {
		g.broadcastPresence(ctx, id.UserID, models.PresenceOnline)
	}

	err = client.readPump(
		func(data []byte) { g.dispatch(ctx, client, data) },
		func() { g.registry.Touch(id.UserID) },
	)
	g.disconnect(ctx, client, err)
}

func (g *Gateway) disconnect(ctx context.Context, client *Client, readErr error) {
	info := client.Info()
	reason := client.CloseReason()
	if reason == "" && readErr != nil {
		reason = readErr.Error()
	}
	if readErr != nil && client.CloseReason() == "" &&
		!websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		g.events.PublishWS(ctx, "ws_error", info.lifecyclePayload("ws_error", reason), info.RequestID, info.TraceID)
	}

	g.router.Detach(client)
	current := g.registry.Unregister(info.UserID, client)
	client.Close(websocket.CloseNormalClosure, "")

	observability.DecWSActive()
	g.events.PublishWS(ctx, "ws_disconnect", info.lifecyclePayload("ws_disconnect", reason), info.RequestID, info.TraceID)
	g.logger.Info("websocket disconnected",
		zap.Int64("user_id", info.UserID),
		zap.String("conn_id", info.ConnID),
		zap.String("reason", reason))
	if current {
		g.broadcastPresence(ctx, info.UserID, models.PresenceOffline)
	}
}

// RunSweeper evicts idle connections every SweepInterval until ctx is done.
func (g *Gateway) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.Sweep(ctx, now)
		}
	}
}

// Sweep evicts every connection idle for longer than the inactivity threshold and reports it offline.
func (g *Gateway) Sweep(ctx context.Context, now time.Time) int {
	evicted := g.registry.Sweep(now, g.cfg.InactivityThreshold)
	for _, e := range evicted {
		g.router.Detach(e.Handle)
		e.Handle.Close(CloseInactive, "inactivity timeout")
		observability.IncPresenceEviction()
		if client, ok := e.Handle.(*Client); ok {
			info := client.Info()
			g.events.PublishWS(ctx, "ws_evicted", info.lifecyclePayload("ws_evicted", "inactivity timeout"), info.RequestID, info.TraceID)
		}
		g.logger.Info("presence evicted",
			zap.Int64("user_id", e.UserID),
			zap.Time("last_activity", e.LastActivity))
		g.broadcastPresence(ctx, e.UserID, models.PresenceOffline)
	}
	return len(evicted)
}

// Shutdown closes every live connection.
func (g *Gateway) Shutdown() {
	for _, e := range g.registry.Snapshot() {
		e.Handle.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

// broadcastPresence tells every contact of userID about a presence change.
func (g *Gateway) broadcastPresence(ctx context.Context, userID int64, status string) {
	contacts, err := g.service.Contacts(ctx, userID)
	if err != nil {
		g.logger.Warn("presence broadcast skipped", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	event := models.NewEvent(models.EventPresenceChanged, 0, models.PresenceChange{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now().UTC(),
	})
	for _, id := range contacts {
		g.router.ToIdentity(id, event)
	}
}

type conversationPayload struct {
	ConversationID int64 `json:"conversation_id" validate:"required,gt=0"`
}

type sendPayload struct {
	ConversationID int64              `json:"conversation_id" validate:"required,gt=0"`
	Content        *string            `json:"content"`
	Type           models.MessageType `json:"type" validate:"omitempty,oneof=text image video audio file system"`
	MediaURL       *string            `json:"media_url" validate:"omitempty,max=2048"`
	ReplyToID      *int64             `json:"reply_to_id" validate:"omitempty,gt=0"`
	Metadata       models.JSONMap     `json:"metadata"`
}

var errUnknownEvent = apperrors.Validation("unknown event type")

// dispatch runs one inbound frame. Failures are reported to the sender and never close the connection.
func (g *Gateway) dispatch(ctx context.Context, client *Client, data []byte) {
	g.registry.Touch(client.UserID())

	var in models.InboundEvent
	if err := json.Unmarshal(data, &in); err != nil {
		g.replyError(client, in, 0, apperrors.Validation("malformed event"))
		return
	}
	var conversationID int64
	var err error
	switch in.Type {
	case models.EventHeartbeat:
		g.reply(client, models.EventAck, 0, in.RequestID, nil)
	case models.EventSendMessage:
		conversationID, err = g.handleSend(ctx, client, in)
	case models.EventJoinConversation, models.EventLeaveConversation,
		models.EventTypingStart, models.EventTypingStop, models.EventMarkRead:
		var p conversationPayload
		if err = g.decode(in.Data, &p); err == nil {
			conversationID = p.ConversationID
			err = g.handleConversationEvent(ctx, client, in, p.ConversationID)
		}
	default:
		observability.IncWSEvent("unknown")
		g.replyError(client, in, 0, errUnknownEvent)
		return
	}
	observability.IncWSEvent(in.Type)
	if err != nil {
		g.replyError(client, in, conversationID, err)
	}
}

func (g *Gateway) handleConversationEvent(ctx context.Context, client *Client, in models.InboundEvent, conversationID int64) error {
	userID := client.UserID()
	switch in.Type {
	case models.EventJoinConversation:
		member, err := g.service.Authorize(ctx, userID, conversationID)
		if err != nil {
			return err
		}
		g.router.Join(conversationID, client)
		g.reply(client, models.EventJoined, conversationID, in.RequestID, member)
		g.router.ToRoom(conversationID, models.NewEvent(models.EventUserJoinedConversation, conversationID, models.MembershipChange{
			ConversationID: conversationID,
			UserID:         userID,
			Role:           member.Role,
		}), userID)

	case models.EventLeaveConversation:
		if g.router.Leave(conversationID, client) {
			g.router.ToRoom(conversationID, models.NewEvent(models.EventUserLeftConversation, conversationID, models.MembershipChange{
				ConversationID: conversationID,
				UserID:         userID,
			}), userID)
		}
		g.reply(client, models.EventAck, conversationID, in.RequestID, nil)

	case models.EventTypingStart, models.EventTypingStop:
		if !g.router.Subscribed(conversationID, client) {
			return apperrors.Authorization("join the conversation before sending typing events")
		}
		g.router.ToRoom(conversationID, models.NewEvent(models.EventTypingStateChanged, conversationID, models.TypingState{
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       in.Type == models.EventTypingStart,
		}), userID)

	case models.EventMarkRead:
		if err := g.service.MarkRead(ctx, userID, conversationID); err != nil {
			return err
		}
		g.reply(client, models.EventAck, conversationID, in.RequestID, nil)
	}
	return nil
}

func (g *Gateway) handleSend(ctx context.Context, client *Client, in models.InboundEvent) (int64, error) {
	var p sendPayload
	if err := g.decode(in.Data, &p); err != nil {
		return 0, err
	}
	msg, err := g.service.SendMessage(ctx, client.UserID(), p.ConversationID, chat.SendInput{
		Content:   p.Content,
		Type:      p.Type,
		MediaURL:  p.MediaURL,
		ReplyToID: p.ReplyToID,
		Metadata:  p.Metadata,
	})
	if err != nil {
		return p.ConversationID, err
	}
	g.reply(client, models.EventAck, p.ConversationID, in.RequestID, msg)
	return p.ConversationID, nil
}

func (g *Gateway) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return apperrors.Validation("event data is required")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.Validation("malformed event data")
	}
	if err := g.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.Validation("invalid %s", verrs[0].Field())
		}
		return apperrors.Validation("invalid event data")
	}
	return nil
}

func (g *Gateway) reply(client *Client, eventType string, conversationID int64, requestID string, data any) {
	event := models.NewEvent(eventType, conversationID, data)
	event.RequestID = requestID
	payload, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("reply encoding failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	_ = client.Send(payload)
}

func (g *Gateway) replyError(client *Client, in models.InboundEvent, conversationID int64, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		g.logger.Error("realtime event failed",
			zap.Int64("user_id", client.UserID()),
			zap.String("event", in.Type),
			zap.Error(err))
	}
	g.reply(client, models.EventError, conversationID, in.RequestID, models.ErrorPayload{
		Kind:    string(kind),
		Message: apperrors.PublicMessage(err),
		Event:   in.Type,
	})
}
