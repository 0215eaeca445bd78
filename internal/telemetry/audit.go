package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Audit actions recorded for conversation and membership mutations.
const (
	ActionConversationCreated = "conversation.created"
	ActionMemberAdded         = "member.added"
	ActionMemberRemoved       = "member.removed"
	ActionMemberLeft          = "member.left"
	ActionRoleChanged         = "member.role_changed"
	ActionMessageDeleted      = "message.deleted"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Text           string `json:"text"`
	Action         string `json:"action,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	TargetUserID   int64  `json:"target_user_id,omitempty"`
}

// Record describes one audited mutation.
type Record struct {
	Action         string
	ActorID        int64
	ConversationID int64
	TargetUserID   int64
	Text           string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.publish(ctx, requestID, userID, AuditPayload{Level: level, Text: text})
}

// Record publishes an audited chat mutation at INFO level.
func (e *AuditEmitter) Record(ctx context.Context, requestID string, r Record) {
	var userID *string
	if r.ActorID != 0 {
		id := strconv.FormatInt(r.ActorID, 10)
		userID = &id
	}
	text := r.Text
	if text == "" {
		text = r.Action
	}
	e.publish(ctx, requestID, userID, AuditPayload{
		Level:          "INFO",
		Text:           text,
		Action:         r.Action,
		ConversationID: r.ConversationID,
		TargetUserID:   r.TargetUserID,
	})
}

func (e *AuditEmitter) publish(ctx context.Context, requestID string, userID *string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Debug("audit emit",
		zap.String("level", payload.Level),
		zap.String("action", payload.Action),
		zap.String("request_id", requestID),
		zap.String("text", payload.Text))

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", zap.Error(err))
	}
}
