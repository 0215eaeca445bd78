// Package chat implements conversation management and the message pipeline shared by the HTTP API
// and the realtime gateway.
package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/authz"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/notify"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/telemetry"
)

const (
	DefaultMessagePage      = 50
	MaxMessagePage          = 100
	DefaultConversationPage = 20
	MaxConversationPage     = 100
	MaxContentLength        = 4000
	previewLength           = 120
)

// Broadcaster delivers events to live connections.
type Broadcaster interface {
	ToConversation(ctx context.Context, conversationID int64, event models.Event, exclude int64)
	ToIdentity(userID int64, event models.Event)
	Unsubscribe(conversationID, userID int64)
}

// Presence answers whether an identity is reachable in realtime.
type Presence interface {
	IsOnline(userID int64) bool
}

// Limiter throttles sends per key. It reports false when the key is over its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Broadcaster Broadcaster
	Presence    Presence
	Limiter     Limiter
	Notifier    notify.Sink
	Directory   identity.Directory
	Audit       *telemetry.AuditEmitter
	Logger      *zap.Logger
}

// Service coordinates the conversation store, the authorizer and realtime fan-out.
type Service struct {
	convs     repositories.ConversationRepository
	msgs      repositories.MessageRepository
	authz     *authz.Authorizer
	broadcast Broadcaster
	presence  Presence
	limiter   Limiter
	notifier  notify.Sink
	directory identity.Directory
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger
}

// NewService constructs a Service. Nil collaborators degrade to no-ops.
func NewService(convs repositories.ConversationRepository, msgs repositories.MessageRepository, opts Options) *Service {
	s := &Service{
		convs:     convs,
		msgs:      msgs,
		authz:     authz.New(convs),
		broadcast: opts.Broadcaster,
		presence:  opts.Presence,
		limiter:   opts.Limiter,
		notifier:  opts.Notifier,
		directory: opts.Directory,
		audit:     opts.Audit,
		logger:    opts.Logger,
	}
	if s.broadcast == nil {
		s.broadcast = nopBroadcaster{}
	}
	if s.directory == nil {
		s.directory = identity.StaticDirectory{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Authorize returns the caller's active membership in conversationID.
func (s *Service) Authorize(ctx context.Context, actorID, conversationID int64) (models.Membership, error) {
	return s.authz.RequireMember(ctx, conversationID, actorID)
}

// Contacts returns the identities sharing an active conversation with userID.
func (s *Service) Contacts(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.convs.ContactIDs(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load contacts")
	}
	return ids, nil
}

// users resolves display summaries. Directory failures degrade to ID-only summaries.
func (s *Service) users(ctx context.Context, ids []int64) map[int64]models.UserSummary {
	if len(ids) == 0 {
		return map[int64]models.UserSummary{}
	}
	users, err := s.directory.Users(ctx, ids)
	if err != nil {
		s.logger.Warn("user directory lookup failed", zap.Int("count", len(ids)), zap.Error(err))
		users = nil
	}
	out := make(map[int64]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out[id] = u
		} else {
			out[id] = models.UserSummary{ID: id}
		}
	}
	return out
}

func (s *Service) attachMembers(ctx context.Context, conv *models.Conversation) {
	ids := make([]int64, 0, len(conv.Members))
	for _, m := range conv.Members {
		ids = append(ids, m.UserID)
	}
	users := s.users(ctx, ids)
	for i := range conv.Members {
		u := users[conv.Members[i].UserID]
		conv.Members[i].User = &u
	}
}

func (s *Service) attachSenders(ctx context.Context, msgs []models.Message) {
	seen := map[int64]struct{}{}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	users := s.users(ctx, ids)
	for i := range msgs {
		u := users[msgs[i].SenderID]
		msgs[i].Sender = &u
	}
}

func (s *Service) record(ctx context.Context, r telemetry.Record) {
	s.audit.Record(ctx, observability.RequestIDFromContext(ctx), r)
}

// storeError maps repository sentinels onto the public error taxonomy.
func storeError(err error, message string) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return apperrors.NotFound("conversation not found")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperrors.NotFound("message not found")
	case errors.Is(err, repositories.ErrMembershipNotFound):
		return apperrors.NotFound("membership not found")
	case errors.Is(err, repositories.ErrAlreadyMember):
		return apperrors.Conflict("identity already holds an active membership")
	case errors.Is(err, repositories.ErrInvalidReplyTarget):
		return apperrors.Validation("reply target must be a message in this conversation")
	default:
		return apperrors.Internal(err, message)
	}
}

func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type nopBroadcaster struct{}

func (nopBroadcaster) ToConversation(context.Context, int64, models.Event, int64) {}
func (nopBroadcaster) ToIdentity(int64, models.Event)                          {}
func (nopBroadcaster) Unsubscribe(int64, int64)                                {}
