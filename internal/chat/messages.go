package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/authz"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/notify"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/telemetry"
)

// SendInput is a message as submitted by a client.
type SendInput struct {
	Content   *string
	Type      models.MessageType
	MediaURL  *string
	ReplyToID *int64
	Metadata  models.JSONMap
}

func (in *SendInput) normalize() error {
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return apperrors.Validation("unknown message type %q", in.Type)
	}
	if in.Content != nil {
		trimmed := strings.TrimSpace(*in.Content)
		if trimmed == "" {
			in.Content = nil
		} else {
			in.Content = &trimmed
		}
	}
	if in.Type.RequiresContent() && in.Content == nil {
		return apperrors.Validation("content is required for %s messages", in.Type)
	}
	if in.Content != nil && utf8.RuneCountInString(*in.Content) > MaxContentLength {
		return apperrors.Validation("content exceeds %d characters", MaxContentLength)
	}
	if in.ReplyToID != nil && *in.ReplyToID <= 0 {
		return apperrors.Validation("reply_to_id must be positive")
	}
	return nil
}

// SendMessage validates, persists and fans out a message. The returned message carries the sender summary.
func (s *Service) SendMessage(ctx context.Context, actorID, conversationID int64, in SendInput) (models.Message, error) {
	if err := in.normalize(); err != nil {
		return models.Message{}, err
	}
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return models.Message{}, err
	}
	if err := s.allowSend(ctx, actorID); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        in.Content,
		Type:           in.Type,
		MediaURL:       in.MediaURL,
		ReplyToID:      in.ReplyToID,
		Metadata:       in.Metadata,
	}
	if err := s.msgs.Create(ctx, &msg); err != nil {
		if errors.Is(err, repositories.ErrMembershipNotFound) {
			return models.Message{}, apperrors.Authorization("not a member of this conversation")
		}
		return models.Message{}, storeError(err, "failed to send message")
	}

	sender := s.users(ctx, []int64{actorID})[actorID]
	msg.Sender = &sender
	observability.IncMessageSent(string(msg.Type))

	s.broadcast.ToConversation(ctx, conversationID, models.NewEvent(models.EventNewMessage, conversationID, msg), actorID)
	s.notifyOffline(ctx, msg)
	return msg, nil
}

func (s *Service) allowSend(ctx context.Context, actorID int64) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "send:"+strconv.FormatInt(actorID, 10))
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing send", zap.Int64("user_id", actorID), zap.Error(err))
		return nil
	}
	if !ok {
		return apperrors.RateLimited("too many messages, slow down")
	}
	return nil
}

// notifyOffline hands the message to the notification sink for every unmuted member without a live connection.
func (s *Service) notifyOffline(ctx context.Context, msg models.Message) {
	if s.notifier == nil || s.presence == nil {
		return
	}
	members, err := s.convs.ListMembers(ctx, msg.ConversationID)
	if err != nil {
		s.logger.Warn("offline notification skipped", zap.Int64("conversation_id", msg.ConversationID), zap.Error(err))
		return
	}

	now := time.Now()
	senderName := ""
	if msg.Sender != nil {
		senderName = msg.Sender.Username
	}
	for _, m := range members {
		if m.UserID == msg.SenderID || m.MutedAt(now) || s.presence.IsOnline(m.UserID) {
			continue
		}
		err := s.notifier.Notify(ctx, notify.Notification{
			Type:           notify.TypeMessageOffline,
			RecipientID:    m.UserID,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			SenderName:     senderName,
			Preview:        msg.Preview(previewLength),
			OccurredAt:     msg.CreatedAt,
		})
		if err != nil {
			s.logger.Warn("offline notification failed",
				zap.Int64("recipient_id", m.UserID),
				zap.Int64("message_id", msg.ID),
				zap.Error(err))
		}
	}
}

// EditMessage replaces the content of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, actorID, messageID int64, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, apperrors.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Message{}, apperrors.Validation("content exceeds %d characters", MaxContentLength)
	}

	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, storeError(err, "failed to load message")
	}
	if _, err := s.authz.RequireMember(ctx, msg.ConversationID, actorID); err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != actorID {
		return models.Message{}, apperrors.Authorization("only the author may edit a message")
	}
	if msg.IsDeleted {
		return models.Message{}, apperrors.Validation("deleted messages cannot be edited")
	}

	updated, err := s.msgs.UpdateContent(ctx, messageID, content)
	if err != nil {
		return models.Message{}, storeError(err, "failed to edit message")
	}
	sender := s.users(ctx, []int64{actorID})[actorID]
	updated.Sender = &sender

	s.broadcast.ToConversation(ctx, updated.ConversationID, models.NewEvent(models.EventMessageEdited, updated.ConversationID, updated), actorID)
	return updated, nil
}

// DeleteMessage soft-deletes a message. Authors may delete their own; group admins and moderators anyone's.
// Deleting an already deleted message returns it unchanged.
func (s *Service) DeleteMessage(ctx context.Context, actorID, messageID int64) (models.Message, error) {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, storeError(err, "failed to load message")
	}
	member, err := s.authz.RequireMember(ctx, msg.ConversationID, actorID)
	if err != nil {
		return models.Message{}, err
	}
	kind := models.KindDirect
	if msg.SenderID != actorID {
		conv, err := s.convs.GetConversation(ctx, msg.ConversationID)
		if err != nil {
			return models.Message{}, storeError(err, "failed to load conversation")
		}
		kind = conv.Kind
	}
	if !authz.CanModifyMessage(member, kind, msg) {
		return models.Message{}, apperrors.Authorization("only the author or a moderator may delete this message")
	}
	if msg.IsDeleted {
		return msg, nil
	}

	deleted, err := s.msgs.SoftDelete(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		// lost a race with another delete
		current, err := s.msgs.Get(ctx, messageID)
		if err != nil {
			return models.Message{}, storeError(err, "failed to load message")
		}
		return current, nil
	}
	if err != nil {
		return models.Message{}, storeError(err, "failed to delete message")
	}

	s.broadcast.ToConversation(ctx, deleted.ConversationID, models.NewEvent(models.EventMessageDeleted, deleted.ConversationID, models.MessageDeletion{
		ConversationID: deleted.ConversationID,
		MessageID:      deleted.ID,
		DeletedBy:      actorID,
	}), actorID)
	if deleted.SenderID != actorID {
		s.record(ctx, telemetry.Record{Action: telemetry.ActionMessageDeleted, ActorID: actorID, ConversationID: deleted.ConversationID, TargetUserID: deleted.SenderID})
	}
	return deleted, nil
}

// MarkRead resets the caller's unread counter. It is idempotent.
func (s *Service) MarkRead(ctx context.Context, actorID, conversationID int64) error {
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return err
	}
	if err := s.msgs.MarkRead(ctx, conversationID, actorID); err != nil {
		return storeError(err, "failed to mark conversation read")
	}
	return nil
}

// ListMessages returns a page of history, oldest first. offset counts back from the newest message.
func (s *Service) ListMessages(ctx context.Context, actorID, conversationID int64, limit, offset int) ([]models.Message, error) {
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset, DefaultMessagePage, MaxMessagePage)
	msgs, err := s.msgs.List(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list messages")
	}
	s.attachSenders(ctx, msgs)
	return msgs, nil
}
