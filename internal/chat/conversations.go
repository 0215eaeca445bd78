package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/authz"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/telemetry"
)

// CreateDirect returns the direct conversation between actorID and peerID, creating it on first contact.
// Repeated calls in either order yield the same conversation.
func (s *Service) CreateDirect(ctx context.Context, actorID, peerID int64) (models.Conversation, bool, error) {
	if peerID <= 0 {
		return models.Conversation{}, false, apperrors.Validation("participant id is required")
	}
	if actorID == peerID {
		return models.Conversation{}, false, apperrors.Validation("cannot start a direct conversation with yourself")
	}

	conv, created, err := s.convs.CreateDirect(ctx, actorID, peerID)
	if err != nil {
		return models.Conversation{}, false, storeError(err, "failed to create conversation")
	}
	s.attachMembers(ctx, &conv)

	if created {
		s.broadcast.ToIdentity(peerID, models.NewEvent(models.EventConversationCreated, conv.ID, conv))
		s.record(ctx, telemetry.Record{Action: telemetry.ActionConversationCreated, ActorID: actorID, ConversationID: conv.ID, Text: "direct conversation created"})
	}
	return conv, created, nil
}

// CreateGroup creates a group owned by actorID. At least one other member and a name are required.
func (s *Service) CreateGroup(ctx context.Context, actorID int64, group models.NewGroup) (models.Conversation, error) {
	if group.Name == nil || strings.TrimSpace(*group.Name) == "" {
		return models.Conversation{}, apperrors.Validation("group name is required")
	}
	name := strings.TrimSpace(*group.Name)
	group.Name = &name

	others := 0
	for _, id := range group.MemberIDs {
		if id <= 0 {
			return models.Conversation{}, apperrors.Validation("member ids must be positive")
		}
		if id != actorID {
			others++
		}
	}
	if others == 0 {
		return models.Conversation{}, apperrors.Validation("a group needs at least one other member")
	}

	conv, err := s.convs.CreateGroup(ctx, actorID, group)
	if err != nil {
		return models.Conversation{}, storeError(err, "failed to create group")
	}
	s.attachMembers(ctx, &conv)

	event := models.NewEvent(models.EventConversationCreated, conv.ID, conv)
	for _, m := range conv.Members {
		if m.UserID != actorID {
			s.broadcast.ToIdentity(m.UserID, event)
		}
	}
	s.record(ctx, telemetry.Record{Action: telemetry.ActionConversationCreated, ActorID: actorID, ConversationID: conv.ID, Text: "group created"})
	return conv, nil
}

// GetConversation returns a conversation with its active members. The caller must be a member.
func (s *Service) GetConversation(ctx context.Context, actorID, conversationID int64) (models.Conversation, error) {
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return models.Conversation{}, err
	}
	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, storeError(err, "failed to load conversation")
	}
	s.attachMembers(ctx, &conv)
	return conv, nil
}

// ListConversations returns the caller's conversations by last activity, each with its latest message.
func (s *Service) ListConversations(ctx context.Context, actorID int64, limit, offset int) ([]models.ConversationSummary, error) {
	limit, offset = clampPage(limit, offset, DefaultConversationPage, MaxConversationPage)
	list, err := s.convs.ListForUser(ctx, actorID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list conversations")
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]int64, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	latest, err := s.msgs.Latest(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load latest messages")
	}

	var withMessage []models.Message
	for _, id := range ids {
		if m, ok := latest[id]; ok {
			withMessage = append(withMessage, m)
		}
	}
	s.attachSenders(ctx, withMessage)
	byConv := make(map[int64]models.Message, len(withMessage))
	for _, m := range withMessage {
		byConv[m.ConversationID] = m
	}

	for i := range list {
		if m, ok := byConv[list[i].ID]; ok {
			msg := m
			list[i].LastMessage = &msg
		}
	}
	return list, nil
}

// AddMember adds userID to a group. The actor must be an admin or moderator; only admins grant elevated roles.
func (s *Service) AddMember(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error) {
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return models.Membership{}, apperrors.Validation("unknown role %q", role)
	}
	if userID <= 0 {
		return models.Membership{}, apperrors.Validation("user id is required")
	}

	actor, err := s.authz.RequireModerator(ctx, conversationID, actorID)
	if err != nil {
		return models.Membership{}, err
	}
	if role != models.RoleMember && actor.Role != models.RoleAdmin {
		return models.Membership{}, apperrors.Authorization("only admins may grant the %s role", role)
	}

	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Membership{}, storeError(err, "failed to load conversation")
	}
	if conv.Kind == models.KindDirect {
		return models.Membership{}, apperrors.Validation("members cannot be added to a direct conversation")
	}

	member, err := s.convs.AddMember(ctx, conversationID, userID, role)
	if err != nil {
		return models.Membership{}, storeError(err, "failed to add member")
	}
	users := s.users(ctx, []int64{userID})
	u := users[userID]
	member.User = &u

	s.broadcast.ToConversation(ctx, conversationID, models.NewEvent(models.EventUserJoinedConversation, conversationID, models.MembershipChange{
		ConversationID: conversationID,
		UserID:         userID,
		ActorID:        actorID,
		Role:           role,
		Reason:         "added",
	}), actorID)
	s.record(ctx, telemetry.Record{Action: telemetry.ActionMemberAdded, ActorID: actorID, ConversationID: conversationID, TargetUserID: userID})
	return member, nil
}

// RemoveMember removes userID from the conversation. Removing oneself is Leave.
func (s *Service) RemoveMember(ctx context.Context, actorID, conversationID, userID int64) (models.RemovalResult, error) {
	if actorID == userID {
		return s.Leave(ctx, actorID, conversationID)
	}

	actor, err := s.authz.RequireMember(ctx, conversationID, actorID)
	if err != nil {
		return models.RemovalResult{}, err
	}
	if !actor.Role.CanModerate() {
		return models.RemovalResult{}, apperrors.Authorization("only admins and moderators may remove members")
	}

	target, err := s.convs.GetMembership(ctx, conversationID, userID)
	if err != nil && !errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.RemovalResult{}, storeError(err, "failed to load membership")
	}
	if err != nil || !target.IsActive {
		return models.RemovalResult{}, apperrors.NotFound("user %d is not an active member", userID)
	}
	if !authz.CanRemove(actor, target) {
		return models.RemovalResult{}, apperrors.Authorization("a %s may not remove a %s", actor.Role, target.Role)
	}

	result, err := s.convs.RemoveMember(ctx, conversationID, userID)
	if errors.Is(err, repositories.ErrLastAdmin) {
		return models.RemovalResult{}, apperrors.Authorization("the conversation must keep at least one admin")
	}
	if err != nil {
		return models.RemovalResult{}, storeError(err, "failed to remove member")
	}

	s.afterDeparture(ctx, conversationID, userID, actorID, "removed")
	s.record(ctx, telemetry.Record{Action: telemetry.ActionMemberRemoved, ActorID: actorID, ConversationID: conversationID, TargetUserID: userID})
	return result, nil
}

// Leave removes the caller's own membership. The last admin cannot leave while others remain.
func (s *Service) Leave(ctx context.Context, actorID, conversationID int64) (models.RemovalResult, error) {
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return models.RemovalResult{}, err
	}

	result, err := s.convs.RemoveMember(ctx, conversationID, actorID)
	if errors.Is(err, repositories.ErrLastAdmin) {
		return models.RemovalResult{}, apperrors.Validation("promote another admin before leaving")
	}
	if err != nil {
		return models.RemovalResult{}, storeError(err, "failed to leave conversation")
	}

	s.afterDeparture(ctx, conversationID, actorID, actorID, "left")
	s.record(ctx, telemetry.Record{Action: telemetry.ActionMemberLeft, ActorID: actorID, ConversationID: conversationID, TargetUserID: actorID})
	return result, nil
}

// afterDeparture detaches the departed identity from the delivery group and tells everyone, including them.
func (s *Service) afterDeparture(ctx context.Context, conversationID, userID, actorID int64, reason string) {
	s.broadcast.Unsubscribe(conversationID, userID)
	event := models.NewEvent(models.EventUserLeftConversation, conversationID, models.MembershipChange{
		ConversationID: conversationID,
		UserID:         userID,
		ActorID:        actorID,
		Reason:         reason,
	})
	s.broadcast.ToConversation(ctx, conversationID, event, 0)
	s.broadcast.ToIdentity(userID, event)
}

// UpdateRole changes a member's role. Only admins may do this, and the last admin cannot be demoted.
func (s *Service) UpdateRole(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error) {
	if !role.Valid() {
		return models.Membership{}, apperrors.Validation("unknown role %q", role)
	}
	if _, err := s.authz.RequireRole(ctx, conversationID, actorID, models.RoleAdmin); err != nil {
		return models.Membership{}, err
	}

	conv, err := s.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Membership{}, storeError(err, "failed to load conversation")
	}
	if conv.Kind == models.KindDirect {
		return models.Membership{}, apperrors.Validation("roles cannot change in a direct conversation")
	}

	member, err := s.convs.UpdateRole(ctx, conversationID, userID, role)
	if errors.Is(err, repositories.ErrLastAdmin) {
		return models.Membership{}, apperrors.Authorization("the conversation must keep at least one admin")
	}
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return models.Membership{}, apperrors.NotFound("user %d is not an active member", userID)
	}
	if err != nil {
		return models.Membership{}, storeError(err, "failed to update role")
	}

	s.record(ctx, telemetry.Record{Action: telemetry.ActionRoleChanged, ActorID: actorID, ConversationID: conversationID, TargetUserID: userID, Text: "role changed to " + string(role)})
	return member, nil
}

// SetMute changes the caller's notification preference for the conversation.
func (s *Service) SetMute(ctx context.Context, actorID, conversationID int64, muted bool, until *time.Time) (models.Membership, error) {
	if until != nil && !until.After(time.Now()) {
		return models.Membership{}, apperrors.Validation("muted_until must be in the future")
	}
	if _, err := s.authz.RequireMember(ctx, conversationID, actorID); err != nil {
		return models.Membership{}, err
	}
	member, err := s.convs.SetMute(ctx, conversationID, actorID, muted, until)
	if err != nil {
		return models.Membership{}, storeError(err, "failed to update mute")
	}
	s.logger.Debug("conversation mute updated",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("user_id", actorID),
		zap.Bool("muted", muted))
	return member, nil
}
