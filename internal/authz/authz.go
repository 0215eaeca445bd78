// Package authz derives what an identity may do inside a conversation from its active membership.
package authz

import (
	"context"
	"errors"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
)

// MembershipReader is the subset of the conversation store the authorizer needs.
type MembershipReader interface {
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	GetMembership(ctx context.Context, conversationID, userID int64) (models.Membership, error)
}

// Authorizer guards store and pipeline mutations.
type Authorizer struct {
	store MembershipReader
}

// New constructs an Authorizer.
func New(store MembershipReader) *Authorizer {
	return &Authorizer{store: store}
}

// RequireMember returns the caller's active membership, or an authorization error.
// A conversation that does not exist yields a not-found error instead.
func (a *Authorizer) RequireMember(ctx context.Context, conversationID, userID int64) (models.Membership, error) {
	member, err := a.store.GetMembership(ctx, conversationID, userID)
	switch {
	case err == nil && member.IsActive:
		return member, nil
	case err == nil, errors.Is(err, repositories.ErrMembershipNotFound):
		if _, err := a.store.GetConversation(ctx, conversationID); err != nil {
			if errors.Is(err, repositories.ErrConversationNotFound) {
				return models.Membership{}, apperrors.NotFound("conversation %d not found", conversationID)
			}
			return models.Membership{}, apperrors.Internal(err, "failed to load conversation")
		}
		return models.Membership{}, apperrors.Authorization("not a member of this conversation")
	default:
		return models.Membership{}, apperrors.Internal(err, "failed to load membership")
	}
}

// RequireRole is RequireMember plus a check that the membership holds one of roles.
func (a *Authorizer) RequireRole(ctx context.Context, conversationID, userID int64, roles ...models.Role) (models.Membership, error) {
	member, err := a.RequireMember(ctx, conversationID, userID)
	if err != nil {
		return models.Membership{}, err
	}
	for _, r := range roles {
		if member.Role == r {
			return member, nil
		}
	}
	return models.Membership{}, apperrors.Authorization("role %s may not perform this action", member.Role)
}

// RequireModerator requires an admin or moderator membership.
func (a *Authorizer) RequireModerator(ctx context.Context, conversationID, userID int64) (models.Membership, error) {
	return a.RequireRole(ctx, conversationID, userID, models.RoleAdmin, models.RoleModerator)
}

// CanModifyMessage reports whether member may delete msg: authors always, moderators and admins of a group
// for others. Both participants of a direct conversation are admins, so neither moderates the other.
func CanModifyMessage(member models.Membership, kind models.ConversationKind, msg models.Message) bool {
	if msg.SenderID == member.UserID {
		return true
	}
	return kind == models.KindGroup && member.Role.CanModerate()
}

// CanRemove reports whether actor may remove target from the conversation.
// Any member may remove themselves. Admins may remove anyone; moderators only plain members.
func CanRemove(actor, target models.Membership) bool {
	if actor.UserID == target.UserID {
		return true
	}
	if !actor.Role.CanModerate() {
		return false
	}
	return actor.Role == models.RoleAdmin || actor.Role.Outranks(target.Role)
}
