package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

// ConversationService is the conversation management surface of the chat service.
type ConversationService interface {
	CreateDirect(ctx context.Context, actorID, peerID int64) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, actorID int64, group models.NewGroup) (models.Conversation, error)
	GetConversation(ctx context.Context, actorID, conversationID int64) (models.Conversation, error)
	ListConversations(ctx context.Context, actorID int64, limit, offset int) ([]models.ConversationSummary, error)
	AddMember(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error)
	RemoveMember(ctx context.Context, actorID, conversationID, userID int64) (models.RemovalResult, error)
	Leave(ctx context.Context, actorID, conversationID int64) (models.RemovalResult, error)
	UpdateRole(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error)
	SetMute(ctx context.Context, actorID, conversationID int64, muted bool, until *time.Time) (models.Membership, error)
}

// ConversationHandler serves conversation and membership endpoints.
type ConversationHandler struct {
	conversations ConversationService
	messages      MessageService
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations ConversationService, messages MessageService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

type createConversationRequest struct {
	Type          models.ConversationKind `json:"type" binding:"required,oneof=direct group"`
	ParticipantID int64                   `json:"participant_id"`
	Name          string                  `json:"name" binding:"max=100"`
	Description   *string                 `json:"description" binding:"omitempty,max=500"`
	AvatarURL     *string                 `json:"avatar_url" binding:"omitempty,max=2048"`
	MemberIDs     []int64                 `json:"member_ids" binding:"omitempty,max=256,dive,gt=0"`
	Settings      models.JSONMap          `json:"settings"`
}

// CreateConversation creates a direct or group conversation. Creating a direct conversation
// for a pair that already has one returns the existing conversation with 200.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.Type == models.KindDirect {
		if req.ParticipantID <= 0 {
			badRequest(c, "participant_id is required for direct conversations")
			return
		}
		conv, created, err := h.conversations.CreateDirect(c.Request.Context(), userID, req.ParticipantID)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"conversation": conv, "created": created})
		return
	}

	conv, err := h.conversations.CreateGroup(c.Request.Context(), userID, models.NewGroup{
		Name:        &req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		MemberIDs:   req.MemberIDs,
		Settings:    req.Settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "created": true})
}

// ListConversations returns the caller's conversations ordered by last activity.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}

	list, err := h.conversations.ListConversations(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// GetConversation returns a conversation, its members and the most recent page of messages.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}

	conv, err := h.conversations.GetConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.messages.ListMessages(c.Request.Context(), userID, conversationID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs})
}

type addMemberRequest struct {
	UserID int64       `json:"user_id" binding:"required,gt=0"`
	Role   models.Role `json:"role" binding:"omitempty,oneof=admin moderator member"`
}

func (h *ConversationHandler) AddMember(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	member, err := h.conversations.AddMember(c.Request.Context(), userID, conversationID, req.UserID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"membership": member})
}

func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	targetID, ok := int64Param(c, "user_id")
	if !ok {
		return
	}

	result, err := h.conversations.RemoveMember(c.Request.Context(), userID, conversationID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, removalResponse(result))
}

// Leave removes the caller from the conversation.
func (h *ConversationHandler) Leave(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}

	result, err := h.conversations.Leave(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, removalResponse(result))
}

type updateRoleRequest struct {
	Role models.Role `json:"role" binding:"required,oneof=admin moderator member"`
}

func (h *ConversationHandler) UpdateRole(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	targetID, ok := int64Param(c, "user_id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	member, err := h.conversations.UpdateRole(c.Request.Context(), userID, conversationID, targetID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"membership": member})
}

type muteRequest struct {
	Muted *bool      `json:"muted" binding:"required"`
	Until *time.Time `json:"until"`
}

// SetMute mutes or unmutes the conversation for the caller.
func (h *ConversationHandler) SetMute(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	member, err := h.conversations.SetMute(c.Request.Context(), userID, conversationID, *req.Muted, req.Until)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"membership": member})
}

func removalResponse(r models.RemovalResult) gin.H {
	return gin.H{
		"removed":                  true,
		"conversation_deactivated": r.ConversationDeactivated,
	}
}
