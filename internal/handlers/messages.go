package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/chat"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

// MessageService is the message pipeline surface of the chat service.
type MessageService interface {
	SendMessage(ctx context.Context, actorID, conversationID int64, in chat.SendInput) (models.Message, error)
	ListMessages(ctx context.Context, actorID, conversationID int64, limit, offset int) ([]models.Message, error)
	EditMessage(ctx context.Context, actorID, messageID int64, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, actorID, messageID int64) (models.Message, error)
	MarkRead(ctx context.Context, actorID, conversationID int64) error
}

// MessageHandler serves message endpoints.
type MessageHandler struct {
	messages MessageService
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type sendMessageRequest struct {
	Content   *string            `json:"content"`
	Type      models.MessageType `json:"type" binding:"omitempty,oneof=text image video audio file system"`
	MediaURL  *string            `json:"media_url" binding:"omitempty,max=2048"`
	ReplyToID *int64             `json:"reply_to_id" binding:"omitempty,gt=0"`
	Metadata  models.JSONMap     `json:"metadata"`
}

// PostMessage sends a message to a conversation.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), userID, conversationID, chat.SendInput{
		Content:   req.Content,
		Type:      req.Type,
		MediaURL:  req.MediaURL,
		ReplyToID: req.ReplyToID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListMessages returns a page of history, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
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

	msgs, err := h.messages.ListMessages(c.Request.Context(), userID, conversationID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	messageID, ok := int64Param(c, "message_id")
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}

	msg, err := h.messages.EditMessage(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	messageID, ok := int64Param(c, "message_id")
	if !ok {
		return
	}

	msg, err := h.messages.DeleteMessage(c.Request.Context(), userID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// MarkRead resets the caller's unread counter for the conversation.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	conversationID, ok := int64Param(c, "conversation_id")
	if !ok {
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), userID, conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
