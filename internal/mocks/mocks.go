package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/chat"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) CreateDirect(ctx context.Context, actorID, peerID int64) (models.Conversation, bool, error) {
	args := m.Called(ctx, actorID, peerID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationServiceMock) CreateGroup(ctx context.Context, actorID int64, group models.NewGroup) (models.Conversation, error) {
	args := m.Called(ctx, actorID, group)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationServiceMock) GetConversation(ctx context.Context, actorID, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, actorID, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationServiceMock) ListConversations(ctx context.Context, actorID int64, limit, offset int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, actorID, limit, offset)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationServiceMock) AddMember(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error) {
	args := m.Called(ctx, actorID, conversationID, userID, role)
	var member models.Membership
	if val := args.Get(0); val != nil {
		member = val.(models.Membership)
	}
	return member, args.Error(1)
}

func (m *ConversationServiceMock) RemoveMember(ctx context.Context, actorID, conversationID, userID int64) (models.RemovalResult, error) {
	args := m.Called(ctx, actorID, conversationID, userID)
	var result models.RemovalResult
	if val := args.Get(0); val != nil {
		result = val.(models.RemovalResult)
	}
	return result, args.Error(1)
}

func (m *ConversationServiceMock) Leave(ctx context.Context, actorID, conversationID int64) (models.RemovalResult, error) {
	args := m.Called(ctx, actorID, conversationID)
	var result models.RemovalResult
	if val := args.Get(0); val != nil {
		result = val.(models.RemovalResult)
	}
	return result, args.Error(1)
}

func (m *ConversationServiceMock) UpdateRole(ctx context.Context, actorID, conversationID, userID int64, role models.Role) (models.Membership, error) {
	args := m.Called(ctx, actorID, conversationID, userID, role)
	var member models.Membership
	if val := args.Get(0); val != nil {
		member = val.(models.Membership)
	}
	return member, args.Error(1)
}

func (m *ConversationServiceMock) SetMute(ctx context.Context, actorID, conversationID int64, muted bool, until *time.Time) (models.Membership, error) {
	args := m.Called(ctx, actorID, conversationID, muted, until)
	var member models.Membership
	if val := args.Get(0); val != nil {
		member = val.(models.Membership)
	}
	return member, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, actorID, conversationID int64, in chat.SendInput) (models.Message, error) {
	args := m.Called(ctx, actorID, conversationID, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ListMessages(ctx context.Context, actorID, conversationID int64, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, actorID, conversationID, limit, offset)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageServiceMock) EditMessage(ctx context.Context, actorID, messageID int64, content string) (models.Message, error) {
	args := m.Called(ctx, actorID, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, actorID, messageID int64) (models.Message, error) {
	args := m.Called(ctx, actorID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, actorID, conversationID int64) error {
	args := m.Called(ctx, actorID, conversationID)
	return args.Error(0)
}
