package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"legalmatch-backend/logger"
	"legalmatch-backend/models"
	"legalmatch-backend/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxMessageLength    = 4000
	defaultMessageLimit = 50
)

// Realtime event types
const (
	EventMessage      = "message"
	EventMessagesSeen = "messages_seen"
)

// ChatService persists chat messages and fans them out to connected clients
type ChatService struct {
	store     ChatStore
	publisher Publisher
	log       *logrus.Logger
}

// ChatServiceOption is a functional option for ChatService
type ChatServiceOption func(*ChatService)

// ChatWithStore sets the chat repository
func ChatWithStore(store ChatStore) ChatServiceOption {
	return func(s *ChatService) {
		s.store = store
	}
}

// ChatWithPublisher sets the realtime publisher
func ChatWithPublisher(p Publisher) ChatServiceOption {
	return func(s *ChatService) {
		s.publisher = p
	}
}

// ChatWithLogger sets the logger
func ChatWithLogger(log *logrus.Logger) ChatServiceOption {
	return func(s *ChatService) {
		s.log = log
	}
}

// NewChatService creates a new chat service
func NewChatService(opts ...ChatServiceOption) *ChatService {
	s := &ChatService{log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessageRequest is a message from one participant to another
type SendMessageRequest struct {
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Text        string    `json:"text"`
}

// SeenEvent is published to the sender when the recipient reads messages
type SeenEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
	Count          int       `json:"count"`
}

// SendMessage persists the message, then publishes it to both participants
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error) {
	if req.SenderID == uuid.Nil {
		return nil, required("sender_id")
	}
	if req.RecipientID == uuid.Nil {
		return nil, required("recipient_id")
	}
	if req.SenderID == req.RecipientID {
		return nil, invalid("recipient_id", "must differ from sender_id")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, required("text")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, invalid("text", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}
	if s.store == nil {
		return nil, notSet("chat repository")
	}

	conv, err := s.store.FindOrCreateConversation(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, storageErr("find conversation", err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Text:           text,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, storageErr("save message", err)
	}

	s.publish(req.RecipientID, EventMessage, msg)
	s.publish(req.SenderID, EventMessage, msg)
	return msg, nil
}

// MarkSeen marks the messages addressed to readerID as seen and tells the
// other participant
func (s *ChatService) MarkSeen(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	if readerID == uuid.Nil {
		return 0, required("userId")
	}
	conv, err := s.conversationFor(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	n, err := s.store.MarkSeen(ctx, conversationID, readerID)
	if err != nil {
		return 0, storageErr("mark messages seen", err)
	}
	if n > 0 {
		s.publish(conv.Other(readerID), EventMessagesSeen, SeenEvent{
			ConversationID: conversationID,
			ReaderID:       readerID,
			Count:          n,
		})
	}
	return n, nil
}

// UnseenCounts returns the unseen message count per conversation of userID
func (s *ChatService) UnseenCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	if userID == uuid.Nil {
		return nil, required("userId")
	}
	if s.store == nil {
		return nil, notSet("chat repository")
	}
	counts, err := s.store.UnseenCounts(ctx, userID)
	if err != nil {
		return nil, storageErr("count unseen messages", err)
	}
	return counts, nil
}

// ListConversations returns the conversations of userID
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	if userID == uuid.Nil {
		return nil, required("userId")
	}
	if s.store == nil {
		return nil, notSet("chat repository")
	}
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	return convs, nil
}

// ListMessagesRequest pages backwards through a conversation
type ListMessagesRequest struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Before         *time.Time
	Limit          int
}

// ListMessages returns messages newest first
func (s *ChatService) ListMessages(ctx context.Context, req ListMessagesRequest) ([]*models.Message, error) {
	if req.UserID == uuid.Nil {
		return nil, required("userId")
	}
	if _, err := s.conversationFor(ctx, req.ConversationID, req.UserID); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	msgs, err := s.store.ListMessages(ctx, req.ConversationID, req.Before, limit)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// conversationFor loads a conversation and checks userID takes part in it
func (s *ChatService) conversationFor(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	if s.store == nil {
		return nil, notSet("chat repository")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: conversation", ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// publish is best effort: delivery failures are logged, never returned
func (s *ChatService) publish(userID uuid.UUID, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(userID, eventType, payload); err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"event":   eventType,
			"error":   err,
		}).Warn("Failed to publish chat event")
	}
}
