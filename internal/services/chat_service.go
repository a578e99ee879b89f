package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"go.uber.org/zap"
)

// MessageStore is the append-only per-conversation history.
type MessageStore interface {
	Append(ctx context.Context, message models.Message) (*models.Message, error)
	History(ctx context.Context, conversationKey string) ([]models.Message, error)
}

type connectionGate interface {
	Authorize(ctx context.Context, a string, b string) error
}

// Publisher fans a persisted message out to live subscribers of its conversation.
type Publisher interface {
	Publish(ctx context.Context, message models.Message) error
}

type SendInput struct {
	ConversationKey string
	CounterpartID   string
	Kind            models.Kind
	Data            json.RawMessage
	SentDate        string
	SentTime        string
}

// ChatService guards the Message Store behind the connection gate and owns
// the persist-then-broadcast send path shared by HTTP and channel sends.
type ChatService struct {
	store     MessageStore
	gate      connectionGate
	publisher Publisher
	log       *zap.Logger
}

func NewChatService(store MessageStore, gate connectionGate, publisher Publisher, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		store:     store,
		gate:      gate,
		publisher: publisher,
		log:       log,
	}
}

// ResolveConversation derives the conversation key for actor from either a key
// or a counterpart id and checks the connection gate. A key that does not name
// actor is treated like a missing connection.
func (s *ChatService) ResolveConversation(
	ctx context.Context,
	actor models.Identity,
	conversationKey string,
	counterpartID string,
) (string, string, error) {
	if !validIdentity(actor) {
		return "", "", ErrForbidden
	}
	conversationKey = strings.TrimSpace(conversationKey)
	counterpartID = strings.TrimSpace(counterpartID)

	switch {
	case conversationKey != "":
		a, b, err := models.ParseConversationKey(conversationKey)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		other := ""
		switch actor.UserID {
		case a:
			other = b
		case b:
			other = a
		default:
			return "", "", ErrUnauthorized
		}
		if counterpartID != "" && counterpartID != other {
			return "", "", ErrInvalidInput
		}
		counterpartID = other
	case counterpartID != "":
		if !models.ValidParticipantID(counterpartID) {
			return "", "", ErrInvalidInput
		}
	default:
		return "", "", ErrInvalidInput
	}

	if err := s.gate.Authorize(ctx, actor.UserID, counterpartID); err != nil {
		return "", "", err
	}
	return models.ConversationKey(actor.UserID, counterpartID), counterpartID, nil
}

// FetchHistory returns the conversation with counterpartID in store order.
func (s *ChatService) FetchHistory(
	ctx context.Context,
	actor models.Identity,
	counterpartID string,
) (string, []models.Message, error) {
	conversationKey, _, err := s.ResolveConversation(ctx, actor, "", counterpartID)
	if err != nil {
		return "", nil, err
	}

	messages, err := s.store.History(ctx, conversationKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return conversationKey, []models.Message{}, nil
		}
		return "", nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return conversationKey, messages, nil
}

// Send validates and persists one message, then publishes the stored copy.
// A publish failure does not fail the send: the message is already durable
// and subscribers recover it from history.
func (s *ChatService) Send(ctx context.Context, actor models.Identity, input SendInput) (*models.Message, error) {
	conversationKey, _, err := s.ResolveConversation(ctx, actor, input.ConversationKey, input.CounterpartID)
	if err != nil {
		return nil, err
	}

	payload, err := models.DecodePayload(input.Data)
	if err != nil {
		return nil, err
	}
	if input.Kind != "" {
		payload.Kind = input.Kind
	}
	payload.Version = models.PayloadVersion
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	sentDate := strings.TrimSpace(input.SentDate)
	sentTime := strings.TrimSpace(input.SentTime)
	if err := models.ValidateCivil(sentDate, sentTime); err != nil {
		return nil, err
	}

	document, err := payload.Encode()
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Append(ctx, models.Message{
		ConversationKey: conversationKey,
		SenderRole:      actor.Role,
		SenderID:        actor.UserID,
		Kind:            payload.Kind,
		Data:            document,
		SentDate:        sentDate,
		SentTime:        sentTime,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("message appended",
		zap.String("message_id", stored.ID),
		zap.String("conversation_key", stored.ConversationKey),
		zap.String("sender_id", stored.SenderID),
		zap.String("kind", string(stored.Kind)),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *stored); err != nil {
			s.log.Warn("publish message",
				zap.String("message_id", stored.ID),
				zap.String("conversation_key", stored.ConversationKey),
				zap.Error(err),
			)
		}
	}
	return stored, nil
}
