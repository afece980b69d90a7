// Package store provides durable persistence for conversations, participants,
// and messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chatwire/chat-platform/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the durable-store contract consumed by the coordination layer.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *model.Conversation, participantIDs []string) error
	FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error
	ListConversationsByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)

	// Participants
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]model.Participant, error)

	// Messages
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error)

	// Users
	GetUser(ctx context.Context, id string) (*model.User, error)
	SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error
}
