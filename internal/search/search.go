// Package search submits documents to the search index. The sink is
// best-effort: failures are logged and never block or fail the caller.
package search

import (
	"context"

	"github.com/chatwire/chat-platform/internal/model"
)

// Indexer is the search-sink contract.
type Indexer interface {
	IndexMessage(ctx context.Context, msg *model.Message) error
	UpdateUserOnline(ctx context.Context, userID string, online bool) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// MessageDocument is the message shape submitted for indexing.
type MessageDocument struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// UserDocument carries the denormalized online flag for the user index.
type UserDocument struct {
	ID       string `json:"id"`
	IsOnline bool   `json:"is_online"`
}
