package search

import (
	"context"
	"encoding/json"
	"fmt"

	natsclient "github.com/chatwire/chat-platform/internal/nats"
	"github.com/chatwire/chat-platform/internal/model"
)

// Subjects consumed by the downstream indexing worker.
const (
	SubjectMessageIndex       = "search.messages.index"
	SubjectUserUpdate         = "search.users.update"
	SubjectConversationDelete = "search.conversations.delete"
)

// NATSIndexer publishes index documents over NATS for the indexing worker.
type NATSIndexer struct {
	client *natsclient.Client
}

// NewNATSIndexer creates a NATS-backed indexer.
func NewNATSIndexer(client *natsclient.Client) *NATSIndexer {
	return &NATSIndexer{client: client}
}

// IndexMessage submits a message document.
func (i *NATSIndexer) IndexMessage(ctx context.Context, msg *model.Message) error {
	doc := MessageDocument{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderUsername: msg.SenderUsername,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UnixMilli(),
	}
	return i.publish(SubjectMessageIndex, doc)
}

// UpdateUserOnline mirrors the online flag into the user index.
func (i *NATSIndexer) UpdateUserOnline(ctx context.Context, userID string, online bool) error {
	return i.publish(SubjectUserUpdate, UserDocument{ID: userID, IsOnline: online})
}

// DeleteConversation removes a conversation's documents from the index.
func (i *NATSIndexer) DeleteConversation(ctx context.Context, conversationID string) error {
	return i.publish(SubjectConversationDelete, map[string]string{"conversation_id": conversationID})
}

func (i *NATSIndexer) publish(subject string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := i.client.Conn().Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish document: %w", err)
	}
	return nil
}
