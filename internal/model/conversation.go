package model

import (
	"time"
)

// Conversation represents a direct or group conversation thread.
type Conversation struct {
	ID          string    `json:"id"`
	IsGroup     bool      `json:"is_group"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count,omitempty"`
}

// Participant links a user to a conversation. A message sender must hold a
// participant row at send time; every conversation-scoped operation is gated
// on one.
type Participant struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	JoinedAt       time.Time `json:"joined_at"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	IsGroup        bool     `json:"is_group"`
	Name           string   `json:"name,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
