package model

import (
	"time"
)

// Message represents a conversation message. Immutable after creation except
// for the read flag.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`

	// Denormalized sender display fields so consumers never join on reads.
	SenderName     string `json:"sender_name"`
	SenderUsername string `json:"sender_username"`

	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListMessagesResponse is the response for paginating a conversation.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
