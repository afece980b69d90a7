package model

import (
	"encoding/json"
)

// Inbound socket events (client → server).
const (
	EventSendMessage       = "send_message"
	EventMarkAsRead        = "mark_as_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
)

// Outbound socket events (server → client).
const (
	EventNewMessage         = "new_message"
	EventMessagesMarkedRead = "messages_marked_read"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventError              = "error"
)

// Envelope is the wire frame for every socket event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the inbound payload for send_message.
type SendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ConversationPayload covers inbound events carrying only a conversation id:
// mark_as_read, typing_start, typing_stop, join_conversation,
// leave_conversation.
type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingPayload is the outbound payload for user_typing / user_stopped_typing.
type TypingPayload struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	ConversationID string `json:"conversation_id"`
}

// PresencePayload is the outbound payload for user_online / user_offline.
type PresencePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// MarkedReadPayload is the outbound payload for messages_marked_read.
type MarkedReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ErrorPayload is the outbound payload for error events, delivered only to
// the connection whose action failed.
type ErrorPayload struct {
	Message string `json:"message"`
}
