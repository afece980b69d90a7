// Package notify enqueues notification jobs for offline recipients. Delivery
// (email, push) happens in a separate worker consuming the queue; this side
// is fire-and-forget.
package notify

import (
	"context"
	"time"
)

// Job summarizes an unread message for an offline user.
type Job struct {
	RecipientID    string    `json:"recipient_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderName     string    `json:"sender_name"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

// Dispatcher enqueues notification jobs.
type Dispatcher interface {
	MessageNotification(ctx context.Context, job *Job) error
}

// previewLimit caps the notification body preview, in runes.
const previewLimit = 120

// Preview truncates message content for inclusion in a notification.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "…"
}
