package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	natsclient "github.com/chatwire/chat-platform/internal/nats"
)

const (
	// StreamName is the name of the notification jobs stream.
	StreamName = "NOTIFICATIONS"

	// SubjectPrefix is the prefix for all notification subjects.
	SubjectPrefix = "notify"
)

// UserSubject returns the subject for a recipient's notification jobs.
func UserSubject(userID string) string {
	return fmt.Sprintf("%s.user.%s", SubjectPrefix, userID)
}

// JetStreamDispatcher publishes notification jobs into a JetStream stream so
// the delivery worker can consume them durably.
type JetStreamDispatcher struct {
	client *natsclient.Client
}

// NewJetStreamDispatcher creates a JetStream-backed dispatcher.
func NewJetStreamDispatcher(client *natsclient.Client) *JetStreamDispatcher {
	return &JetStreamDispatcher{client: client}
}

// EnsureStream ensures the notifications stream exists.
func (d *JetStreamDispatcher) EnsureStream(ctx context.Context) error {
	js := d.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Offline notification jobs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageNotification enqueues a job for the recipient.
func (d *JetStreamDispatcher) MessageNotification(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if _, err := d.client.JetStream().Publish(ctx, UserSubject(job.RecipientID), data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}
