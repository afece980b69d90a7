package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/pkg/logger"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgres connects to Postgres and returns a Store.
func NewPostgres(ctx context.Context, databaseURL string, log *logger.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: log}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// CreateConversation inserts a conversation and its participant rows in one
// transaction.
func (p *Postgres) CreateConversation(ctx context.Context, conv *model.Conversation, participantIDs []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, is_group, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.ID, conv.IsGroup, conv.Name, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	for _, userID := range participantIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (conversation_id, user_id, joined_at)
			VALUES ($1, $2, $3)
		`, conv.ID, userID, conv.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// FindDirectConversation returns the existing non-group conversation between
// two users, or ErrNotFound.
func (p *Postgres) FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants pa ON pa.conversation_id = c.id AND pa.user_id = $1
		JOIN participants pb ON pb.conversation_id = c.id AND pb.user_id = $2
		WHERE c.is_group = FALSE
		LIMIT 1
	`

	var conv model.Conversation
	err := p.pool.QueryRow(ctx, query, userA, userB).Scan(
		&conv.ID, &conv.IsGroup, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation returns a conversation by id.
func (p *Postgres) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.pool.QueryRow(ctx, `
		SELECT id, is_group, name, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.IsGroup, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// TouchConversation bumps updated_at so list ordering reflects recency.
func (p *Postgres) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE conversations SET updated_at = $2 WHERE id = $1
	`, id, at)
	return err
}

// DeleteConversation removes a conversation; participants and messages
// cascade via foreign keys.
func (p *Postgres) DeleteConversation(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsByParticipant returns the user's conversations ordered by
// recency, each decorated with its last message and the user's unread count.
func (p *Postgres) ListConversationsByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.is_read = FALSE)
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC
	`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0)
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.IsGroup, &conv.Name,
			&conv.CreatedAt, &conv.UpdatedAt, &conv.UnreadCount); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		msg, err := p.lastMessage(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].LastMessage = msg
	}

	return conversations, nil
}

func (p *Postgres) lastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := p.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, sender_username,
		       content, is_read, created_at, updated_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName,
		&msg.SenderUsername, &msg.Content, &msg.IsRead, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// IsParticipant reports whether user holds a participant row for the
// conversation. This is the membership gate for every conversation-scoped
// operation.
func (p *Postgres) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Participants returns the full participant list with display fields.
func (p *Postgres) Participants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT p.conversation_id, p.user_id, u.username, u.name, p.joined_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]model.Participant, 0)
	for rows.Next() {
		var part model.Participant
		if err := rows.Scan(&part.ConversationID, &part.UserID,
			&part.Username, &part.Name, &part.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, part)
	}
	return participants, rows.Err()
}

// CreateMessage inserts a message row.
func (p *Postgres) CreateMessage(ctx context.Context, msg *model.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name,
		                      sender_username, content, is_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName,
		msg.SenderUsername, msg.Content, msg.IsRead, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages paginates a conversation backwards from the before cursor.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, sender_username,
		       content, is_read, created_at, updated_at
		FROM messages
		WHERE conversation_id = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID,
			&msg.SenderName, &msg.SenderUsername, &msg.Content,
			&msg.IsRead, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkMessagesRead flips every unread message in the conversation that the
// reader did not author. Returns the number of rows updated.
func (p *Postgres) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, updated_at = NOW()
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetUser returns a user by id.
func (p *Postgres) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, name, is_online, last_seen_at, created_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.Name,
		&user.IsOnline, &user.LastSeenAt, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserOnline persists the online flag and last-seen timestamp.
func (p *Postgres) SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen_at = $3 WHERE id = $1
	`, userID, online, at)
	return err
}
