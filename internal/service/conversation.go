// Package service provides business logic for the chat platform.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/internal/search"
	"github.com/chatwire/chat-platform/internal/store"
	"github.com/chatwire/chat-platform/pkg/logger"
)

var (
	// ErrNotParticipant is returned for conversation-scoped requests by
	// non-participants.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrInvalidParticipants is returned for malformed participant lists.
	ErrInvalidParticipants = errors.New("invalid participant list")
)

// ConversationService handles conversation lifecycle and cached reads.
type ConversationService struct {
	store    store.Store
	cache    cache.Cache
	search   search.Indexer
	logger   *logger.Logger
	cacheTTL time.Duration
}

// NewConversationService creates a conversation service.
func NewConversationService(st store.Store, c cache.Cache, idx search.Indexer, log *logger.Logger, cacheTTL time.Duration) *ConversationService {
	return &ConversationService{
		store:    st,
		cache:    c,
		search:   idx,
		logger:   log,
		cacheTTL: cacheTTL,
	}
}

// Create creates a conversation. A non-group conversation between two users
// who already share one returns the existing conversation instead of
// creating a duplicate.
func (s *ConversationService) Create(ctx context.Context, creatorID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	participantIDs := dedupe(append([]string{creatorID}, req.ParticipantIDs...))
	if len(participantIDs) < 2 {
		return nil, ErrInvalidParticipants
	}
	if !req.IsGroup && len(participantIDs) != 2 {
		return nil, fmt.Errorf("%w: a direct conversation has exactly two participants", ErrInvalidParticipants)
	}

	if !req.IsGroup {
		existing, err := s.store.FindDirectConversation(ctx, participantIDs[0], participantIDs[1])
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up direct conversation: %w", err)
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		IsGroup:   req.IsGroup,
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateConversation(ctx, conv, participantIDs); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.invalidateListCaches(ctx, participantIDs)

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Bool("is_group", conv.IsGroup),
		zap.Int("participants", len(participantIDs)),
	)

	return conv, nil
}

// List returns the user's conversations, served from cache when possible.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	key := cache.UserConversationsKey(userID)

	if data, err := s.cache.Get(ctx, key); err == nil {
		var conversations []model.Conversation
		if err := json.Unmarshal(data, &conversations); err == nil {
			return conversations, nil
		}
		// Corrupt entry: fall through and recompute.
	}

	conversations, err := s.store.ListConversationsByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	if data, err := json.Marshal(conversations); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache conversation list",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	return conversations, nil
}

// Get returns a conversation after the membership gate, cached by id.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	isParticipant, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	key := cache.ConversationKey(conversationID)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var conv model.Conversation
		if err := json.Unmarshal(data, &conv); err == nil {
			return &conv, nil
		}
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(conv); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache conversation",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	return conv, nil
}

// Messages paginates a conversation backwards from the before cursor.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, before time.Time, limit int) (*model.ListMessagesResponse, error) {
	isParticipant, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	messages, err := s.store.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	return &model.ListMessagesResponse{Messages: messages, HasMore: hasMore}, nil
}

// Delete removes a conversation with cascading participant and message
// deletion. The participant list is snapshotted before the cascade removes
// the rows, then every affected cache entry is invalidated.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	isParticipant, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return ErrNotParticipant
	}

	participants, err := s.store.Participants(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to enumerate participants: %w", err)
	}

	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	keys := []string{cache.ConversationKey(conversationID)}
	for _, part := range participants {
		keys = append(keys, cache.UserConversationsKey(part.UserID))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("cache invalidation failed after delete",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	go func() {
		if err := s.search.DeleteConversation(context.Background(), conversationID); err != nil {
			s.logger.Warn("failed to delete conversation from search index",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()

	s.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
	return nil
}

func (s *ConversationService) invalidateListCaches(ctx context.Context, userIDs []string) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cache.UserConversationsKey(id)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate conversation-list caches", zap.Error(err))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
