package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/gateway"
	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/internal/notify"
	"github.com/chatwire/chat-platform/internal/search"
	"github.com/chatwire/chat-platform/internal/store"
	"github.com/chatwire/chat-platform/pkg/logger"
	"github.com/chatwire/chat-platform/pkg/metrics"
)

var (
	// ErrNotParticipant is returned when the caller holds no participant row
	// for the conversation.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrEmptyContent is returned when trimmed message content is empty.
	ErrEmptyContent = errors.New("message content cannot be empty")

	// ErrContentTooLong is returned when message content exceeds the limit.
	ErrContentTooLong = errors.New("message content exceeds maximum length")
)

// maxContentBytes caps message content independently of the transport frame
// limit, which also covers envelope overhead.
const maxContentBytes = 100000

// Handler processes inbound socket events for a connection.
type Handler struct {
	store    store.Store
	cache    cache.Cache
	search   search.Indexer
	notify   notify.Dispatcher
	gw       *gateway.Gateway
	presence *Presence
	logger   *logger.Logger
}

// NewHandler creates the conversation event handler.
func NewHandler(st store.Store, c cache.Cache, idx search.Indexer, dispatcher notify.Dispatcher, gw *gateway.Gateway, presence *Presence, log *logger.Logger) *Handler {
	return &Handler{
		store:    st,
		cache:    c,
		search:   idx,
		notify:   dispatcher,
		gw:       gw,
		presence: presence,
		logger:   log,
	}
}

// HandleEvent dispatches one inbound envelope from a connection.
func (h *Handler) HandleEvent(ctx context.Context, conn *gateway.Conn, env *model.Envelope) {
	switch env.Event {
	case model.EventSendMessage:
		h.handleSendMessage(ctx, conn, env.Data)
	case model.EventMarkAsRead:
		h.handleMarkAsRead(ctx, conn, env.Data)
	case model.EventTypingStart:
		h.handleTyping(conn, env.Data, model.EventUserTyping)
	case model.EventTypingStop:
		h.handleTyping(conn, env.Data, model.EventUserStoppedTyping)
	case model.EventJoinConversation:
		h.handleJoinConversation(ctx, conn, env.Data)
	case model.EventLeaveConversation:
		h.handleLeaveConversation(conn, env.Data)
	default:
		metrics.RecordSocketEvent(env.Event, "unknown")
		h.emitError(conn, "unknown event: "+env.Event)
	}
}

// handleSendMessage is the core send pipeline: membership gate, content
// validation, persist, best-effort index, touch, invalidate, fan out, then
// offline notification. Fan-out never happens unless the message persisted,
// so no partial fan-out is possible.
func (h *Handler) handleSendMessage(ctx context.Context, conn *gateway.Conn, data json.RawMessage) {
	var payload model.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		metrics.RecordSocketEvent(model.EventSendMessage, "invalid")
		h.emitError(conn, "malformed send_message payload")
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		metrics.RecordSocketEvent(model.EventSendMessage, "invalid")
		h.emitError(conn, ErrEmptyContent.Error())
		return
	}
	if len(content) > maxContentBytes {
		metrics.RecordSocketEvent(model.EventSendMessage, "invalid")
		h.emitError(conn, ErrContentTooLong.Error())
		return
	}

	isParticipant, err := h.store.IsParticipant(ctx, payload.ConversationID, conn.UserID())
	if err != nil {
		h.logger.Error("participant lookup failed",
			zap.String("conversation_id", payload.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventSendMessage, "error")
		h.emitError(conn, "failed to send message")
		return
	}
	if !isParticipant {
		metrics.RecordSocketEvent(model.EventSendMessage, "unauthorized")
		h.emitError(conn, ErrNotParticipant.Error())
		return
	}

	sender, err := h.store.GetUser(ctx, conn.UserID())
	if err != nil {
		h.logger.Error("sender lookup failed", zap.String("user_id", conn.UserID()), zap.Error(err))
		metrics.RecordSocketEvent(model.EventSendMessage, "error")
		h.emitError(conn, "failed to send message")
		return
	}

	now := time.Now()
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: payload.ConversationID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderUsername: sender.Username,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateMessage(ctx, msg); err != nil {
		h.logger.Error("failed to persist message",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventSendMessage, "error")
		h.emitError(conn, "failed to send message")
		return
	}
	metrics.MessagesTotal.Inc()

	// Indexing is never on the critical path. Detached from the request
	// context so a disconnecting sender does not cancel it.
	go h.indexMessage(msg)

	if err := h.store.TouchConversation(ctx, msg.ConversationID, now); err != nil {
		h.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
	}

	participants, err := h.store.Participants(ctx, msg.ConversationID)
	if err != nil {
		h.logger.Error("failed to enumerate participants",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventSendMessage, "error")
		h.emitError(conn, "failed to send message")
		return
	}

	// Explicit invalidation, not write-through: the next read must recompute
	// from the store. Must complete before fan-out.
	h.invalidateConversationCaches(ctx, msg.ConversationID, participantIDs(participants))

	for _, part := range participants {
		h.gw.EmitToUser(part.UserID, model.EventNewMessage, msg)
	}

	for _, part := range participants {
		if part.UserID == msg.SenderID {
			continue
		}
		if h.presence.IsOnline(ctx, part.UserID) {
			continue
		}
		job := &notify.Job{
			RecipientID:    part.UserID,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderName:     msg.SenderName,
			Preview:        notify.Preview(msg.Content),
			CreatedAt:      now,
		}
		if err := h.notify.MessageNotification(ctx, job); err != nil {
			h.logger.Warn("failed to enqueue notification",
				zap.String("recipient_id", part.UserID), zap.Error(err))
			continue
		}
		metrics.NotificationJobsTotal.Inc()
	}

	metrics.RecordSocketEvent(model.EventSendMessage, "ok")
}

// handleMarkAsRead bulk-flips unread messages not authored by the caller.
// Read receipts are not propagated to other participants.
func (h *Handler) handleMarkAsRead(ctx context.Context, conn *gateway.Conn, data json.RawMessage) {
	var payload model.ConversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		metrics.RecordSocketEvent(model.EventMarkAsRead, "invalid")
		h.emitError(conn, "malformed mark_as_read payload")
		return
	}

	isParticipant, err := h.store.IsParticipant(ctx, payload.ConversationID, conn.UserID())
	if err != nil {
		h.logger.Error("participant lookup failed",
			zap.String("conversation_id", payload.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventMarkAsRead, "error")
		h.emitError(conn, "failed to mark messages read")
		return
	}
	if !isParticipant {
		metrics.RecordSocketEvent(model.EventMarkAsRead, "unauthorized")
		h.emitError(conn, ErrNotParticipant.Error())
		return
	}

	if _, err := h.store.MarkMessagesRead(ctx, payload.ConversationID, conn.UserID()); err != nil {
		h.logger.Error("failed to mark messages read",
			zap.String("conversation_id", payload.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventMarkAsRead, "error")
		h.emitError(conn, "failed to mark messages read")
		return
	}

	// Read flags feed cached unread counts.
	h.invalidateConversationCaches(ctx, payload.ConversationID, []string{conn.UserID()})

	if err := conn.Emit(model.EventMessagesMarkedRead, model.MarkedReadPayload{
		ConversationID: payload.ConversationID,
	}); err != nil {
		h.logger.Warn("failed to emit messages_marked_read", zap.Error(err))
	}
	metrics.RecordSocketEvent(model.EventMarkAsRead, "ok")
}

// handleTyping relays a typing indicator to the conversation channel,
// excluding the emitting connection. Purely ephemeral: no persistence, no
// cache interaction, no membership gate.
func (h *Handler) handleTyping(conn *gateway.Conn, data json.RawMessage, outEvent string) {
	var payload model.ConversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		h.emitError(conn, "malformed typing payload")
		return
	}

	h.gw.EmitToChannelExcept(
		gateway.ConversationChannel(payload.ConversationID),
		conn.ID(),
		outEvent,
		model.TypingPayload{
			UserID:         conn.UserID(),
			Username:       conn.Username(),
			ConversationID: payload.ConversationID,
		},
	)
}

// handleJoinConversation subscribes the connection to the conversation's
// broadcast channel. Fails closed for non-participants.
func (h *Handler) handleJoinConversation(ctx context.Context, conn *gateway.Conn, data json.RawMessage) {
	var payload model.ConversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		metrics.RecordSocketEvent(model.EventJoinConversation, "invalid")
		h.emitError(conn, "malformed join_conversation payload")
		return
	}

	isParticipant, err := h.store.IsParticipant(ctx, payload.ConversationID, conn.UserID())
	if err != nil {
		h.logger.Error("participant lookup failed",
			zap.String("conversation_id", payload.ConversationID), zap.Error(err))
		metrics.RecordSocketEvent(model.EventJoinConversation, "error")
		h.emitError(conn, "failed to join conversation")
		return
	}
	if !isParticipant {
		metrics.RecordSocketEvent(model.EventJoinConversation, "unauthorized")
		h.emitError(conn, ErrNotParticipant.Error())
		return
	}

	h.gw.Join(conn, gateway.ConversationChannel(payload.ConversationID))
	metrics.RecordSocketEvent(model.EventJoinConversation, "ok")
}

func (h *Handler) handleLeaveConversation(conn *gateway.Conn, data json.RawMessage) {
	var payload model.ConversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		h.emitError(conn, "malformed leave_conversation payload")
		return
	}

	h.gw.Leave(conn, gateway.ConversationChannel(payload.ConversationID))
	metrics.RecordSocketEvent(model.EventLeaveConversation, "ok")
}

// invalidateConversationCaches deletes the conversation cache entry and each
// affected participant's conversation-list entry. Retried once; deleting an
// absent key is harmless, so the retry is idempotent.
func (h *Handler) invalidateConversationCaches(ctx context.Context, conversationID string, userIDs []string) {
	keys := make([]string, 0, len(userIDs)+1)
	keys = append(keys, cache.ConversationKey(conversationID))
	for _, id := range userIDs {
		keys = append(keys, cache.UserConversationsKey(id))
	}

	if err := h.cache.Del(ctx, keys...); err != nil {
		if err = h.cache.Del(ctx, keys...); err != nil {
			h.logger.Warn("cache invalidation failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
}

func (h *Handler) indexMessage(msg *model.Message) {
	if err := h.search.IndexMessage(context.Background(), msg); err != nil {
		metrics.SearchIndexErrorsTotal.Inc()
		h.logger.Warn("failed to index message",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// emitError delivers a scoped error event to the offending connection only.
func (h *Handler) emitError(conn *gateway.Conn, message string) {
	if err := conn.Emit(model.EventError, model.ErrorPayload{Message: message}); err != nil {
		h.logger.Warn("failed to emit error event", zap.Error(err))
	}
}

func participantIDs(participants []model.Participant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	return ids
}
