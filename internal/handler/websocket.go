package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/internal/auth"
	"github.com/chatwire/chat-platform/internal/chat"
	"github.com/chatwire/chat-platform/internal/gateway"
	"github.com/chatwire/chat-platform/internal/middleware"
	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/pkg/logger"
)

// SocketConfig holds websocket transport settings.
type SocketConfig struct {
	SendBuffer  int
	WriteWait   time.Duration
	PongWait    time.Duration
	MaxMsgBytes int64
}

// SocketHandler upgrades authenticated connections and pumps events between
// the wire and the gateway.
type SocketHandler struct {
	verifier auth.Verifier
	gw       *gateway.Gateway
	chat     *chat.Handler
	presence *chat.Presence
	cfg      SocketConfig
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler creates the websocket endpoint handler.
func NewSocketHandler(verifier auth.Verifier, gw *gateway.Gateway, chatHandler *chat.Handler, presence *chat.Presence, cfg SocketConfig, log *logger.Logger) *SocketHandler {
	return &SocketHandler{
		verifier: verifier,
		gw:       gw,
		chat:     chatHandler,
		presence: presence,
		cfg:      cfg,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve handles GET /ws. Authentication happens before the upgrade; a missing
// or invalid credential closes the attempt and no event handler ever runs.
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	principal, err := h.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := gateway.NewConn(principal.UserID, principal.Username, h.cfg.SendBuffer)
	log := h.logger.WithConnection(conn.ID(), conn.UserID())

	h.gw.Register(conn)
	h.presence.Connected(r.Context(), conn)

	go h.writePump(ws, conn, log)
	go h.readPump(ws, conn, log)
}

func (h *SocketHandler) readPump(ws *websocket.Conn, conn *gateway.Conn, log *logger.Logger) {
	defer func() {
		h.gw.Unregister(conn)
		// Unregister happens first: a disconnecting connection stops
		// receiving fan-out before presence transitions.
		h.presence.Disconnected(context.Background(), conn)
		ws.Close()
	}()

	ws.SetReadLimit(h.cfg.MaxMsgBytes)
	ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			conn.Emit(model.EventError, model.ErrorPayload{Message: "malformed event frame"})
			continue
		}

		h.chat.HandleEvent(context.Background(), conn, &env)
	}
}

func (h *SocketHandler) writePump(ws *websocket.Conn, conn *gateway.Conn, log *logger.Logger) {
	// Pings go at a fraction of the pong deadline so one lost frame does not
	// kill the connection.
	ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data := <-conn.Outbound():
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			// Piggyback presence renewal on the ping interval, which is
			// shorter than every presence TTL.
			h.presence.Heartbeat(context.Background(), conn)
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-conn.Done():
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
