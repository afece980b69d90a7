package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/pkg/logger"
	"github.com/chatwire/chat-platform/pkg/metrics"
)

// Gateway is the in-process connection registry: connection → joined
// channels, channel → subscribed connections, user → live connections.
// Handlers never touch the maps directly; all mutation goes through
// Join/Leave/Register/Unregister and all delivery through the Emit API.
type Gateway struct {
	mu           sync.RWMutex
	conns        map[string]*Conn            // connID -> conn
	userConns    map[string]map[string]*Conn // userID -> connID -> conn
	channels     map[string]map[string]*Conn // channel -> connID -> conn
	connChannels map[string]map[string]bool  // connID -> channel set

	logger *logger.Logger
}

// New creates an empty gateway.
func New(log *logger.Logger) *Gateway {
	return &Gateway{
		conns:        make(map[string]*Conn),
		userConns:    make(map[string]map[string]*Conn),
		channels:     make(map[string]map[string]*Conn),
		connChannels: make(map[string]map[string]bool),
		logger:       log,
	}
}

// Register adds an authenticated connection and auto-joins its private
// per-user channel.
func (g *Gateway) Register(c *Conn) {
	g.mu.Lock()
	g.conns[c.ID()] = c
	if _, ok := g.userConns[c.UserID()]; !ok {
		g.userConns[c.UserID()] = make(map[string]*Conn)
	}
	g.userConns[c.UserID()][c.ID()] = c
	g.joinLocked(c, UserChannel(c.UserID()))
	g.mu.Unlock()

	metrics.SocketConnectionsActive.Inc()
	g.logger.Info("connection registered",
		zap.String("conn_id", c.ID()),
		zap.String("user_id", c.UserID()),
	)
}

// Unregister removes a connection and tears down all of its channel
// membership. A disconnected connection stops receiving fan-out immediately.
func (g *Gateway) Unregister(c *Conn) {
	g.mu.Lock()
	if _, ok := g.conns[c.ID()]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.conns, c.ID())

	if userConns, ok := g.userConns[c.UserID()]; ok {
		delete(userConns, c.ID())
		if len(userConns) == 0 {
			delete(g.userConns, c.UserID())
		}
	}

	for channel := range g.connChannels[c.ID()] {
		g.leaveChannelLocked(c.ID(), channel)
	}
	delete(g.connChannels, c.ID())
	g.mu.Unlock()

	c.Close()

	metrics.SocketConnectionsActive.Dec()
	g.logger.Info("connection unregistered",
		zap.String("conn_id", c.ID()),
		zap.String("user_id", c.UserID()),
	)
}

// Join subscribes the connection to a channel.
func (g *Gateway) Join(c *Conn, channel string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.ID()]; !ok {
		return
	}
	g.joinLocked(c, channel)
}

func (g *Gateway) joinLocked(c *Conn, channel string) {
	if _, ok := g.channels[channel]; !ok {
		g.channels[channel] = make(map[string]*Conn)
	}
	g.channels[channel][c.ID()] = c

	if _, ok := g.connChannels[c.ID()]; !ok {
		g.connChannels[c.ID()] = make(map[string]bool)
	}
	g.connChannels[c.ID()][channel] = true
}

// Leave unsubscribes the connection from a channel.
func (g *Gateway) Leave(c *Conn, channel string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveChannelLocked(c.ID(), channel)
	if chans, ok := g.connChannels[c.ID()]; ok {
		delete(chans, channel)
	}
}

func (g *Gateway) leaveChannelLocked(connID, channel string) {
	if members, ok := g.channels[channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.channels, channel)
		}
	}
}

// EmitToChannel delivers an event to every connection subscribed to channel.
func (g *Gateway) EmitToChannel(channel, event string, payload any) {
	g.emitToChannel(channel, "", event, payload)
}

// EmitToChannelExcept delivers to every channel subscriber except the given
// connection, for events that echo back what the sender already knows.
func (g *Gateway) EmitToChannelExcept(channel, exceptConnID, event string, payload any) {
	g.emitToChannel(channel, exceptConnID, event, payload)
}

func (g *Gateway) emitToChannel(channel, exceptConnID, event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		g.logger.Error("failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.channels[channel]))
	for id, c := range g.channels[channel] {
		if id == exceptConnID {
			continue
		}
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		if c.queue(data) {
			metrics.FanoutDeliveriesTotal.WithLabelValues(event).Inc()
		}
	}
}

// EmitToUser delivers an event to every live connection of a user via the
// private per-user channel.
func (g *Gateway) EmitToUser(userID, event string, payload any) {
	g.emitToChannel(UserChannel(userID), "", event, payload)
}

// Broadcast delivers an event to every registered connection.
func (g *Gateway) Broadcast(event string, payload any) {
	data, err := marshalEnvelope(event, payload)
	if err != nil {
		g.logger.Error("failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}

	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		if c.queue(data) {
			metrics.FanoutDeliveriesTotal.WithLabelValues(event).Inc()
		}
	}
}

// Count returns the number of registered connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// UserConnectionCount returns the number of live connections for a user.
func (g *Gateway) UserConnectionCount(userID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.userConns[userID])
}
