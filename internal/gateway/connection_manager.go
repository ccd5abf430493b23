package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mazad-game/mazad/internal/game/events"
)

// MessageHandler consumes inbound client traffic from the connection pumps.
type MessageHandler interface {
	HandleMessage(connID string, data []byte)
	HandleDisconnect(connID string)
}

// ConnectionManager owns the WebSocket connections and the per-room fan-out
// pools. Room membership changes through Bind/Unbind as clients join and
// leave rooms over an already-open socket.
type ConnectionManager struct {
	mu        sync.RWMutex
	roomConns map[string]map[*Connection]bool
	conns     map[string]*Connection
	connRoom  map[string]string

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan events.Envelope
}

// Connection represents one WebSocket client. It carries no room field; the
// current-room binding lives in the dispatcher's session table and the
// manager's fan-out index.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConns: make(map[string]map[*Connection]bool),
		conns:     make(map[string]*Connection),
		connRoom:  make(map[string]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan events.Envelope, 1000),
	}
}

// SetHandler installs the inbound message handler. Must be called before the
// first connection is accepted.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start drains the broadcast channel until ctx is cancelled. Envelopes are
// handled one at a time, which keeps delivery FIFO per room.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case ev := <-cm.broadcastCh:
			cm.handleEnvelope(ev)
		}
	}
}

// Enqueue submits an envelope for delivery.
func (cm *ConnectionManager) Enqueue(ev events.Envelope) {
	select {
	case cm.broadcastCh <- ev:
	default:
		log.Warn().Str("room_id", ev.RoomID).Str("event_type", string(ev.Type)).Msg("broadcast channel full, dropping event")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection. The
// connection starts unbound; a joinRoom message binds it to a room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.mu.Lock()
	cm.conns[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().Str("conn_id", connection.ID).Str("remote", r.RemoteAddr).Msg("WebSocket connection established")
	return nil
}

// Bind moves connID into roomID's fan-out pool, leaving any previous pool.
func (cm *ConnectionManager) Bind(connID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connID]
	if !ok {
		return
	}
	cm.removeFromPoolLocked(conn)

	if cm.roomConns[roomID] == nil {
		cm.roomConns[roomID] = make(map[*Connection]bool)
	}
	cm.roomConns[roomID][conn] = true
	cm.connRoom[connID] = roomID

	log.Debug().Str("conn_id", connID).Str("room_id", roomID).
		Int("room_connections", len(cm.roomConns[roomID])).Msg("connection bound to room")
}

// Unbind removes connID from its room pool, keeping the socket open.
func (cm *ConnectionManager) Unbind(connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, ok := cm.conns[connID]; ok {
		cm.removeFromPoolLocked(conn)
	}
}

func (cm *ConnectionManager) removeFromPoolLocked(conn *Connection) {
	roomID, ok := cm.connRoom[conn.ID]
	if !ok {
		return
	}
	if pool, ok := cm.roomConns[roomID]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConns, roomID)
		}
	}
	delete(cm.connRoom, conn.ID)
}

// unregister drops a closed connection entirely.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	if _, ok := cm.conns[conn.ID]; !ok {
		cm.mu.Unlock()
		return
	}
	cm.removeFromPoolLocked(conn)
	delete(cm.conns, conn.ID)
	close(conn.Send)
	cm.mu.Unlock()

	log.Info().Str("conn_id", conn.ID).Msg("connection unregistered")
	if cm.handler != nil {
		cm.handler.HandleDisconnect(conn.ID)
	}
}

// handleEnvelope fans an envelope out to its room pool, or delivers it to a
// single connection when targeted.
func (cm *ConnectionManager) handleEnvelope(ev events.Envelope) {
	data, err := json.Marshal(outboundMessage{Type: string(ev.Type), Data: ev.Data})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	var targets []*Connection
	if ev.TargetConn != "" {
		if conn, ok := cm.conns[ev.TargetConn]; ok {
			targets = []*Connection{conn}
		}
	} else {
		for conn := range cm.roomConns[ev.RoomID] {
			targets = append(targets, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow or dead, close it.
			log.Warn().Str("conn_id", conn.ID).Msg("connection send buffer full, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().Str("event_type", string(ev.Type)).Str("room_id", ev.RoomID).
		Int("connections", len(targets)).Msg("event delivered")
}

// outboundMessage is the wire shape clients receive.
type outboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Stats describes the live connection pools.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetStats returns statistics about active connections.
func (cm *ConnectionManager) GetStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.roomConns))
	for roomID, pool := range cm.roomConns {
		counts[roomID] = len(pool)
	}
	return Stats{
		TotalConnections: len(cm.conns),
		ActiveRooms:      len(cm.roomConns),
		RoomConnections:  counts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("conn_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("conn_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("conn_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c.ID, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
