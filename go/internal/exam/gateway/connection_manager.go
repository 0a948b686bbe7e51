package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

// CommandHandler consumes decoded commands and connection loss.
type CommandHandler interface {
	Handle(ctx context.Context, connID string, cmd timer.Command) error
	Leave(connID string)
}

// ConnectionManager owns the live WebSocket connections of the gateway and
// delivers engine messages to them. Rooms are tracked by the engine; the
// manager only addresses connections by id.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config  ConnectionConfig
	handler CommandHandler

	// Outbound queue drained by Start
	broadcastCh chan outbound
	baseCtx     context.Context

	dropped atomic.Uint64
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen atomic.Int64
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

type outbound struct {
	msg     *timer.Message
	connIDs []string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		QueueSize:       4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 4096
	}
	if config.PingInterval <= 0 || config.PingInterval >= config.ReadTimeout {
		config.PingInterval = config.ReadTimeout * 9 / 10
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outbound, config.QueueSize),
		baseCtx:     context.Background(),
	}
}

// SetHandler wires the consumer of inbound commands. It must be called
// before the first connection is upgraded.
func (cm *ConnectionManager) SetHandler(handler CommandHandler) {
	cm.handler = handler
}

// Start drains the outbound queue until ctx is cancelled, then closes every
// connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	cm.mu.Lock()
	cm.baseCtx = ctx
	cm.mu.Unlock()

	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Deliver implements timer.Sender. It never blocks; when the queue is full
// the message is dropped and a reconnect resynchronises the client.
func (cm *ConnectionManager) Deliver(msg *timer.Message, connIDs ...string) {
	if len(connIDs) == 0 {
		return
	}
	select {
	case cm.broadcastCh <- outbound{msg: msg, connIDs: connIDs}:
	default:
		cm.dropped.Add(1)
		log.Warn().
			Str("event_type", string(msg.Type)).
			Str("exam_id", msg.ExamID).
			Int("connections", len(connIDs)).
			Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	cm.mu.RLock()
	base := cm.baseCtx
	cm.mu.RUnlock()
	ctx, cancel := context.WithCancel(base)

	connection := &Connection{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	connection.touch()

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn.ID] = conn
	total := len(cm.connections)
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// unregisterConnection removes a connection and hands its loss to the
// command handler. Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		delete(cm.connections, conn.ID)
		close(conn.Send)
	}
	cm.mu.Unlock()
	if !exists {
		return
	}

	conn.cancel()
	if cm.handler != nil {
		cm.handler.Leave(conn.ID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Dur("connected_for", time.Since(conn.ConnectedAt)).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(message outbound) {
	data, err := json.Marshal(message.msg)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(message.msg.Type)).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for _, id := range message.connIDs {
		conn, ok := cm.connections[id]
		if !ok {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		_ = conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.msg.Type)).
		Str("exam_id", message.msg.ExamID).
		Int("connections", delivered).
		Msg("event delivered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		_ = conn.Conn.Close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]any {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	return map[string]any{
		"total_connections": total,
		"queued_messages":   len(cm.broadcastCh),
		"dropped_messages":  cm.dropped.Load(),
	}
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen is the last time the peer answered a ping or sent a frame.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// dispatch decodes a client frame and hands it to the command handler.
func (c *Connection) dispatch(data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("rejected client message")
		c.Manager.Deliver(decodeErrorMessage(err, time.Now()), c.ID)
		return
	}
	c.handle(cmd)
}

func (c *Connection) handle(cmd timer.Command) {
	if c.Manager.handler == nil {
		return
	}
	if err := c.Manager.handler.Handle(c.ctx, c.ID, cmd); err != nil {
		var cmdErr *timer.CommandError
		if !errors.As(err, &cmdErr) {
			log.Error().
				Err(err).
				Str("connection_id", c.ID).
				Str("command", string(cmd.Type)).
				Msg("command failed")
		}
	}
	// The connection may have closed while a join was in flight.
	if cmd.Type == timer.CommandJoin && c.ctx.Err() != nil {
		c.Manager.handler.Leave(c.ID)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the peer goes away or stops
// answering pings.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.dispatch(message)
	}
}
