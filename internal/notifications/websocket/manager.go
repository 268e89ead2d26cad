package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	readLimit  = 512
	sendBuffer = 64
)

var ErrManagerClosed = errors.New("websocket manager closed")

// Manager tracks live connections per user and pushes notifications to them.
type Manager struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
	hub         *hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	UserAgent    string
	IPAddress    string
	send         chan notifications.WebSocketMessage
	mu           sync.Mutex
	lastActivity time.Time
	closed       bool
}

// enqueue never blocks; a full or closed connection refuses the message.
func (c *Connection) enqueue(msg notifications.WebSocketMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// hub serialises registration so shutdown sees every live connection.
type hub struct {
	connections map[*Connection]struct{}
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	done        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new WebSocket manager. allowedOrigins empty allows any origin.
func NewManager(logger *zap.Logger, allowedOrigins ...string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &hub{
		connections: make(map[*Connection]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}
	go h.run()

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Manager{
		connections: make(map[uuid.UUID]*Connection),
		hub:         h,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// HandleConnection upgrades an authenticated request and registers the socket for userID.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New(),
		UserID:       userID,
		Conn:         conn,
		ConnectedAt:  now,
		UserAgent:    r.Header.Get("User-Agent"),
		IPAddress:    r.RemoteAddr,
		send:         make(chan notifications.WebSocketMessage, sendBuffer),
		lastActivity: now,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	connection.enqueue(notifications.WebSocketMessage{
		Type:      notifications.WSMessageTypeStatus,
		Data:      map[string]interface{}{"status": "connected", "connection_id": connection.ID.String()},
		Timestamp: now.UTC(),
		Target:    userID.String(),
	})

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Serve is HandleConnection for callers that only need the error.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	_, err := m.HandleConnection(w, r, userID)
	return err
}

func (m *Manager) remove(conn *Connection) {
	m.mu.Lock()
	delete(m.connections, conn.ID)
	m.mu.Unlock()

	select {
	case m.hub.unregister <- conn:
	case <-m.hub.done:
		conn.shutdown()
	}
}

// readPump consumes client frames until the socket fails.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.remove(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(readLimit)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.touch()
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg notifications.WebSocketMessage
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read failed",
					zap.String("connection_id", conn.ID.String()),
					zap.Error(err),
				)
			}
			return
		}
		conn.touch()
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case notifications.WSMessageTypePing:
			conn.enqueue(notifications.WebSocketMessage{
				Type:      notifications.WSMessageTypePong,
				Timestamp: time.Now().UTC(),
				Target:    conn.UserID.String(),
			})
		default:
			m.logger.Debug("Ignoring client message",
				zap.String("type", msg.Type),
				zap.String("connection_id", conn.ID.String()),
			)
		}
	}
}

// writePump drains the send buffer to the socket and keeps it alive with pings.
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) run() {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = struct{}{}
			h.logger.Debug("Connection registered",
				zap.String("connection_id", conn.ID.String()),
				zap.String("user_id", conn.UserID.String()),
			)

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
			}
			conn.shutdown()

		case <-h.stop:
			for conn := range h.connections {
				conn.shutdown()
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Name implements notifications.Channel.
func (m *Manager) Name() string { return notifications.ChannelWebSocket }

// Deliver pushes the notification to every live connection of the user. The
// inbox keeps the copy of users without one.
func (m *Manager) Deliver(_ context.Context, d notifications.Delivery) error {
	return m.SendToUser(d.UserID, notifications.WebSocketMessage{
		Type: notifications.WSMessageTypeNotification,
		Data: map[string]interface{}{
			"id":         d.NotificationID.String(),
			"title":      d.Title,
			"message":    d.Message,
			"event":      d.Event,
			"payload":    d.Payload,
			"created_at": d.CreatedAt,
		},
		Timestamp: d.CreatedAt,
	})
}

// SendToUser sends a message to all of the user's connections.
func (m *Manager) SendToUser(userID uuid.UUID, message notifications.WebSocketMessage) error {
	message.Target = userID.String()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var full int
	for _, conn := range m.connections {
		if conn.UserID != userID {
			continue
		}
		if !conn.enqueue(message) {
			full++
		}
	}
	if full > 0 {
		return fmt.Errorf("%d connection buffer(s) full for user %s", full, userID)
	}
	return nil
}

func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// IsOnline reports whether the user has at least one live connection. The
// dispatcher skips this channel for users that are not.
func (m *Manager) IsOnline(userID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conn := range m.connections {
		if conn.UserID == userID {
			return true
		}
	}
	return false
}

// ConnectionInfo lists the live connections, oldest first.
func (m *Manager) ConnectionInfo() []notifications.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]notifications.ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		conn.mu.Lock()
		info = append(info, notifications.ConnectionInfo{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.lastActivity,
			UserAgent:    conn.UserAgent,
			IPAddress:    conn.IPAddress,
		})
		conn.mu.Unlock()
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ConnectedAt.Before(info[j].ConnectedAt) })
	return info
}

// DisconnectUser closes every socket of the user and returns how many there
// were. The read pumps unregister them.
func (m *Manager) DisconnectUser(userID uuid.UUID) int {
	m.mu.RLock()
	var conns []*Connection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
	if len(conns) > 0 {
		m.logger.Info("User disconnected",
			zap.String("user_id", userID.String()),
			zap.Int("connections", len(conns)),
		)
	}
	return len(conns)
}

// Close stops the hub and closes all sockets.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done

		m.mu.Lock()
		for id, conn := range m.connections {
			conn.shutdown()
			conn.Conn.Close()
			delete(m.connections, id)
		}
		m.mu.Unlock()
	})
}
