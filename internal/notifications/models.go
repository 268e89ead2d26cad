package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Delivery channels
const (
	ChannelInApp     = "IN_APP"
	ChannelEmail     = "EMAIL"
	ChannelPush      = "PUSH"
	ChannelWebSocket = "WEBSOCKET"
)

// WebSocket message types
const (
	WSMessageTypeNotification = "notification"
	WSMessageTypeStatus       = "status"
	WSMessageTypePing         = "ping"
	WSMessageTypePong         = "pong"
)

// Notification is one in-app notification for one user.
type Notification struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1"`
	DocumentID *uuid.UUID        `json:"document_id,omitempty" gorm:"type:uuid;index"`
	Event      string            `json:"event" gorm:"size:64;not null"`
	Title      string            `json:"title" gorm:"size:255;not null"`
	Message    string            `json:"message" gorm:"type:text"`
	Payload    datatypes.JSONMap `json:"payload,omitempty" gorm:"type:jsonb"`
	ReadAt     *time.Time        `json:"read_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index:idx_notifications_user_created,priority:2,sort:desc"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// Delivery is a single recipient's copy of a notification as handed to a Channel.
type Delivery struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Name           string                 `json:"name"`
	Email          string                 `json:"email,omitempty"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Event          string                 `json:"event"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// DocumentID extracts the document reference carried in the payload, if any.
func (d Delivery) DocumentID() *uuid.UUID {
	raw, ok := d.Payload["document_id"].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// WebSocketMessage is the frame pushed to connected clients.
type WebSocketMessage struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Target    string                 `json:"target,omitempty"`
}

// ConnectionInfo describes one live notification socket.
type ConnectionInfo struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	UserID       uuid.UUID `json:"user_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
}

// ListOptions filters a user's inbox.
type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}
