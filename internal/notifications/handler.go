package notifications

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/auth"
)

// InboxStore is the read side of the in-app inbox.
type InboxStore interface {
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ConnectionHandler upgrades a request into a live notification socket and
// lets administrators see and drop live sockets.
type ConnectionHandler interface {
	Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error
	ConnectionInfo() []ConnectionInfo
	DisconnectUser(userID uuid.UUID) int
}

type Handler struct {
	inbox   InboxStore
	sockets ConnectionHandler
	logger  *zap.Logger
}

func NewHandler(inbox InboxStore, sockets ConnectionHandler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{inbox: inbox, sockets: sockets, logger: logger}
}

// RegisterRoutes mounts the inbox under an already authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	group := r.Group("/notifications")
	{
		group.GET("", h.List)
		group.GET("/unread-count", h.UnreadCount)
		group.POST("/read-all", h.MarkAllRead)
		group.POST("/:id/read", h.MarkRead)
		if h.sockets != nil {
			group.GET("/ws", h.Connect)
			group.GET("/connections", h.Connections)
			group.DELETE("/connections/:user_id", h.Disconnect)
		}
	}
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))

	items, err := h.inbox.List(c.Request.Context(), actor.ID, ListOptions{Limit: limit, Offset: offset, UnreadOnly: unread})
	if err != nil {
		h.storageError(c, "Failed to list notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	count, err := h.inbox.UnreadCount(c.Request.Context(), actor.ID)
	if err != nil {
		h.storageError(c, "Failed to count notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id", "kind": "invalid_input"})
		return
	}

	if err := h.inbox.MarkRead(c.Request.Context(), actor.ID, id); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "not_found"})
			return
		}
		h.storageError(c, "Failed to mark notification as read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	n, err := h.inbox.MarkAllRead(c.Request.Context(), actor.ID)
	if err != nil {
		h.storageError(c, "Failed to mark notifications as read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// Connect upgrades to a websocket that receives the caller's notifications live.
func (h *Handler) Connect(c *gin.Context) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.sockets.Serve(c.Writer, c.Request, actor.ID); err != nil {
		// The upgrader has already written the failure response.
		h.logger.Warn("WebSocket upgrade failed", zap.String("user_id", actor.ID.String()), zap.Error(err))
	}
}

// Connections lists live sockets. Administrators only.
func (h *Handler) Connections(c *gin.Context) {
	if _, ok := h.admin(c); !ok {
		return
	}
	conns := h.sockets.ConnectionInfo()
	c.JSON(http.StatusOK, gin.H{"connections": conns, "count": len(conns)})
}

// Disconnect drops every socket of a user, for example one just deactivated.
func (h *Handler) Disconnect(c *gin.Context) {
	actor, ok := h.admin(c)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id", "kind": "invalid_input"})
		return
	}

	n := h.sockets.DisconnectUser(userID)
	h.logger.Info("Sockets dropped by administrator",
		zap.String("admin_id", actor.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("connections", n),
	)
	c.JSON(http.StatusOK, gin.H{"disconnected": n})
}

func (h *Handler) admin(c *gin.Context) (access.Actor, bool) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return access.Actor{}, false
	}
	if !actor.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "administrator role required", "kind": "forbidden"})
		return access.Actor{}, false
	}
	return actor, true
}

func (h *Handler) storageError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg, "kind": "storage"})
}
