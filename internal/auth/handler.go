package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	middleware *Middleware
}

func NewHandler(m *Middleware) *Handler {
	return &Handler{middleware: m}
}

// RegisterRoutes registers auth routes
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	group := r.Group("/auth")
	{
		group.GET("/ping", h.Ping)
		group.GET("/me", h.middleware.RequireActor(), h.Me)
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "auth service alive!"})
}

// Me returns the authenticated account.
func (h *Handler) Me(c *gin.Context) {
	user, ok := UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
