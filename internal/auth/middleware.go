package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
)

const (
	actorKey = "auth.actor"
	userKey  = "auth.user"
)

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
}

// Middleware authenticates requests and stores the caller's Actor on the gin context.
type Middleware struct {
	signer *Signer
	users  UserLookup
	logger *zap.Logger
}

func NewMiddleware(signer *Signer, users UserLookup, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{signer: signer, users: users, logger: logger}
}

// RequireActor rejects requests without a valid token for an active user.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive as the access_token query parameter.
func (m *Middleware) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.signer.Parse(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
			return
		}

		user, err := m.users.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, directory.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "unknown user"})
				return
			}
			m.logger.Error("Failed to load authenticated user",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage", "message": "could not load user"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "account is disabled"})
			return
		}

		c.Set(userKey, user)
		c.Set(actorKey, user.Actor())
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("access_token")
}

// ActorFromContext returns the actor set by RequireActor.
func ActorFromContext(c *gin.Context) (access.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return access.Actor{}, false
	}
	actor, ok := v.(access.Actor)
	return actor, ok
}

// UserFromContext returns the account set by RequireActor.
func UserFromContext(c *gin.Context) (*directory.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*directory.User)
	return user, ok
}

// WithActor stores an actor directly. Used by tests and internal tooling.
func WithActor(c *gin.Context, actor access.Actor) {
	c.Set(actorKey, actor)
}
