package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aurumlife/enrichment-backend/internal/logger"
)

const userIDKey = "user_id"

// UserMiddleware resolves the calling user. Authentication itself is an
// external collaborator; the gateway in front of this service injects the
// verified identity as an X-User-ID header.
type UserMiddleware struct {
	log *logger.Logger
}

func NewUserMiddleware(log *logger.Logger) *UserMiddleware {
	return &UserMiddleware{log: log.With("middleware", "UserMiddleware")}
}

func (m *UserMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			RespondError(c, http.StatusUnauthorized, "missing_user", fmt.Errorf("missing X-User-ID header"))
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusUnauthorized, "bad_user", fmt.Errorf("invalid X-User-ID header"))
			c.Abort()
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user set by RequireUser.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
