package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"convoy/internal/utils"
	"convoy/pkg/logger"
)

const (
	ContextUserID      = "user_id"
	ContextDisplayName = "display_name"
)

// AuthRequired validates the bearer token and puts the caller's identity on
// the context. Browsers cannot set headers on a websocket handshake, so the
// token may also come from the "token" query parameter.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "INVALID_TOKEN", utils.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextDisplayName, claims.DisplayName)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, claims.UserID))

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token != header {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// CurrentUser returns the identity set by AuthRequired.
func CurrentUser(c *gin.Context) (userID, displayName string, ok bool) {
	userID = c.GetString(ContextUserID)
	displayName = c.GetString(ContextDisplayName)
	return userID, displayName, userID != ""
}
