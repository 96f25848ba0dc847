package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	"github.com/xxxsen/quizpack/internal/pkg/response"
)

const (
	HeaderUserID     = "X-User-Id"
	ContextUserIDKey = "user_id"
)

// UserID trusts the identity set by the authenticating proxy in front of the
// service.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "missing user identity")
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}
