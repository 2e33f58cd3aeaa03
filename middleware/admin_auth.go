package middleware

import (
	"crypto/subtle"
	"strings"

	"book-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
)

// AdminAuth guards the ingestion management endpoints with a static bearer
// token. This credential is distinct from end-user chat access, which is
// unauthenticated.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			utils.RespondWithUnauthorized(c, "Missing management credential")
			c.Abort()
			return
		}

		provided := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			utils.RespondWithUnauthorized(c, "Invalid management credential")
			c.Abort()
			return
		}

		c.Next()
	}
}
