package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vectorlab/quotad/internal/service"
)

// RequireServiceKey authenticates internal callers of the quota endpoints.
// Unlike a public gateway there is no anonymous tier here: a missing or
// invalid key rejects the request.
func RequireServiceKey(keys *service.ServiceKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("X-Service-Key"))
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Service key required",
			})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		key, err := keys.Validate(ctx, header)
		if err != nil || key == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid service key",
			})
			c.Abort()
			return
		}

		c.Set("service_key", key)
		c.Set("service_key_id", key.ID)

		// Detached from the request context so the write survives the
		// response being sent.
		go keys.UpdateLastUsed(context.Background(), key.ID)

		c.Next()
	}
}
