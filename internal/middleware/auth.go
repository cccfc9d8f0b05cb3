package middleware

import (
	"crypto/subtle"
	"net/http"

	"purchase-api/internal/config"
	"purchase-api/internal/response"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware authenticates requests against the configured API key.
// With no key configured the check is disabled, which is the development
// default.
func APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.APIKey
		if expected == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			response.ErrorJSON(c, http.StatusUnauthorized, "Missing api_key")
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			response.ErrorJSON(c, http.StatusUnauthorized, "Invalid api_key")
			c.Abort()
			return
		}

		c.Next()
	}
}
