package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/domprobe/models"
)

// APIKeyContextKey is the gin context key holding the authenticated API key.
const APIKeyContextKey = "api_key"

// Auth returns API-key authentication middleware.
//
// Supports two header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// Keys are held and matched by SHA-256 digest. Blank keys are ignored; with
// no usable key the middleware is a no-op (open access).
func Auth(apiKeys []string) gin.HandlerFunc {
	digests := make(map[[sha256.Size]byte]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			digests[sha256.Sum256([]byte(k))] = struct{}{}
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}
		if _, ok := digests[sha256.Sum256([]byte(key))]; !ok {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
			return
		}

		c.Set(APIKeyContextKey, key)
		c.Next()
	}
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// abort stops the chain with an elements-shaped error body.
func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, models.ElementsResponse{
		Success:  false,
		Elements: []models.ElementRecord{},
		Error:    &models.ErrorDetail{Code: code, Message: msg},
	})
}
