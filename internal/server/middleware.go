package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// withCORS wraps the engine so browser pre-flight requests never reach gin.
// No configured origins means no CORS headers at all.
func withCORS(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return next
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         600,
	})
	return c.Handler(next)
}

func userIDParam(c *gin.Context) (string, bool) {
	userID := c.Param("user_id")
	if userID == "" {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user_id is required"))
		return "", false
	}
	return userID, true
}
