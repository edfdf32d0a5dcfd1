package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RecoveryMiddleware returns a Gin middleware that recovers from panics,
// logs the stack trace and answers with a standardized 500 JSON error.
func RecoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				rid, _ := c.Get(RequestIDKey)
				log.Error().
					Str("request_id", toString(rid)).
					Str("panic", fmt.Sprintf("%v", r)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				AbortWithError(c, http.StatusInternalServerError, "Internal server error", fmt.Errorf("%v", r))
			}
		}()

		c.Next()
	}
}
