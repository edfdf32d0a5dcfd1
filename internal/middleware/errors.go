package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/b3lake/internal/domain/dto"
)

// AbortWithError stops the chain and writes a dto.ErrorResponse with status.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(message, err))
}

// ErrorHandler turns errors attached with c.Error into a JSON response when the
// handler did not write one itself. A dto.ErrorResponse is sent as is; any
// other error becomes a 500.
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	err := c.Errors.Last().Err
	var resp dto.ErrorResponse
	if errors.As(err, &resp) {
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("internal error", err))
}
