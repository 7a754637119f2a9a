package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnabghosh/blazingmq-session/internal/api/dto"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// ErrorHandlerMiddleware turns errors attached to the gin context into an
// ErrorResponse carrying ResultUnknown, unless a handler already responded.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		slog.Error("Request error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error:      "Internal Server Error",
				Message:    err.Error(),
				ResultCode: int(domain.ResultUnknown),
				Timestamp:  time.Now(),
			})
		}
	}
}
