package middleware

import (
	"errors"
	"net/http"

	"bidledger/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Status maps an error kind to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err as a JSON error body. Server-side failures are logged.
func Fail(c *gin.Context, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("http_request_failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}
