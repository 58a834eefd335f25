package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Recovery turns a handler panic into a logged 500 with the standard error
// body.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec interface{}) {
		logger.WithContext(c.Request.Context()).Error("panic recovered",
			logging.String(logging.FieldPath, c.Request.URL.Path),
			logging.String("panic", fmt.Sprint(rec)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":       errors.ErrCodeInternal.String(),
			"message":    errors.DefaultMessageForCode(errors.ErrCodeInternal),
			"request_id": logging.RequestIDFromContext(c.Request.Context()),
		})
	})
}
