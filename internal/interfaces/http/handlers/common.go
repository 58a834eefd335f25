// Package handlers implements the HTTP handlers of the query API.
package handlers

import (
	"context"
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/occurrence-matrix/internal/domain/matrix"
	"github.com/turtacn/occurrence-matrix/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

// Response is the success envelope.
type Response struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON wraps data in the success envelope.
func writeJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Data: data})
}

// writeAppError maps err to a status code and a structured body.  Errors
// that carry no application code are reported as internal errors with the
// cause hidden.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := errors.GetCode(err)

	var resp ErrorResponse
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		code = errors.ErrCodeTimeout
		resp.Message = errors.DefaultMessageForCode(code)
	case code == errors.CodeUnknown || code == errors.ErrCodeInternal:
		code = errors.ErrCodeInternal
		resp.Message = errors.DefaultMessageForCode(code)
	default:
		var ae *errors.AppError
		if stderrors.As(err, &ae) {
			resp.Message = ae.Message
			if ae.Detail != "" {
				resp.Message += ": " + ae.Detail
			}
		}
	}
	resp.Code = code.String()
	resp.RequestID = logging.RequestIDFromContext(c.Request.Context())
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), resp)
}

// queryAxis reads the "axis" query parameter, defaulting to def.
func queryAxis(c *gin.Context, def matrix.Axis) (matrix.Axis, error) {
	v := c.Query("axis")
	if v == "" {
		return def, nil
	}
	return matrix.ParseAxis(v)
}

// queryLimit reads the "limit" query parameter.  Zero means unset.
func queryLimit(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.InvalidParam("limit must be an integer").WithDetail(v)
	}
	return n, nil
}

// dateParam returns the :date path segment.  "latest" selects the default
// date resolution of the service.
func dateParam(c *gin.Context) string {
	d := c.Param("date")
	if d == "latest" {
		return ""
	}
	return d
}
