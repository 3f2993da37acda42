package middleware

import (
	"fmt"
	"net/http"

	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// BodyLimit returns a middleware that limits request body size.
// A non-positive limit disables the check.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			appErr := shared.NewUnexpectedError(fmt.Sprintf("request body exceeds %d bytes", maxBytes))
			c.Data(http.StatusBadRequest, shared.ContentTypeJSON, appErr.Body())
			c.Abort()
			return
		}

		// Streaming bodies without Content-Length fail on read
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
