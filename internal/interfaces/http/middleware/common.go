// Package middleware provides the gin middleware of the gateway.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Cross-origin headers sent on every response, errors included.
const (
	AllowOrigin  = "*"
	AllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
	AllowHeaders = "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// CORS sets the permissive cross-origin headers. Write access is
// restricted by the dispatcher's origin check, not by the browser.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", AllowOrigin)
		h.Set("Access-Control-Allow-Methods", AllowMethods)
		h.Set("Access-Control-Allow-Headers", AllowHeaders)
		c.Next()
	}
}

// Preflight answers any OPTIONS request with an empty 200, whatever the path.
func Preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte{})
		c.Abort()
	}
}

// RequestID echoes the caller's X-Request-ID or generates one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}
