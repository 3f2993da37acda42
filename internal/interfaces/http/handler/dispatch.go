package handler

import (
	"context"
	"net/http"

	"github.com/erp/posgateway/internal/application/gateway"
	"github.com/erp/posgateway/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// CallDispatcher runs one device call to completion
type CallDispatcher interface {
	Dispatch(ctx context.Context, req gateway.Request) *gateway.Reply
}

// DispatchHandler maps /:env/:module/:function onto the dispatcher
type DispatchHandler struct {
	dispatcher CallDispatcher
}

// NewDispatchHandler creates a DispatchHandler
func NewDispatchHandler(dispatcher CallDispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Handle extracts the call from the request and writes the shaped reply.
// GET calls take their arguments from the query string, every other
// method from a JSON object body carrying optional credentials. A body that
// is not a JSON object is handed to the dispatcher, which reports it after
// the origin and routing checks.
func (h *DispatchHandler) Handle(c *gin.Context) {
	req := gateway.Request{
		RequestID: c.GetString("request_id"),
		Method:    c.Request.Method,
		Origin:    gateway.RequestOrigin(c.GetHeader("Origin"), c.GetHeader("Referer"), c.Request.Host),
		EnvCode:   c.Param("env"),
		Module:    c.Param("module"),
		Function:  c.Param("function"),
	}

	if req.Method == http.MethodGet {
		req.Args = dto.QueryArgs(c.Request.URL.Query())
	} else {
		args, err := dto.BodyArgs(c.Request.Body)
		if err != nil {
			req.BodyErr = err
		} else {
			req.Username, req.Password = dto.TakeCredentials(args)
			req.Args = args
		}
	}

	reply := h.dispatcher.Dispatch(c.Request.Context(), req)
	c.Data(reply.Status, reply.ContentType, reply.Body)
}
