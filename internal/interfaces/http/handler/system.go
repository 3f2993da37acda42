package handler

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/erp/posgateway/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
)

//go:embed assets/favicon.ico
var defaultFavicon []byte

// FaviconContentType is the media type of /favicon.ico
const FaviconContentType = "image/x-icon"

// SystemHandler serves the liveness and favicon endpoints
type SystemHandler struct {
	favicon []byte
	now     func() time.Time
}

// NewSystemHandler creates a SystemHandler. An empty faviconFile selects
// the embedded icon.
func NewSystemHandler(faviconFile string) (*SystemHandler, error) {
	icon := defaultFavicon
	if faviconFile != "" {
		data, err := os.ReadFile(faviconFile)
		if err != nil {
			return nil, fmt.Errorf("read favicon: %w", err)
		}
		icon = data
	}
	return &SystemHandler{favicon: icon, now: time.Now}, nil
}

// Ping answers with the current UTC time, millisecond precision.
func (h *SystemHandler) Ping(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(h.now().UTC().Format(logger.ISOMillis)))
}

// Favicon serves the site icon
func (h *SystemHandler) Favicon(c *gin.Context) {
	c.Data(http.StatusOK, FaviconContentType, h.favicon)
}
