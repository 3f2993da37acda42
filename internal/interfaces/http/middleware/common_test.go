package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.POST("/fail", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"c": 1})
	})

	t.Run("sets headers on success", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, AllowMethods, w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, AllowHeaders, w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("sets headers on errors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/fail", nil)
		req.Header.Set("Origin", "http://elsewhere.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS(), Preflight())
	router.POST("/:env/:module/:function", func(c *gin.Context) {
		c.String(http.StatusTeapot, "should not run")
	})

	tests := []struct {
		name string
		path string
	}{
		{"registered route", "/p/m1/search_read"},
		{"unregistered route", "/anything/at/all/here"},
		{"root", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("other methods pass through", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/p/m1/search_read", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	t.Run("generates a uuid", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("echoes the caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "device-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "device-42", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "device-42", w.Body.String())
	})
}
