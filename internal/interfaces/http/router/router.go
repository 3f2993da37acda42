package router

import (
	"net/http"

	"github.com/erp/posgateway/internal/infrastructure/logger"
	"github.com/erp/posgateway/internal/interfaces/http/handler"
	"github.com/erp/posgateway/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	registrars []RouteRegistrar
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine) *Router {
	return &Router{
		engine:     engine,
		registrars: make([]RouteRegistrar, 0),
	}
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes at the root of the engine
func (r *Router) Setup() {
	root := r.engine.Group("/")
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(root)
	}
}

// EngineConfig configures the middleware chain of NewEngine
type EngineConfig struct {
	Logger         *zap.Logger
	MaxBodySize    int64
	TrustedProxies []string
}

// NewEngine creates a gin engine with the gateway middleware chain.
// CORS and Preflight run before routing resolves, so unknown paths get
// the same headers and any OPTIONS request gets an empty 200.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORS(),
		middleware.Preflight(),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	return engine, nil
}

// SystemRoutes registers /ping and /favicon.ico
type SystemRoutes struct {
	Handler *handler.SystemHandler
}

// RegisterRoutes implements RouteRegistrar
func (s SystemRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", s.Handler.Ping)
	rg.GET("/favicon.ico", s.Handler.Favicon)
}

// DispatchMethods are the methods routed to the dispatcher
var DispatchMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// DispatchRoutes registers /:env/:module/:function
type DispatchRoutes struct {
	Handler *handler.DispatchHandler
}

// RegisterRoutes implements RouteRegistrar
func (d DispatchRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	for _, method := range DispatchMethods {
		rg.Handle(method, "/:env/:module/:function", d.Handler.Handle)
	}
}

// MetricsRoutes exposes a Prometheus handler
type MetricsRoutes struct {
	Path    string
	Handler http.Handler
}

// RegisterRoutes implements RouteRegistrar
func (m MetricsRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(m.Path, gin.WrapH(m.Handler))
}
