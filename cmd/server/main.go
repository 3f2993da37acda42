package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	catalogapp "github.com/erp/posgateway/internal/application/catalog"
	"github.com/erp/posgateway/internal/application/gateway"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/infrastructure/cache"
	"github.com/erp/posgateway/internal/infrastructure/config"
	"github.com/erp/posgateway/internal/infrastructure/erp"
	"github.com/erp/posgateway/internal/infrastructure/logger"
	"github.com/erp/posgateway/internal/infrastructure/scheduler"
	"github.com/erp/posgateway/internal/infrastructure/telemetry"
	"github.com/erp/posgateway/internal/interfaces/http/handler"
	"github.com/erp/posgateway/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog, logErr := logger.NewForEnvironment(os.Getenv(config.EnvPrefix + "_APP_ENV"))
		if logErr != nil {
			panic("Failed to load configuration: " + err.Error())
		}
		bootLog.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.ISOMillis,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting POS gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.Server.Port),
		zap.Int("environments", len(cfg.Environments)),
	)

	envRegistry, err := environment.NewRegistry(cfg.DomainEnvironments(), cfg.Origins)
	if err != nil {
		log.Fatal("Invalid environments", zap.Error(err))
	}
	for _, env := range envRegistry.All() {
		log.Info("Environment configured",
			zap.String("code", env.Code),
			zap.String("url", env.BaseURL()),
			zap.String("database", env.Database),
			zap.Strings("origins", env.Origins),
			zap.Duration("refresh_interval", env.RefreshInterval),
		)
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewMetrics(cfg.Metrics.Namespace)
	}

	erpClient := erp.NewClient(
		erp.WithLogger(log.Named("erp")),
		erp.WithMetrics(metrics),
		erp.WithTimeouts(cfg.ERP.ConnectTimeout, cfg.ERP.CallTimeout, cfg.ERP.FetchTimeout),
	)
	defer func() {
		if err := erpClient.Close(); err != nil {
			log.Error("Error closing ERP client", zap.Error(err))
		}
	}()

	serviceOpts := []catalogapp.ServiceOption{
		catalogapp.WithLogger(log.Named("catalog")),
		catalogapp.WithMetrics(metrics),
		catalogapp.WithReloadTimeout(cfg.ERP.ReloadTimeout),
	}
	if cfg.Redis.Enabled {
		notifierOpts := []cache.RedisCatalogNotifierOption{
			cache.WithNotifierLogger(log.Named("notifier")),
			cache.WithPublishTimeout(cfg.Redis.PublishTimeout),
		}
		if cfg.Redis.Channel != "" {
			notifierOpts = append(notifierOpts, cache.WithNotifierChannel(cfg.Redis.Channel))
		}
		notifier, err := cache.NewRedisCatalogNotifier(context.Background(), cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, notifierOpts...)
		if err != nil {
			log.Warn("Catalog change notifications disabled", zap.Error(err))
		} else {
			defer func() {
				_ = notifier.Close()
			}()
			serviceOpts = append(serviceOpts, catalogapp.WithNotifier(notifier))
			log.Info("Catalog change notifications enabled", zap.String("channel", notifier.Channel()))
		}
	}
	catalogService := catalogapp.NewWeighedCatalogService(erpClient, serviceOpts...)

	registry := gateway.NewRegistry()
	registry.Register(gateway.DeviceModuleName, gateway.NewDeviceModule(erpClient, catalogService))
	log.Info("Module registered",
		zap.String("module", gateway.DeviceModuleName),
		zap.Strings("functions", registry.Functions(gateway.DeviceModuleName)),
	)
	dispatcher := gateway.NewDispatcher(envRegistry, registry, log.Named("dispatch"), metrics)

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	systemHandler, err := handler.NewSystemHandler(cfg.Server.FaviconFile)
	if err != nil {
		log.Fatal("Failed to load favicon", zap.Error(err))
	}

	r := router.NewRouter(engine).
		Register(router.SystemRoutes{Handler: systemHandler})
	if metrics != nil {
		r.Register(router.MetricsRoutes{Path: cfg.Metrics.Path, Handler: metrics.Handler()})
	}
	r.Register(router.DispatchRoutes{Handler: handler.NewDispatchHandler(dispatcher)})
	r.Setup()

	refresherCfg := scheduler.DefaultCatalogRefresherConfig()
	refresherCfg.Credentials = erp.Credentials{Username: cfg.Refresh.Username, Password: cfg.Refresh.Password}
	refresherCfg.JobTimeout = cfg.Refresh.JobTimeout
	refresher, err := scheduler.NewCatalogRefresher(refresherCfg, envRegistry.All(), catalogService, log.Named("refresher"))
	if err != nil {
		log.Fatal("Failed to create catalog refresher", zap.Error(err))
	}
	if err := refresher.Start(context.Background()); err != nil {
		log.Fatal("Failed to start catalog refresher", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSEnabled()),
			zap.Strings("refreshed_environments", refresher.Environments()),
		)
		var err error
		if cfg.Server.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := refresher.Stop(ctx); err != nil {
		log.Warn("Catalog refresher did not stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
