package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/posgateway/internal/domain/catalog"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/infrastructure/erp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogReloader forces a catalog reload for one environment.
type CatalogReloader interface {
	Reload(ctx context.Context, env environment.Environment, creds erp.Credentials) (*catalog.Entry, error)
}

// CatalogRefresherConfig holds configuration for the catalog refresher
type CatalogRefresherConfig struct {
	// Credentials used for background reloads
	Credentials erp.Credentials
	// JobTimeout bounds a single reload attempt
	JobTimeout time.Duration
}

// DefaultCatalogRefresherConfig returns default refresher configuration
func DefaultCatalogRefresherConfig() CatalogRefresherConfig {
	return CatalogRefresherConfig{
		JobTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration
func (c CatalogRefresherConfig) Validate() error {
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// CatalogRefresher keeps the weighed-article catalog warm. It runs one loop
// per environment with a refresh interval; the first reload happens at start
// and the next one is armed an interval after each attempt ends, whatever
// its outcome.
type CatalogRefresher struct {
	config   CatalogRefresherConfig
	envs     []environment.Environment
	reloader CatalogReloader
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewCatalogRefresher creates a refresher over the environments that declare
// a refresh interval. Others are ignored.
func NewCatalogRefresher(
	config CatalogRefresherConfig,
	envs []environment.Environment,
	reloader CatalogReloader,
	logger *zap.Logger,
) (*CatalogRefresher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scheduled := make([]environment.Environment, 0, len(envs))
	for _, env := range envs {
		if env.Refreshes() {
			scheduled = append(scheduled, env)
		}
	}
	return &CatalogRefresher{
		config:   config,
		envs:     scheduled,
		reloader: reloader,
		logger:   logger,
	}, nil
}

// Environments returns the codes of the environments being refreshed
func (r *CatalogRefresher) Environments() []string {
	codes := make([]string, len(r.envs))
	for i, env := range r.envs {
		codes[i] = env.Code
	}
	return codes
}

// Start launches the refresh loops. Calling Start twice is a no-op.
func (r *CatalogRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}
	r.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, env := range r.envs {
		r.wg.Add(1)
		go r.runLoop(ctx, env)
		r.logger.Info("Catalog refresh scheduled",
			zap.String("env", env.Code),
			zap.Duration("interval", env.RefreshInterval),
		)
	}
	return nil
}

// Stop cancels the loops and waits for in-flight reloads, bounded by ctx.
func (r *CatalogRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Catalog refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *CatalogRefresher) runLoop(ctx context.Context, env environment.Environment) {
	defer r.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.refresh(ctx, env)
			timer.Reset(env.RefreshInterval)
		}
	}
}

// refresh performs one forced reload. Failures, panics included, are logged
// and never escape.
func (r *CatalogRefresher) refresh(ctx context.Context, env environment.Environment) {
	runID := uuid.New().String()
	log := r.logger.With(zap.String("env", env.Code), zap.String("run_id", runID))
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Catalog refresh panicked", zap.Any("error", rec), zap.Stack("stacktrace"))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, r.config.JobTimeout)
	defer cancel()

	entry, err := r.reloader.Reload(jobCtx, env, r.config.Credentials)
	if err != nil {
		log.Warn("Catalog refresh failed",
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
		return
	}
	log.Info("Catalog refreshed",
		zap.String("sha", entry.Digest),
		zap.Int("articles", len(entry.Items)),
		zap.Duration("duration", time.Since(started)),
	)
}
