package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/erp/posgateway/internal/domain/catalog"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/erp/posgateway/internal/infrastructure/erp"
	"github.com/erp/posgateway/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Catalog reload parameters
const (
	ReloadLimit   = 9999
	ReloadTimeout = 10 * time.Second
)

// Reload triggers, used as a metric label
const (
	TriggerRequest = "request"
	TriggerForced  = "forced"
	TriggerRefresh = "refresh"
)

// TimestampLayout is the ISO-8601 form of "dh".
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// RecordSource reads raw product records from an environment's ERP.
type RecordSource interface {
	SearchRecords(ctx context.Context, env environment.Environment, creds erp.Credentials, p erp.SearchParams, timeout time.Duration) ([]map[string]any, error)
}

// ChangeNotifier is told when an environment's catalog digest changes.
type ChangeNotifier interface {
	CatalogChanged(ctx context.Context, ev catalog.ChangeEvent) error
}

// CatalogView is what a device receives. List is present only when the
// caller's digest is stale.
type CatalogView struct {
	LoadedAt string          `json:"dh"`
	Digest   string          `json:"sha"`
	List     json.RawMessage `json:"liste,omitempty"`
}

// WeighedCatalogService caches the weigh-by-code article catalog per environment.
//
// Thread Safety: Safe for concurrent use. Entries are swapped whole under the
// write lock; readers only ever see a complete entry.
type WeighedCatalogService struct {
	source   RecordSource
	notifier ChangeNotifier
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
	timeout  time.Duration

	mu      sync.RWMutex
	entries map[string]*catalog.Entry
	loads   singleflight.Group
}

// ServiceOption configures a WeighedCatalogService
type ServiceOption func(*WeighedCatalogService)

// WithNotifier sets the change notifier
func WithNotifier(n ChangeNotifier) ServiceOption {
	return func(s *WeighedCatalogService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *WeighedCatalogService) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *WeighedCatalogService) {
		s.logger = l
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *WeighedCatalogService) {
		s.now = now
	}
}

// WithReloadTimeout overrides ReloadTimeout
func WithReloadTimeout(d time.Duration) ServiceOption {
	return func(s *WeighedCatalogService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) CatalogChanged(context.Context, catalog.ChangeEvent) error { return nil }

// NewWeighedCatalogService creates the service with an empty cache.
func NewWeighedCatalogService(source RecordSource, opts ...ServiceOption) *WeighedCatalogService {
	s := &WeighedCatalogService{
		source:   source,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		now:      time.Now,
		timeout:  ReloadTimeout,
		entries:  make(map[string]*catalog.Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCatalog returns env's catalog, loading it on first access or when force
// is set. The article list is included only when callerDigest differs from
// the current digest. On failure the cached entry, if any, is left untouched.
func (s *WeighedCatalogService) GetCatalog(ctx context.Context, env environment.Environment, creds erp.Credentials, callerDigest string, force bool) (*CatalogView, error) {
	var (
		entry *catalog.Entry
		err   error
	)
	switch {
	case force:
		entry, err = s.reload(ctx, env, creds, TriggerForced)
	default:
		entry, err = s.loadOnce(ctx, env, creds)
	}
	if err != nil {
		return nil, err
	}

	view := &CatalogView{
		LoadedAt: entry.LoadedAt.Format(TimestampLayout),
		Digest:   entry.Digest,
	}
	if callerDigest != entry.Digest {
		view.List = entry.Payload
	}
	return view, nil
}

// Reload forces a reload of env's catalog. It is the refresher's entry point.
func (s *WeighedCatalogService) Reload(ctx context.Context, env environment.Environment, creds erp.Credentials) (*catalog.Entry, error) {
	return s.reload(ctx, env, creds, TriggerRefresh)
}

// Entry returns the cached entry for code, if one was loaded.
func (s *WeighedCatalogService) Entry(code string) (*catalog.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[code]
	return e, ok
}

// loadOnce returns the cached entry, loading it when missing. Concurrent
// first loads of the same environment share a single ERP round trip, which
// outlives any one caller and is bounded by the reload timeout only. Each
// caller still gives up when its own ctx is done.
func (s *WeighedCatalogService) loadOnce(ctx context.Context, env environment.Environment, creds erp.Credentials) (*catalog.Entry, error) {
	if e, ok := s.Entry(env.Code); ok {
		return e, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(env.Code, func() (any, error) {
		if e, ok := s.Entry(env.Code); ok {
			return e, nil
		}
		return s.reload(loadCtx, env, creds, TriggerRequest)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Entry), nil
	}
}

func (s *WeighedCatalogService) reload(ctx context.Context, env environment.Environment, creds erp.Credentials, trigger string) (*catalog.Entry, error) {
	started := s.now()
	records, err := s.source.SearchRecords(ctx, env, creds, erp.SearchParams{
		Model:  catalog.ProductModel,
		Domain: catalog.WeighedDomain(),
		Fields: catalog.Fields(),
		Limit:  ReloadLimit,
	}, s.timeout)
	if err != nil {
		s.metrics.RecordReload(env.Code, trigger, err)
		return nil, err
	}

	entry, err := catalog.NewEntry(records, started)
	if err != nil {
		s.metrics.RecordReload(env.Code, trigger, err)
		return nil, shared.NewUnexpectedError(err.Error())
	}

	installed, prev := s.install(env.Code, entry)
	s.metrics.RecordReload(env.Code, trigger, nil)
	if installed != entry {
		s.logger.Debug("Discarded reload older than cached catalog", zap.String("env", env.Code))
		return installed, nil
	}

	changed := prev == nil || prev.Digest != entry.Digest
	s.metrics.RecordCatalog(env.Code, len(entry.Items), changed)
	if changed {
		s.announce(ctx, env.Code, prev, entry)
	}
	return entry, nil
}

// install swaps entry in unless a reload that started later already won.
// It returns the entry now cached and the one it replaced.
func (s *WeighedCatalogService) install(code string, entry *catalog.Entry) (installed, prev *catalog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.entries[code]
	if prev != nil && prev.LoadedAt.After(entry.LoadedAt) {
		return prev, prev
	}
	s.entries[code] = entry
	return entry, prev
}

func (s *WeighedCatalogService) announce(ctx context.Context, code string, prev, entry *catalog.Entry) {
	ev := catalog.ChangeEvent{
		Env:      code,
		Digest:   entry.Digest,
		LoadedAt: entry.LoadedAt,
		Articles: len(entry.Items),
	}
	if prev != nil {
		ev.Previous = prev.Digest
	}

	s.logger.Info("Weighed article catalog changed",
		zap.String("env", code),
		zap.String("sha", entry.Digest),
		zap.Int("articles", len(entry.Items)),
	)
	// The cache already swapped; a departing caller must not drop the event.
	if err := s.notifier.CatalogChanged(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("Catalog change notification failed", zap.String("env", code), zap.Error(err))
	}
}
