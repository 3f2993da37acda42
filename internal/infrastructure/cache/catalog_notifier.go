package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/posgateway/internal/domain/catalog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCatalogChannel is the Pub/Sub channel catalog changes are published on.
const DefaultCatalogChannel = "posgateway:catalog:changed"

const defaultPublishTimeout = 2 * time.Second

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisCatalogNotifier publishes catalog digest changes on a Redis channel
// so that back-office tools can react without polling the gateway.
type RedisCatalogNotifier struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	timeout    time.Duration
	logger     *zap.Logger
}

// RedisCatalogNotifierOption configures a RedisCatalogNotifier
type RedisCatalogNotifierOption func(*RedisCatalogNotifier)

// WithNotifierChannel sets the Pub/Sub channel name
func WithNotifierChannel(channel string) RedisCatalogNotifierOption {
	return func(n *RedisCatalogNotifier) {
		if channel != "" {
			n.channel = channel
		}
	}
}

// WithNotifierLogger sets the logger
func WithNotifierLogger(logger *zap.Logger) RedisCatalogNotifierOption {
	return func(n *RedisCatalogNotifier) {
		n.logger = logger
	}
}

// WithPublishTimeout bounds each publish
func WithPublishTimeout(d time.Duration) RedisCatalogNotifierOption {
	return func(n *RedisCatalogNotifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewRedisCatalogNotifier connects to Redis and checks the connection.
func NewRedisCatalogNotifier(ctx context.Context, cfg RedisConfig, opts ...RedisCatalogNotifierOption) (*RedisCatalogNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	n := NewRedisCatalogNotifierWithClient(client, opts...)
	n.ownsClient = true
	return n, nil
}

// NewRedisCatalogNotifierWithClient uses an existing client. The caller keeps
// ownership of the client.
func NewRedisCatalogNotifierWithClient(client *redis.Client, opts ...RedisCatalogNotifierOption) *RedisCatalogNotifier {
	n := &RedisCatalogNotifier{
		client:  client,
		channel: DefaultCatalogChannel,
		timeout: defaultPublishTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Channel returns the channel events are published on
func (n *RedisCatalogNotifier) Channel() string {
	return n.channel
}

// CatalogChanged publishes ev as JSON.
func (n *RedisCatalogNotifier) CatalogChanged(ctx context.Context, ev catalog.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.logger.Error("Failed to publish catalog change",
			zap.String("channel", n.channel),
			zap.String("env", ev.Env),
			zap.Error(err))
		return fmt.Errorf("failed to publish catalog change: %w", err)
	}

	n.logger.Debug("Published catalog change",
		zap.String("channel", n.channel),
		zap.String("env", ev.Env),
		zap.String("sha", ev.Digest))
	return nil
}

// Close closes the client if the notifier created it.
func (n *RedisCatalogNotifier) Close() error {
	if n.ownsClient {
		return n.client.Close()
	}
	return nil
}
