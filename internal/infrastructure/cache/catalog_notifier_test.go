package cache

import (
	"context"
	"testing"
	"time"

	"github.com/erp/posgateway/internal/domain/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisCatalogNotifier_Options(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	n := NewRedisCatalogNotifierWithClient(client)
	assert.Equal(t, DefaultCatalogChannel, n.Channel())

	n = NewRedisCatalogNotifierWithClient(client, WithNotifierChannel("shop:catalog"), WithPublishTimeout(time.Second))
	assert.Equal(t, "shop:catalog", n.Channel())
	assert.Equal(t, time.Second, n.timeout)

	n = NewRedisCatalogNotifierWithClient(client, WithNotifierChannel(""))
	assert.Equal(t, DefaultCatalogChannel, n.Channel())
}

func TestRedisCatalogNotifier_PublishFailure(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	core, recorded := observer.New(zapcore.ErrorLevel)
	n := NewRedisCatalogNotifierWithClient(client,
		WithNotifierLogger(zap.New(core)),
		WithPublishTimeout(200*time.Millisecond),
	)

	err := n.CatalogChanged(context.Background(), catalog.ChangeEvent{Env: "P", Digest: "abc", LoadedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish catalog change")

	entries := recorded.FilterMessage("Failed to publish catalog change").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "P", entries[0].ContextMap()["env"])

	// Borrowed clients are left open
	require.NoError(t, n.Close())
}

func TestNewRedisCatalogNotifier_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisCatalogNotifier(ctx, RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
