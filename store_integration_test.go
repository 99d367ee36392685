package rediskv_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
	"github.com/raniellyferreira/redis-inmemory-kv/metrics"
)

var _ rediskv.MetricsCollector = (*metrics.Metrics)(nil)

// Helper function to create a started store with both listeners on random ports
func createTestStore(t *testing.T, opts ...rediskv.Option) *rediskv.Store {
	t.Helper()

	m, handler, err := metrics.Setup("rediskv-test")
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	opts = append([]rediskv.Option{
		rediskv.WithServerAddr("127.0.0.1:0"),
		rediskv.WithHTTPAddr("127.0.0.1:0"),
		rediskv.WithMetrics(m),
		rediskv.WithMetricsHandler(handler),
	}, opts...)

	store, err := rediskv.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, store.Start(ctx))

	return store
}

func httpDo(t *testing.T, store *rediskv.Store, method, path, body string) string {
	t.Helper()

	req, err := http.NewRequest(method, "http://"+store.HTTPAddr()+path, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestStore_RESPAndHTTPShareState(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: store.ServerAddr()})
	defer client.Close()

	require.NoError(t, client.Set(ctx, "greeting", "hello", 0).Err())
	assert.Equal(t, "hello", httpDo(t, store, http.MethodGet, "/greeting", ""))

	assert.Equal(t, "OK", httpDo(t, store, http.MethodPut, "/counter", "41"))
	n, err := client.Incr(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	assert.Equal(t, "(integer) 1", httpDo(t, store, http.MethodPost, "/scores", "alice=10"))
	require.NoError(t, client.Do(ctx, "ZADD", "scores", "bob=20").Err())

	card, err := client.Do(ctx, "ZCARD", "scores").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	assert.Equal(t, "1) \"10\"\n2) \"20\"", httpDo(t, store, http.MethodGet, "/zrange/scores?start=0&stop=-1", ""))
	assert.Equal(t, 2, store.Size())
}

func TestStore_ExpiryAcrossAdapters(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: store.ServerAddr()})
	defer client.Close()

	assert.Equal(t, "OK", httpDo(t, store, http.MethodPut, "/temp/1", "v"))

	v, err := client.Get(ctx, "temp").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	assert.Eventually(t, func() bool {
		return client.Get(ctx, "temp").Err() == redis.Nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStore_MetricsEndpoint(t *testing.T) {
	store := createTestStore(t)

	store.Set("k", "v")
	_, _ = store.Increment("k")
	httpDo(t, store, http.MethodGet, "/k", "")

	body := httpDo(t, store, http.MethodGet, "/metrics", "")
	assert.Contains(t, body, `rkv_commands_total{command="SET"`)
	assert.Contains(t, body, `type="not_a_number"`)
	assert.Contains(t, body, `rkv_http_requests_total{`)
	assert.Contains(t, body, `route="/{key}"`)
}

func TestStore_ServerPassword(t *testing.T) {
	store := createTestStore(t, rediskv.WithServerPassword("secret"))
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: store.ServerAddr()})
	defer client.Close()
	assert.Error(t, client.Get(ctx, "k").Err())

	authed := redis.NewClient(&redis.Options{Addr: store.ServerAddr(), Password: "secret"})
	defer authed.Close()
	require.NoError(t, authed.Set(ctx, "k", "v", 0).Err())
}

func TestStore_StartFailsOnBusyPort(t *testing.T) {
	first := createTestStore(t)

	second, err := rediskv.New(rediskv.WithHTTPAddr(first.HTTPAddr()))
	require.NoError(t, err)
	defer second.Close()

	assert.Error(t, second.Start(context.Background()))
}
