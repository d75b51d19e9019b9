package ratecache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payouts/internal/domain"
)

type memStore struct {
	cfg   domain.RateConfig
	reads int
	// afterRead runs once the row has been read, before it is returned.
	afterRead func()
}

func (m *memStore) GetRates(context.Context) (domain.RateConfig, error) {
	m.reads++
	cfg := m.cfg
	if m.afterRead != nil {
		hook := m.afterRead
		m.afterRead = nil
		hook()
	}
	return cfg, nil
}

func (m *memStore) SaveRates(_ context.Context, cfg domain.RateConfig) error {
	m.cfg = cfg
	return nil
}

func TestCachedWithoutClientPassesThrough(t *testing.T) {
	store := &memStore{}
	c := New(store, nil, time.Minute)

	require.NoError(t, c.SaveRates(context.Background(), domain.RateConfig{
		USDToCOP: decimal.NewNullDecimal(decimal.NewFromInt(3900)),
	}))
	cfg, err := c.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3900", cfg.USDToCOP.Decimal.String())
	assert.Equal(t, 1, store.reads)
}

func TestCachedFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	store := &memStore{cfg: domain.RateConfig{USDToVES: decimal.NewNullDecimal(decimal.RequireFromString("36.5"))}}
	c := New(store, client, time.Minute)

	cfg, err := c.GetRates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "36.5", cfg.USDToVES.Decimal.String())
	assert.NoError(t, c.SaveRates(context.Background(), cfg))
}

type fakeKV struct {
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, k string) *redis.StringCmd {
	v, ok := f.data[k]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeKV) Set(_ context.Context, k string, v any, _ time.Duration) *redis.StatusCmd {
	f.data[k] = toBytes(v)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) SetNX(_ context.Context, k string, v any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[k]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[k] = toBytes(v)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return []byte(fmt.Sprint(v))
}

func ves(s string) domain.RateConfig {
	return domain.RateConfig{USDToVES: decimal.NewNullDecimal(decimal.RequireFromString(s))}
}

func TestSaveRatesRefreshesCache(t *testing.T) {
	ctx := context.Background()
	store := &memStore{cfg: ves("36.5")}
	c := &Cached{store: store, client: newFakeKV(), ttl: time.Minute}

	_, err := c.GetRates(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SaveRates(ctx, ves("40")))

	cfg, err := c.GetRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40", cfg.USDToVES.Decimal.String())
	assert.Equal(t, 1, store.reads, "second read should be served from the cache")
}

func TestMissDoesNotOverwriteConcurrentSave(t *testing.T) {
	ctx := context.Background()
	store := &memStore{cfg: ves("36.5")}
	c := &Cached{store: store, client: newFakeKV(), ttl: time.Minute}

	// The update lands between the miss reading the old row and the miss
	// filling the cache.
	store.afterRead = func() {
		require.NoError(t, c.SaveRates(ctx, ves("40")))
	}

	stale, err := c.GetRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "36.5", stale.USDToVES.Decimal.String())

	cfg, err := c.GetRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40", cfg.USDToVES.Decimal.String())
	assert.Equal(t, 1, store.reads)
}
