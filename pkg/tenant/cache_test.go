package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stores entries and tombstones", func(t *testing.T) {
		t.Parallel()

		c := tenant.NewMemoryCache(10)
		t.Cleanup(func() { _ = c.Close() })

		tn := newTenant("acme.example.com", "acme", tenant.StatusActive)
		require.NoError(t, c.Set(ctx, "acme.example.com", tenant.Entry{Tenant: tn}, time.Minute))
		require.NoError(t, c.Set(ctx, "ghost.example.com", tenant.Entry{}, time.Minute))

		entry, ok, err := c.Get(ctx, "acme.example.com")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, entry.Found())
		assert.Same(t, tn, entry.Tenant)

		entry, ok, err = c.Get(ctx, "ghost.example.com")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, entry.Found())

		_, ok, _ = c.Get(ctx, "missing")
		assert.False(t, ok)
	})

	t.Run("expires entries", func(t *testing.T) {
		t.Parallel()

		c := tenant.NewMemoryCache(10)
		t.Cleanup(func() { _ = c.Close() })

		require.NoError(t, c.Set(ctx, "k", tenant.Entry{}, 10*time.Millisecond))
		time.Sleep(20 * time.Millisecond)

		_, ok, _ := c.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("sweep removes expired entries", func(t *testing.T) {
		t.Parallel()

		c := tenant.NewMemoryCacheWithSweep(10, 10*time.Millisecond)
		t.Cleanup(func() { _ = c.Close() })

		require.NoError(t, c.Set(ctx, "a", tenant.Entry{}, 5*time.Millisecond))
		require.NoError(t, c.Set(ctx, "b", tenant.Entry{}, time.Hour))

		assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()

		c := tenant.NewMemoryCache(2)
		t.Cleanup(func() { _ = c.Close() })

		_ = c.Set(ctx, "a", tenant.Entry{}, time.Hour)
		_ = c.Set(ctx, "b", tenant.Entry{}, time.Hour)
		_, _, _ = c.Get(ctx, "a")
		_ = c.Set(ctx, "c", tenant.Entry{}, time.Hour)

		_, ok, _ := c.Get(ctx, "b")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "a")
		assert.True(t, ok)
	})

	t.Run("delete and double close", func(t *testing.T) {
		t.Parallel()

		c := tenant.NewMemoryCache(0)
		_ = c.Set(ctx, "a", tenant.Entry{}, time.Hour)
		_ = c.Set(ctx, "b", tenant.Entry{}, time.Hour)
		require.NoError(t, c.Delete(ctx, "a", "b", "c"))
		assert.Zero(t, c.Len())

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	})
}

func TestNoOpCache(t *testing.T) {
	t.Parallel()

	c := tenant.NewNoOpCache()
	require.NoError(t, c.Set(context.Background(), "k", tenant.Entry{}, time.Hour))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func newRedisCache(t *testing.T) (*tenant.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return tenant.NewRedisCache(client, ""), mr
}

func TestRedisCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("round trips a tenant snapshot", func(t *testing.T) {
		t.Parallel()

		c, mr := newRedisCache(t)
		end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
		tn := newTenant("acme.example.com", "acme", tenant.StatusActive)
		tn.SubscriptionEnd = &end
		tn.Settings = map[string]any{"theme": "dark"}

		require.NoError(t, c.Set(ctx, "acme.example.com", tenant.Entry{Tenant: tn}, time.Hour))
		assert.True(t, mr.Exists("tenant:acme.example.com"))
		assert.Equal(t, time.Hour, mr.TTL("tenant:acme.example.com"))

		entry, ok, err := c.Get(ctx, "acme.example.com")
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, entry.Found())
		assert.Equal(t, tn.ID, entry.Tenant.ID)
		assert.Equal(t, tn.Database, entry.Tenant.Database)
		assert.Equal(t, end, entry.Tenant.SubscriptionEnd.UTC())
		assert.Equal(t, "dark", entry.Tenant.Settings["theme"])
	})

	t.Run("tombstones and expiry", func(t *testing.T) {
		t.Parallel()

		c, mr := newRedisCache(t)
		require.NoError(t, c.Set(ctx, "ghost", tenant.Entry{}, 30*time.Second))

		entry, ok, err := c.Get(ctx, "ghost")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, entry.Found())

		mr.FastForward(31 * time.Second)
		_, ok, err = c.Get(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		c, mr := newRedisCache(t)
		_ = c.Set(ctx, "a", tenant.Entry{}, time.Hour)
		_ = c.Set(ctx, "b", tenant.Entry{}, time.Hour)

		require.NoError(t, c.Delete(ctx, "a", "b"))
		assert.False(t, mr.Exists("tenant:a"))
		assert.False(t, mr.Exists("tenant:b"))
		require.NoError(t, c.Delete(ctx))
	})

	t.Run("server failure is reported", func(t *testing.T) {
		t.Parallel()

		c, mr := newRedisCache(t)
		mr.SetError("ERR server down")

		_, _, err := c.Get(ctx, "a")
		assert.Error(t, err)
	})

	t.Run("corrupt payload is reported", func(t *testing.T) {
		t.Parallel()

		c, mr := newRedisCache(t)
		require.NoError(t, mr.Set("tenant:bad", "{not json"))

		_, _, err := c.Get(ctx, "bad")
		assert.Error(t, err)
	})

	t.Run("directory over redis shares results", func(t *testing.T) {
		t.Parallel()

		c, _ := newRedisCache(t)
		reg := newMockRegistry(newTenant("acme.example.com", "acme", tenant.StatusActive))

		first := tenant.NewDirectory(reg, tenant.WithCache(c))
		second := tenant.NewDirectory(reg, tenant.WithCache(c))

		_, err := first.Resolve(ctx, "acme.example.com")
		require.NoError(t, err)
		got, err := second.Resolve(ctx, "acme.example.com")
		require.NoError(t, err)

		assert.Equal(t, "acme.example.com", got.Domain)
		assert.Equal(t, int32(1), reg.calls.Load())
	})
}
