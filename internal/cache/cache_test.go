package cache

import (
	"context"
	"testing"
	"time"

	"ispmanager/internal/authz"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principal(id uint) *authz.Principal {
	return &authz.Principal{
		UserID:      id,
		Username:    "alice",
		Roles:       []string{"staff"},
		Permissions: []string{"tickets.view"},
		IsActive:    true,
	}
}

func exercise(t *testing.T, c PrincipalCache) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, principal(1)))
	require.NoError(t, c.Set(ctx, principal(2)))

	got, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, principal(1), got)

	require.NoError(t, c.Delete(ctx, 1, 2))
	_, ok, err = c.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory(10, time.Minute))
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)
	require.NoError(t, c.Set(ctx, principal(1)))

	got, _, _ := c.Get(ctx, 1)
	got.Permissions[0] = "users.delete"

	again, _, _ := c.Get(ctx, 1)
	assert.Equal(t, []string{"tickets.view"}, again.Permissions)
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, principal(1)))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, 1)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exercise(t, NewRedis(client, time.Minute))
}

func TestRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedis(client, 30*time.Second)
	require.NoError(t, c.Set(ctx, principal(5)))
	assert.Equal(t, 30*time.Second, mr.TTL(key(5)))

	mr.FastForward(31 * time.Second)
	_, ok, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(Options{Kind: KindMemory, TTL: 0})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	c, err = New(Options{Kind: KindMemory, TTL: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(Options{Kind: KindRedis, TTL: time.Second})
	assert.Error(t, err)

	_, err = New(Options{Kind: "memcached", TTL: time.Second})
	assert.Error(t, err)
}

func TestNoopNeverHits(t *testing.T) {
	ctx := context.Background()
	var c Noop
	require.NoError(t, c.Set(ctx, principal(1)))
	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
