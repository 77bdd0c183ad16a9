package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupCache(t *testing.T) (*JSONCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestJSONCache_SetGet(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "roster:group:1", payload{Name: "g1", Count: 3}, time.Minute))

	var got payload
	hit, err := c.GetJSON(ctx, "roster:group:1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "g1", Count: 3}, got)

	mr.FastForward(2 * time.Minute)
	hit, err = c.GetJSON(ctx, "roster:group:1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestJSONCache_Miss(t *testing.T) {
	c, _ := setupCache(t)

	var got payload
	hit, err := c.GetJSON(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestJSONCache_Delete(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "a", payload{Name: "a"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "b", payload{Name: "b"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "a", "b"))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestJSONCache_CorruptEntryIsDropped(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("bad", "{not json"))

	var got payload
	hit, err := c.GetJSON(context.Background(), "bad", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("bad"))
}

func TestJSONCache_Disabled(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*JSONCache{"nil cache": nil, "nil client": New(nil)} {
		t.Run(name, func(t *testing.T) {
			var got payload
			hit, err := c.GetJSON(ctx, "k", &got)
			require.NoError(t, err)
			assert.False(t, hit)
			assert.NoError(t, c.SetJSON(ctx, "k", payload{}, time.Minute))
			assert.NoError(t, c.Delete(ctx, "k"))
		})
	}
}

func TestConnect(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	assert.Nil(t, Connect(ctx, "", logger))

	mr := miniredis.RunT(t)
	client := Connect(ctx, mr.Addr(), logger)
	require.NotNil(t, client)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, Connect(ctx, addr, logger))
}
