package redisclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestGuardRejectsSecondHolder(t *testing.T) {
	mr, rdb := newTestClient(t)
	g := NewBookingGuard(rdb, 5*time.Second, discard)
	slot := uuid.New()
	ctx := context.Background()

	err := g.WithSlotGuard(ctx, slot, func(ctx context.Context) error {
		assert.True(t, mr.Exists(guardKey(slot)))

		inner := g.WithSlotGuard(ctx, slot, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrGuardHeld)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(guardKey(slot)))

	ran := false
	require.NoError(t, g.WithSlotGuard(ctx, slot, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestGuardReleasesOnError(t *testing.T) {
	mr, rdb := newTestClient(t)
	g := NewBookingGuard(rdb, 5*time.Second, discard)
	slot := uuid.New()
	boom := errors.New("boom")

	err := g.WithSlotGuard(context.Background(), slot, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(guardKey(slot)))
}

func TestGuardKeepsForeignToken(t *testing.T) {
	mr, rdb := newTestClient(t)
	g := &redisGuard{client: rdb, ttl: time.Second}
	key := guardKey(uuid.New())
	require.NoError(t, mr.Set(key, "someone-else"))

	require.NoError(t, g.release(context.Background(), key, "mine"))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNoGuardRunsDirectly(t *testing.T) {
	ran := false
	err := NoGuard().WithSlotGuard(context.Background(), uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestGuardStepsAsideWhenRedisIsDown(t *testing.T) {
	mr, rdb := newTestClient(t)
	g := NewBookingGuard(rdb, 5*time.Second, discard)
	mr.Close()

	ran := false
	err := g.WithSlotGuard(context.Background(), uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
