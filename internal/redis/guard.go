package redisclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrGuardHeld = errors.New("slot booking already in progress")

// Guard filters concurrent booking attempts for one slot before they reach the database.
// It is a contention filter only; exclusivity is enforced by the conditional update in storage.
type Guard interface {
	WithSlotGuard(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisGuard struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewBookingGuard creates a guard backed by one short-lived Redis key per slot.
// When Redis cannot be reached the guard steps aside and fn runs unguarded.
func NewBookingGuard(client *redis.Client, ttl time.Duration, log *slog.Logger) Guard {
	if log == nil {
		log = slog.Default()
	}
	return &redisGuard{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func guardKey(slotID uuid.UUID) string {
	return fmt.Sprintf("guard:slot:%s", slotID.String())
}

func (g *redisGuard) WithSlotGuard(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := guardKey(slotID)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.log.WarnContext(ctx, "slot guard unavailable, booking unguarded",
			"slot_id", slotID,
			"err", err,
		)
		return fn(ctx)
	}
	if !ok {
		return ErrGuardHeld
	}

	defer func() {
		// release with a fresh context so a canceled request still frees the key
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = g.release(relCtx, key, token)
	}()

	guardCtx, cancel := context.WithTimeout(ctx, g.ttl)
	defer cancel()

	return fn(guardCtx)
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (g *redisGuard) release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot guard: %w", err)
	}
	return nil
}

type noGuard struct{}

// NoGuard runs fn directly. Used when Redis is not configured.
func NoGuard() Guard { return noGuard{} }

func (noGuard) WithSlotGuard(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
