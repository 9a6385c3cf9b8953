package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/affiliora/internal/config"
	"go.uber.org/zap"
)

const (
	keyWebhookObject   = "webhook:lock:%s:%s"
	webhookLockPoll    = 50 * time.Millisecond
	defaultWebhookLock = 15 * time.Second
)

// Compare-and-delete so a holder whose TTL lapsed cannot free a lock that
// another delivery has since taken.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type mutex interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// WebhookLocker serializes deliveries that touch the same gateway object.
// It only reduces contention: when redis is unavailable or the wait runs out
// the caller proceeds unlocked and relies on the database constraints.
type WebhookLocker struct {
	locker mutex
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

func NewWebhookLocker(cfg config.Config, client *redis.Client, log *zap.Logger) *WebhookLocker {
	ttl := cfg.RateLimit.WebhookLockTTL
	if ttl <= 0 {
		ttl = defaultWebhookLock
	}
	l := &WebhookLocker{ttl: ttl, wait: ttl / 3, log: log.Named("ratelimit.webhook")}
	if client != nil {
		l.locker = &redisMutex{client: client, release: redis.NewScript(releaseScript)}
	}
	return l
}

// Acquire blocks briefly for the object lock and always returns a release
// func that is safe to call.
func (l *WebhookLocker) Acquire(ctx context.Context, provider, objectID string) func() {
	noop := func() {}
	if l == nil || l.locker == nil || strings.TrimSpace(objectID) == "" {
		return noop
	}
	key := fmt.Sprintf(keyWebhookObject, strings.TrimSpace(provider), strings.TrimSpace(objectID))

	deadline := time.Now().Add(l.wait)
	for {
		token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
		if err != nil {
			l.log.Warn("webhook lock unavailable", zap.String("key", key), zap.Error(err))
			return noop
		}
		if ok {
			return func() {
				if err := l.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					l.log.Warn("failed to release webhook lock", zap.String("key", key), zap.Error(err))
				}
			}
		}
		if time.Now().After(deadline) {
			l.log.Debug("webhook lock wait exceeded, continuing unlocked", zap.String("key", key))
			return noop
		}
		select {
		case <-ctx.Done():
			return noop
		case <-time.After(webhookLockPoll):
		}
	}
}

type redisMutex struct {
	client  *redis.Client
	release *redis.Script
}

func (m *redisMutex) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" || ttl <= 0 {
		return "", false, errors.New("invalid lock request")
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (m *redisMutex) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	return m.release.Run(ctx, m.client, []string{key}, token).Err()
}
