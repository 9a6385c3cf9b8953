package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/affiliora/internal/config"
)

const keyContactClient = "ratelimit:contact:%s"

// ContactLimiter throttles attribution contacts per client address.
type ContactLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewContactLimiter(cfg config.Config, client *redis.Client) *ContactLimiter {
	if client == nil {
		return &ContactLimiter{}
	}
	return newContactLimiter(NewTokenBucket(client), cfg.RateLimit.ContactRate, cfg.RateLimit.ContactBurst)
}

func newContactLimiter(bucket Bucket, rate float64, burst int) *ContactLimiter {
	if rate <= 0 || burst <= 0 {
		return &ContactLimiter{}
	}
	return &ContactLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *ContactLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ContactLimiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyContactClient, clientKey), l.rate, l.burst)
}
