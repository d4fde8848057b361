package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quote-sentinel/internal/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DegradationCache keeps the last good result of each guarded service in
// redis, so every instance can serve it while its own breaker is open.
// Cached results come back as json.RawMessage.
type DegradationCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var (
	_ circuitbreaker.DegradationStrategy = (*DegradationCache)(nil)
	_ circuitbreaker.ResultRecorder      = (*DegradationCache)(nil)
)

func NewDegradationCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *DegradationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DegradationCache{
		client: client,
		prefix: DegradationPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *DegradationCache) key(service string) string {
	return c.prefix + service
}

func (c *DegradationCache) Record(ctx context.Context, service string, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("result not cacheable", zap.String("service", service), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(service), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache result", zap.String("service", service), zap.Error(err))
	}
}

func (c *DegradationCache) Degrade(ctx context.Context, service string, cause error) (any, error) {
	payload, err := c.client.Get(ctx, c.key(service)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cause
	}
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	return json.RawMessage(payload), nil
}
