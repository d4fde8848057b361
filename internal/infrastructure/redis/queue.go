package redis

import (
	"context"
	"errors"
	"time"

	"quote-sentinel/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the supplier follow-up list consumed by the downstream mailer.
type RedisQueue struct {
	client    *redis.Client
	queueName string
	// How long Pop blocks before reporting ports.ErrQueueEmpty
	blockFor time.Duration
}

var _ ports.FollowUpQueue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueName: FollowUpQueueKey,
		blockFor:  5 * time.Second,
	}
}

// Push adds a quote request ID to the end of the list
func (q *RedisQueue) Push(ctx context.Context, quoteRequestID string) error {
	return q.client.RPush(ctx, q.queueName, quoteRequestID).Err()
}

// Pop waits for a quote request ID and removes it from the front of the list
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	result, err := q.client.BLPop(ctx, q.blockFor, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return "", ports.ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	// BLPop returns a slice: [QueueName, Element]
	return result[1], nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
