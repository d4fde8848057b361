package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys and channels shared with the pipeline driver and the follow-up mailer.
const (
	StepEventsChannel = "quote:workflow:step-events"
	AlertsChannel     = "quote:operator:alerts"
	FollowUpQueueKey  = "quote:followups:pending"
	DegradationPrefix = "quote:degradation:"
)

func NewRedisClient(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address, // e.g., "localhost:6379"
		PoolSize: 100,
	})

	// Ping to test connection on startup
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}

	return client, nil
}
