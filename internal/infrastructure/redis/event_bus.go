package redis

import (
	"context"
	"encoding/json"
	"errors"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisEventBus struct {
	client        *redis.Client
	stepChannel   string
	alertsChannel string
	logger        *zap.Logger
}

var (
	_ ports.StepEventBus  = (*RedisEventBus)(nil)
	_ ports.AlertNotifier = (*RedisEventBus)(nil)
)

func NewRedisEventBus(client *redis.Client, logger *zap.Logger) *RedisEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisEventBus{
		client:        client,
		stepChannel:   StepEventsChannel,
		alertsChannel: AlertsChannel,
		logger:        logger,
	}
}

// PublishStepEvent is used by the pipeline driver (and tests) to report progress.
func (b *RedisEventBus) PublishStepEvent(ctx context.Context, event domain.StepEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.stepChannel, payload).Err()
}

// PublishAlert broadcasts a raised alert on the operator channel
func (b *RedisEventBus) PublishAlert(ctx context.Context, event domain.AlertRaisedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.alertsChannel, payload).Err()
}

// SubscribeToStepEvents opens a continuous stream for the coordinator. The
// subscription is confirmed before returning, so no event published after
// this call is missed. The channel closes when ctx is done.
func (b *RedisEventBus) SubscribeToStepEvents(ctx context.Context) (<-chan domain.StepEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.stepChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	// ReceiveMessage does not return on ctx cancellation; closing the
	// pubsub unblocks it with redis.ErrClosed.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })

	msgChan := make(chan domain.StepEvent)

	go func() {
		defer close(msgChan)
		defer stop()
		defer pubsub.Close()

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				b.logger.Warn("step event receive failed", zap.Error(err))
				continue
			}

			var event domain.StepEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed step event", zap.Error(err))
				continue
			}

			select {
			case msgChan <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}
