package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds ExecuteWithRetry.
type RetryPolicy struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}

// ExecuteWithRetry runs fn through the breaker, retrying failures with
// exponential backoff. A rejection by the breaker is not retried.
func (m *Manager) ExecuteWithRetry(ctx context.Context, service string, policy RetryPolicy, fn Operation) (any, error) {
	var (
		result   any
		attempts int
	)

	operation := func() error {
		if attempts > 0 {
			m.countRetry(service)
		}
		attempts++

		res, err := m.Execute(ctx, service, fn)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Debug("retrying guarded call",
			zap.String("service", service),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) countRetry(service string) {
	b := m.get(service)
	b.update(func(b *breaker) { b.metrics.RetriesTotal++ })
	recordRetry(service)
}
