package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// FollowUpSender asks the mailer to chase the suppliers of one quote request.
type FollowUpSender interface {
	SendFollowUp(ctx context.Context, quoteRequestID string) error
}

type Guard interface {
	ExecuteWithRetry(ctx context.Context, service string, policy circuitbreaker.RetryPolicy, fn circuitbreaker.Operation) (any, error)
}

type Options struct {
	Queue    ports.FollowUpQueue
	Sender   FollowUpSender
	Breakers Guard
	Retry    circuitbreaker.RetryPolicy
	// Pause after the mail breaker rejected a send
	Pause  time.Duration
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// Worker drains the follow-up queue through the gmail breaker. Failed sends
// go back on the queue.
type Worker struct {
	workerID string
	queue    ports.FollowUpQueue
	sender   FollowUpSender
	breakers Guard
	retry    circuitbreaker.RetryPolicy
	pause    time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewWorker(opts Options) *Worker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pause <= 0 {
		opts.Pause = 30 * time.Second
	}
	id := uuid.New().String()
	return &Worker{
		workerID: id,
		queue:    opts.Queue,
		sender:   opts.Sender,
		breakers: opts.Breakers,
		retry:    opts.Retry,
		pause:    opts.Pause,
		clock:    opts.Clock,
		logger:   opts.Logger.With(zap.String("worker_id", id)),
	}
}

// ProcessNextFollowUp handles exactly one queued follow-up. It returns
// ports.ErrQueueEmpty when nothing was waiting.
func (w *Worker) ProcessNextFollowUp(ctx context.Context) error {
	quoteRequestID, err := w.queue.Pop(ctx)
	if err != nil {
		if !errors.Is(err, ports.ErrQueueEmpty) && ctx.Err() == nil {
			w.logger.Error("failed to pop follow-up", zap.Error(err))
			w.wait(ctx, time.Second)
		}
		return err
	}

	_, err = w.breakers.ExecuteWithRetry(ctx, circuitbreaker.ServiceGmail, w.retry, func(ctx context.Context) (any, error) {
		return nil, w.sender.SendFollowUp(ctx, quoteRequestID)
	})
	if err == nil {
		followUpsTotal.WithLabelValues("sent").Inc()
		w.logger.Info("supplier follow-up sent", zap.String("quote_request_id", quoteRequestID))
		return nil
	}

	followUpsTotal.WithLabelValues("requeued").Inc()
	w.logger.Warn("supplier follow-up failed, requeueing",
		zap.String("quote_request_id", quoteRequestID),
		zap.Error(err))

	// Shutdown must not drop the item
	if pushErr := w.queue.Push(context.WithoutCancel(ctx), quoteRequestID); pushErr != nil {
		w.logger.Error("failed to requeue follow-up",
			zap.String("quote_request_id", quoteRequestID),
			zap.Error(pushErr))
		return errors.Join(err, pushErr)
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		w.wait(ctx, w.pause)
	}
	return err
}

func (w *Worker) wait(ctx context.Context, d time.Duration) {
	timer := w.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.Chan():
	}
}

// StartPool launches concurrent worker loops that run until ctx ends.
func (w *Worker) StartPool(ctx context.Context, concurrency int) {
	w.logger.Info("starting follow-up workers", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go func(threadID int) {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					w.logger.Info("follow-up worker shutting down", zap.Int("thread", threadID))
					return
				default:
				}

				err := w.ProcessNextFollowUp(ctx)
				switch {
				case err == nil, errors.Is(err, ports.ErrQueueEmpty):
				case ctx.Err() != nil:
				default:
					w.logger.Debug("follow-up attempt ended", zap.Int("thread", threadID), zap.Error(err))
				}
			}
		}(i)
	}
}

// Wait blocks until every loop started by StartPool has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}
