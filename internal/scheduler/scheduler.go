// Package scheduler hosts the periodic alert sweeps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quote-sentinel/internal/alerting"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Sweeper interface {
	Sweep(ctx context.Context, name string) (alerting.SweepResult, error)
}

type Entry struct {
	Sweep string    `json:"sweep"`
	Spec  string    `json:"spec"`
	Next  time.Time `json:"next"`
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  *zap.Logger

	entries map[cron.EntryID]Entry
}

// New registers one cron job per non-empty spec. Each run gets its own
// context bounded by timeout.
func New(sweeper Sweeper, schedules map[string]string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cronLogger{logger}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		sweeper: sweeper,
		timeout: timeout,
		logger:  logger,
		entries: make(map[cron.EntryID]Entry, len(schedules)),
	}

	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schedules[name]
		if spec == "" {
			logger.Info("sweep disabled", zap.String("sweep", name))
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { s.run(name) })
		if err != nil {
			return nil, fmt.Errorf("failed to schedule sweep %s: %w", name, err)
		}
		s.entries[id] = Entry{Sweep: name, Spec: spec}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("starting sweep scheduler", zap.Int("jobs", len(s.entries)))
	s.cron.Start()
}

// Stop halts scheduling and waits for running sweeps, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the scheduled sweeps with their next run time, which is
// zero until Start.
func (s *Scheduler) Entries() []Entry {
	var out []Entry
	for _, e := range s.cron.Entries() {
		entry, ok := s.entries[e.ID]
		if !ok {
			continue
		}
		entry.Next = e.Next
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sweep < out[j].Sweep })
	return out
}

func (s *Scheduler) run(name string) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.sweeper.Sweep(ctx, name)
	if err != nil {
		s.logger.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
		return
	}
	if result.Error != "" {
		s.logger.Warn("sweep finished with errors",
			zap.String("sweep", name),
			zap.Int("checked", result.Checked),
			zap.String("error", result.Error))
		return
	}
	s.logger.Info("sweep finished",
		zap.String("sweep", name),
		zap.Int("checked", result.Checked),
		zap.Int("alerts", len(result.Alerts)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
