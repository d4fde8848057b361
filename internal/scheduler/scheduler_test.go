package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quote-sentinel/internal/alerting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	panic bool
}

func newCountingSweeper() *countingSweeper {
	return &countingSweeper{calls: map[string]int{}}
}

func (s *countingSweeper) Sweep(ctx context.Context, name string) (alerting.SweepResult, error) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
	if s.panic {
		panic("sweep exploded")
	}
	if _, ok := ctx.Deadline(); !ok {
		return alerting.SweepResult{}, errors.New("sweep ran without a deadline")
	}
	return alerting.SweepResult{Sweep: name}, s.err
}

func (s *countingSweeper) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func TestNew_SkipsDisabledSweeps(t *testing.T) {
	s, err := New(newCountingSweeper(), map[string]string{
		alerting.SweepStuck:       "*/15 * * * *",
		alerting.SweepAcceptance:  "",
		alerting.SweepFailureRate: "0 * * * *",
	}, time.Minute, zap.NewNop())
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, alerting.SweepFailureRate, entries[0].Sweep)
	assert.Equal(t, alerting.SweepStuck, entries[1].Sweep)
	assert.Equal(t, "*/15 * * * *", entries[1].Spec)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(newCountingSweeper(), map[string]string{
		alerting.SweepStuck: "not a schedule",
	}, time.Minute, zap.NewNop())
	assert.Error(t, err)
}

func TestStart_RunsSweepsOnSchedule(t *testing.T) {
	sweeper := newCountingSweeper()
	s, err := New(sweeper, map[string]string{
		alerting.SweepStuck: "@every 1s",
	}, time.Minute, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool {
		return sweeper.count(alerting.SweepStuck) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Next.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestRun_SurvivesErrorsAndPanics(t *testing.T) {
	sweeper := newCountingSweeper()
	sweeper.err = errors.New("db down")
	s, err := New(sweeper, map[string]string{alerting.SweepStuck: "@every 1h"}, time.Minute, zap.NewNop())
	require.NoError(t, err)

	s.run(alerting.SweepStuck)
	assert.Equal(t, 1, sweeper.count(alerting.SweepStuck))

	sweeper.panic = true
	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	assert.NotPanics(t, func() { entries[0].WrappedJob.Run() })
	assert.Equal(t, 2, sweeper.count(alerting.SweepStuck))
}
