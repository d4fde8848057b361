package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDownstream = errors.New("smtp: connection reset")

func testConfig() Config {
	return Config{
		FailureThreshold:   3,
		ErrorRateThreshold: 0,
		Window:             0,
		CoolDown:           50 * time.Millisecond,
		HalfOpenSuccesses:  2,
	}
}

func failing(calls *int) Operation {
	return func(context.Context) (any, error) {
		*calls++
		return nil, errDownstream
	}
}

func succeeding(calls *int) Operation {
	return func(context.Context) (any, error) {
		*calls++
		return "ok", nil
	}
}

func trip(t *testing.T, m *Manager, service string, failures int) {
	t.Helper()
	var calls int
	for i := 0; i < failures; i++ {
		_, err := m.Execute(context.Background(), service, failing(&calls))
		require.ErrorIs(t, err, errDownstream)
	}
	require.Equal(t, StateOpen, m.State(service))
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())

	assert.Equal(t, StateClosed, m.State(ServiceGmail))

	h := m.Snapshot(ServiceGmail)
	assert.True(t, h.Healthy)
	assert.Equal(t, 100.0, h.SuccessRate)
	assert.Zero(t, h.RecentRequests)
}

func TestManager_OpensAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	ctx := context.Background()
	var calls int

	for i := 0; i < 2; i++ {
		_, err := m.Execute(ctx, ServiceGmail, failing(&calls))
		require.ErrorIs(t, err, errDownstream)
		assert.Equal(t, StateClosed, m.State(ServiceGmail))
	}

	_, err := m.Execute(ctx, ServiceGmail, failing(&calls))
	require.ErrorIs(t, err, errDownstream)
	assert.Equal(t, StateOpen, m.State(ServiceGmail))
	assert.Equal(t, 3, calls)

	// Open short-circuits without invoking the call
	_, err = m.Execute(ctx, ServiceGmail, failing(&calls))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualError(t, err, "Circuit breaker open for gmail-service")
	assert.Equal(t, 3, calls)

	h := m.Snapshot(ServiceGmail)
	assert.False(t, h.Healthy)
	assert.Equal(t, uint64(4), h.Metrics.RequestsTotal)
	assert.Equal(t, uint64(4), h.Metrics.RequestsFailed)
	assert.Equal(t, uint64(1), h.Metrics.CircuitBreakerTrips)
}

func TestManager_SuccessResetsConsecutiveFailures(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	ctx := context.Background()
	var calls int

	_, _ = m.Execute(ctx, ServicePDF, failing(&calls))
	_, _ = m.Execute(ctx, ServicePDF, failing(&calls))
	_, err := m.Execute(ctx, ServicePDF, succeeding(&calls))
	require.NoError(t, err)
	_, _ = m.Execute(ctx, ServicePDF, failing(&calls))
	_, _ = m.Execute(ctx, ServicePDF, failing(&calls))

	assert.Equal(t, StateClosed, m.State(ServicePDF))
}

func TestManager_HalfOpenReopensOnFailure(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	trip(t, m, ServiceAI, 3)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, m.State(ServiceAI))

	var calls int
	_, err := m.Execute(context.Background(), ServiceAI, failing(&calls))
	require.ErrorIs(t, err, errDownstream)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateOpen, m.State(ServiceAI))
}

func TestManager_HalfOpenClosesAfterConsecutiveSuccesses(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	trip(t, m, ServiceAI, 3)

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, m.State(ServiceAI))

	var calls int
	_, err := m.Execute(context.Background(), ServiceAI, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, m.State(ServiceAI))

	_, err = m.Execute(context.Background(), ServiceAI, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, StateClosed, m.State(ServiceAI))
}

func TestManager_OpensOnErrorRate(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 10
	cfg.ErrorRateThreshold = 0.3
	cfg.MinRequests = 5
	cfg.CoolDown = time.Minute

	m := NewManager(zap.NewNop(), cfg)
	ctx := context.Background()
	var calls int

	for i := 0; i < 3; i++ {
		_, err := m.Execute(ctx, ServiceGmail, succeeding(&calls))
		require.NoError(t, err)
	}
	_, _ = m.Execute(ctx, ServiceGmail, failing(&calls))
	assert.Equal(t, StateClosed, m.State(ServiceGmail))
	assert.InDelta(t, 25.0, m.Snapshot(ServiceGmail).ErrorRate, 0.001)

	// 2 of 5 failed: 40% > 30%
	_, _ = m.Execute(ctx, ServiceGmail, failing(&calls))
	assert.Equal(t, StateOpen, m.State(ServiceGmail))
}

func TestManager_ResetClearsCounters(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 10
	cfg.ErrorRateThreshold = 0.3
	cfg.MinRequests = 5
	cfg.CoolDown = time.Minute

	m := NewManager(zap.NewNop(), cfg)
	ctx := context.Background()
	var calls int

	for i := 0; i < 3; i++ {
		_, _ = m.Execute(ctx, ServiceGmail, succeeding(&calls))
	}
	for i := 0; i < 2; i++ {
		_, _ = m.Execute(ctx, ServiceGmail, failing(&calls))
	}
	require.Equal(t, StateOpen, m.State(ServiceGmail))

	assert.True(t, m.Reset(ServiceGmail))

	h := m.Snapshot(ServiceGmail)
	assert.Equal(t, StateClosed, h.State)
	assert.True(t, h.Healthy)
	assert.Equal(t, 100.0, h.SuccessRate)
	assert.Zero(t, h.ErrorRate)
	assert.Zero(t, h.RecentRequests)
	assert.Equal(t, Metrics{}, h.Metrics)

	_, err := m.Execute(ctx, ServiceGmail, succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), m.Snapshot(ServiceGmail).RecentRequests)
}

func TestManager_ResetUnknownService(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	assert.False(t, m.Reset("fax-service"))
}

func TestManager_ResetAll(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	trip(t, m, ServiceGmail, 3)
	trip(t, m, ServicePDF, 3)

	reset := m.ResetAll()

	assert.Equal(t, []string{ServiceGmail, ServicePDF}, reset)
	assert.Equal(t, StateClosed, m.State(ServiceGmail))
	assert.Equal(t, StateClosed, m.State(ServicePDF))
}

func TestManager_ConfigurePerService(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	cfg := testConfig()
	cfg.FailureThreshold = 1
	m.Configure(ServicePDF, cfg)
	require.Len(t, m.Snapshots(), 1)

	trip(t, m, ServicePDF, 1)
	assert.Equal(t, StateClosed, m.State(ServiceGmail))
}

func TestManager_StateChangeListener(t *testing.T) {
	cfg := testConfig()
	cfg.CoolDown = time.Minute
	m := NewManager(zap.NewNop(), cfg)

	type change struct{ from, to State }
	changes := make(chan change, 4)
	m.RegisterStateChangeListener(StateChangeFunc(func(service string, from, to State) {
		if service == ServiceGmail {
			changes <- change{from, to}
		}
	}))

	trip(t, m, ServiceGmail, 3)

	select {
	case c := <-changes:
		assert.Equal(t, change{StateClosed, StateOpen}, c)
	case <-time.After(time.Second):
		t.Fatal("listener not notified")
	}

	m.Reset(ServiceGmail)

	select {
	case c := <-changes:
		assert.Equal(t, change{StateOpen, StateClosed}, c)
	case <-time.After(time.Second):
		t.Fatal("listener not notified of reset")
	}
}

func TestManager_Snapshots(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	ctx := context.Background()
	var calls int

	_, _ = m.Execute(ctx, ServicePDF, succeeding(&calls))
	_, _ = m.Execute(ctx, ServiceAI, failing(&calls))

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, ServiceAI, snaps[0].Service)
	assert.Equal(t, 0.0, snaps[0].SuccessRate)
	assert.Equal(t, ServicePDF, snaps[1].Service)
	assert.Equal(t, 100.0, snaps[1].SuccessRate)
}
