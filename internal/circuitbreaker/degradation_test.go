package circuitbreaker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStaticFallback_ServedWhileOpen(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	m.SetDegradation(ServicePDF, StaticFallback("placeholder.pdf"))
	trip(t, m, ServicePDF, 3)

	var calls int
	result, err := m.Execute(context.Background(), ServicePDF, succeeding(&calls))

	require.NoError(t, err)
	assert.Equal(t, "placeholder.pdf", result)
	assert.Zero(t, calls)

	h := m.Snapshot(ServicePDF)
	assert.True(t, h.DegradationActive)
	assert.Equal(t, uint64(1), h.Metrics.DegradationInvocations)
}

func TestLastGoodResult(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	cache := NewLastGoodResult()
	m.SetDegradation(ServiceAI, cache)
	ctx := context.Background()

	_, err := m.Execute(ctx, ServiceAI, func(context.Context) (any, error) {
		return "draft v1", nil
	})
	require.NoError(t, err)

	trip(t, m, ServiceAI, 3)

	result, err := m.Execute(ctx, ServiceAI, func(context.Context) (any, error) {
		t.Fatal("call must not run while open")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "draft v1", result)
}

func TestLastGoodResult_EmptyPassesRejectionThrough(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	m.SetDegradation(ServiceGmail, NewLastGoodResult())
	trip(t, m, ServiceGmail, 3)

	var calls int
	_, err := m.Execute(context.Background(), ServiceGmail, succeeding(&calls))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSetDegradation_WhileServingTraffic(t *testing.T) {
	m := NewManager(zap.NewNop(), testConfig())
	ctx := context.Background()
	cache := NewLastGoodResult()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = m.Execute(ctx, ServiceAI, func(context.Context) (any, error) {
					return "draft", nil
				})
			}
		}()
	}
	m.SetDegradation(ServiceAI, cache)
	wg.Wait()

	_, err := m.Execute(ctx, ServiceAI, func(context.Context) (any, error) {
		return "draft v2", nil
	})
	require.NoError(t, err)

	trip(t, m, ServiceAI, 3)
	result, err := m.Execute(ctx, ServiceAI, func(context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "draft v2", result)
}
