package circuitbreaker

import (
	"context"
	"sync"
)

// DegradationStrategy substitutes a result for a call the breaker rejected.
// cause is the *OpenError the caller would otherwise have received.
type DegradationStrategy interface {
	Degrade(ctx context.Context, service string, cause error) (any, error)
}

// ResultRecorder is implemented by strategies that learn from successful calls.
type ResultRecorder interface {
	Record(ctx context.Context, service string, result any)
}

type DegradationFunc func(ctx context.Context, service string, cause error) (any, error)

func (f DegradationFunc) Degrade(ctx context.Context, service string, cause error) (any, error) {
	return f(ctx, service, cause)
}

// StaticFallback always returns value.
func StaticFallback(value any) DegradationStrategy {
	return DegradationFunc(func(context.Context, string, error) (any, error) {
		return value, nil
	})
}

// LastGoodResult serves the most recent successful result per service. With
// nothing cached the rejection is passed through.
type LastGoodResult struct {
	mu      sync.RWMutex
	results map[string]any
}

func NewLastGoodResult() *LastGoodResult {
	return &LastGoodResult{results: make(map[string]any)}
}

func (l *LastGoodResult) Record(_ context.Context, service string, result any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[service] = result
}

func (l *LastGoodResult) Degrade(_ context.Context, service string, cause error) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result, ok := l.results[service]
	if !ok {
		return nil, cause
	}
	return result, nil
}
