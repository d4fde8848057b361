package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type breaker struct {
	cb          *gobreaker.CircuitBreaker
	config      Config
	degradation DegradationStrategy

	mu                sync.Mutex
	metrics           Metrics
	lastStateChange   time.Time
	degradationActive bool
}

func (b *breaker) update(fn func(b *breaker)) {
	b.mu.Lock()
	fn(b)
	b.mu.Unlock()
}

// Manager owns one breaker per downstream service. Breakers are created on
// first use from the registered config, or the default config.
type Manager struct {
	breakers    map[string]*breaker
	configs     map[string]Config
	strategies  map[string]DegradationStrategy
	defaults    Config
	listeners   []StateChangeListener
	mu          sync.RWMutex
	listenersMu sync.RWMutex
	logger      *zap.Logger
}

// NewManager creates a new circuit breaker manager
func NewManager(logger *zap.Logger, defaults Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		breakers:   make(map[string]*breaker),
		configs:    make(map[string]Config),
		strategies: make(map[string]DegradationStrategy),
		defaults:   defaults,
		logger:     logger,
	}
}

// Configure stores the config used for service and (re)builds its breaker,
// so configured services show up in Snapshots before their first call.
func (m *Manager) Configure(service string, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configs[service] = config
	m.breakers[service] = m.newBreaker(service)
}

// SetDegradation registers the fallback invoked when calls to service are rejected.
func (m *Manager) SetDegradation(service string, strategy DegradationStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategies[service] = strategy
	if b, exists := m.breakers[service]; exists {
		b.update(func(b *breaker) { b.degradation = strategy })
	}
}

func (m *Manager) configFor(service string) Config {
	if config, ok := m.configs[service]; ok {
		return config
	}
	return m.defaults
}

// newBreaker must be called with m.mu held.
func (m *Manager) newBreaker(service string) *breaker {
	config := m.configFor(service)

	b := &breaker{
		config:          config,
		degradation:     m.strategies[service],
		lastStateChange: time.Now(),
	}

	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: config.HalfOpenSuccesses,
		Interval:    config.Window,
		Timeout:     config.CoolDown,
		ReadyToTrip: readyToTrip(config),
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			m.handleStateChange(service, b, from, to)
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	recordState(service, StateClosed)

	return b
}

func readyToTrip(config Config) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= config.FailureThreshold {
			return true
		}
		if config.ErrorRateThreshold <= 0 || counts.Requests == 0 || counts.Requests < config.MinRequests {
			return false
		}
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return failureRatio > config.ErrorRateThreshold
	}
}

func (m *Manager) get(service string) *breaker {
	m.mu.RLock()
	b, exists := m.breakers[service]
	m.mu.RUnlock()

	if exists {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = m.breakers[service]; exists {
		return b
	}

	b = m.newBreaker(service)
	m.breakers[service] = b
	m.logger.Info("created circuit breaker", zap.String("service", service))

	return b
}

func (m *Manager) lookup(service string) (*breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[service]
	return b, ok
}

// Execute runs fn through the breaker for service. While the breaker rejects
// calls, fn is not invoked: the degradation strategy supplies the result if
// one is registered, otherwise an *OpenError is returned.
func (m *Manager) Execute(ctx context.Context, service string, fn Operation) (any, error) {
	b := m.get(service)

	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return m.reject(ctx, service, b)
	}

	var recorder ResultRecorder
	b.update(func(b *breaker) {
		b.metrics.RequestsTotal++
		if err != nil {
			b.metrics.RequestsFailed++
		} else {
			b.metrics.RequestsSuccessful++
			recorder, _ = b.degradation.(ResultRecorder)
		}
	})

	if err != nil {
		recordRequest(service, outcomeFailure)
		return nil, err
	}

	recordRequest(service, outcomeSuccess)
	if recorder != nil {
		recorder.Record(ctx, service, result)
	}

	return result, nil
}

func (m *Manager) reject(ctx context.Context, service string, b *breaker) (any, error) {
	openErr := &OpenError{Service: service}
	recordRequest(service, outcomeRejected)

	var strategy DegradationStrategy
	b.update(func(b *breaker) {
		b.metrics.RequestsTotal++
		b.metrics.RequestsFailed++
		strategy = b.degradation
		if strategy != nil {
			b.metrics.DegradationInvocations++
			b.degradationActive = true
		}
	})

	if strategy == nil {
		m.logger.Warn("circuit breaker open, request rejected", zap.String("service", service))
		return nil, openErr
	}

	recordDegradation(service)
	m.logger.Warn("circuit breaker open, serving degraded result", zap.String("service", service))

	return strategy.Degrade(ctx, service, openErr)
}

// State returns the current state of the breaker for service. Unknown
// services report CLOSED, since their first call would be let through.
func (m *Manager) State(service string) State {
	b, ok := m.lookup(service)
	if !ok {
		return StateClosed
	}
	return convertGobreakerState(b.cb.State())
}

// Snapshot reports the health of one service.
func (m *Manager) Snapshot(service string) Health {
	b, ok := m.lookup(service)
	if !ok {
		return Health{
			Service:     service,
			State:       StateClosed,
			Healthy:     true,
			SuccessRate: 100,
		}
	}
	return m.snapshot(service, b)
}

func (m *Manager) snapshot(service string, b *breaker) Health {
	state := convertGobreakerState(b.cb.State())
	counts := b.cb.Counts()

	h := Health{
		Service:        service,
		State:          state,
		Healthy:        state == StateClosed,
		SuccessRate:    100,
		RecentRequests: counts.Requests,
	}
	if counts.Requests > 0 {
		h.SuccessRate = float64(counts.TotalSuccesses) / float64(counts.Requests) * 100
		h.ErrorRate = float64(counts.TotalFailures) / float64(counts.Requests) * 100
	}

	b.mu.Lock()
	h.Metrics = b.metrics
	h.LastStateChange = b.lastStateChange
	h.DegradationActive = b.degradationActive
	b.mu.Unlock()

	return h
}

// Snapshots reports every tracked service.
func (m *Manager) Snapshots() []Health {
	m.mu.RLock()
	tracked := make(map[string]*breaker, len(m.breakers))
	for service, b := range m.breakers {
		tracked[service] = b
	}
	m.mu.RUnlock()

	out := make([]Health, 0, len(tracked))
	for service, b := range tracked {
		out = append(out, m.snapshot(service, b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Reset forces service back to CLOSED with empty rolling and lifetime
// counters. It reports whether the service was tracked.
func (m *Manager) Reset(service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reset(service)
}

// ResetAll resets every tracked service and returns their names.
func (m *Manager) ResetAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	services := make([]string, 0, len(m.breakers))
	for service := range m.breakers {
		if m.reset(service) {
			services = append(services, service)
		}
	}
	sort.Strings(services)
	return services
}

// reset must be called with m.mu held.
func (m *Manager) reset(service string) bool {
	old, exists := m.breakers[service]
	if !exists {
		return false
	}

	from := convertGobreakerState(old.cb.State())
	m.breakers[service] = m.newBreaker(service)

	m.logger.Info("circuit breaker reset",
		zap.String("service", service),
		zap.String("previous_state", string(from)))

	if from != StateClosed {
		m.notify(service, from, StateClosed)
	}
	return true
}

// RegisterStateChangeListener registers a listener for state change notifications
func (m *Manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		return
	}

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = append(m.listeners, listener)
}

// handleStateChange runs inside gobreaker's lock; it must not call back into
// the breaker or take m.mu.
func (m *Manager) handleStateChange(service string, b *breaker, from gobreaker.State, to gobreaker.State) {
	fromState := convertGobreakerState(from)
	toState := convertGobreakerState(to)

	switch to {
	case gobreaker.StateOpen:
		m.logger.Error("circuit breaker opened, requests will fast-fail", zap.String("service", service))
		recordTrip(service)
	case gobreaker.StateHalfOpen:
		m.logger.Info("circuit breaker half-open, testing recovery", zap.String("service", service))
	case gobreaker.StateClosed:
		m.logger.Info("circuit breaker closed", zap.String("service", service))
	}
	recordState(service, toState)

	b.update(func(b *breaker) {
		b.lastStateChange = time.Now()
		if toState == StateOpen {
			b.metrics.CircuitBreakerTrips++
		}
		if toState == StateClosed {
			b.degradationActive = false
		}
	})

	m.notify(service, fromState, toState)
}

func (m *Manager) notify(service string, from, to State) {
	m.listenersMu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()

	for _, listener := range listeners {
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("state change listener panic",
						zap.String("service", service), zap.Any("panic", r))
				}
			}()

			l.OnStateChange(service, from, to)
		}(listener)
	}
}
