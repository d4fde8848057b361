package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Services guarded by a breaker in the quote pipeline.
const (
	ServiceGmail = "gmail-service"
	ServicePDF   = "pdf-service"
	ServiceAI    = "ai-service"
)

// State represents circuit breaker state
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
	StateUnknown  State = "UNKNOWN"
)

func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

// ErrCircuitOpen is the fast-fail signal returned while a breaker rejects
// calls. Use errors.Is to detect it; the concrete error is *OpenError.
var ErrCircuitOpen = errors.New("circuit breaker open")

type OpenError struct {
	Service string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("Circuit breaker open for %s", e.Service)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// Operation is a guarded outbound call.
type Operation func(ctx context.Context) (any, error)

// Metrics are lifetime counters. They only grow until Reset.
type Metrics struct {
	RequestsTotal          uint64 `json:"requests_total"`
	RequestsSuccessful     uint64 `json:"requests_successful"`
	RequestsFailed         uint64 `json:"requests_failed"`
	RetriesTotal           uint64 `json:"retries_total"`
	CircuitBreakerTrips    uint64 `json:"circuit_breaker_trips"`
	DegradationInvocations uint64 `json:"degradation_invocations"`
}

// Health is the per-service snapshot served to dashboards.
type Health struct {
	Service           string    `json:"service"`
	State             State     `json:"state"`
	Healthy           bool      `json:"healthy"`
	SuccessRate       float64   `json:"success_rate"`
	ErrorRate         float64   `json:"error_rate"`
	RecentRequests    uint32    `json:"recent_requests"`
	DegradationActive bool      `json:"degradation_active"`
	LastStateChange   time.Time `json:"last_state_change"`
	Metrics           Metrics   `json:"metrics"`
}

// StateChangeListener is notified when circuit breaker state changes
type StateChangeListener interface {
	OnStateChange(service string, from State, to State)
}

type StateChangeFunc func(service string, from State, to State)

func (f StateChangeFunc) OnStateChange(service string, from State, to State) {
	f(service, from, to)
}
