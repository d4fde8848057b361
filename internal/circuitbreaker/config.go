package circuitbreaker

import "time"

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures that trip the breaker
	FailureThreshold uint32 `yaml:"failure_threshold" validate:"gte=1"`
	// Error ratio over the rolling window that trips the breaker (0 disables)
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" validate:"gte=0,lte=1"`
	// Requests needed in the window before the error ratio is considered
	MinRequests uint32 `yaml:"min_requests"`
	// Rolling window for closed-state counters
	Window time.Duration `yaml:"window" validate:"gte=0"`
	// Time spent OPEN before trial calls are allowed
	CoolDown time.Duration `yaml:"cool_down" validate:"gt=0"`
	// Consecutive HALF_OPEN successes needed to close
	HalfOpenSuccesses uint32 `yaml:"half_open_successes" validate:"gte=1"`
}

// DefaultConfig provides balanced settings for most services
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		ErrorRateThreshold: 0.5,
		MinRequests:        10,
		Window:             2 * time.Minute,
		CoolDown:           60 * time.Second,
		HalfOpenSuccesses:  3,
	}
}

// EmailServiceConfig trips quickly; a stuck mailbox blocks every quote.
func EmailServiceConfig() Config {
	return Config{
		FailureThreshold:   3,
		ErrorRateThreshold: 0.4,
		MinRequests:        5,
		Window:             time.Minute,
		CoolDown:           5 * time.Minute,
		HalfOpenSuccesses:  2,
	}
}

// PDFServiceConfig tolerates more failures; rendering errors are often input-specific.
func PDFServiceConfig() Config {
	return Config{
		FailureThreshold:   5,
		ErrorRateThreshold: 0.6,
		MinRequests:        10,
		Window:             3 * time.Minute,
		CoolDown:           2 * time.Minute,
		HalfOpenSuccesses:  3,
	}
}

func AIServiceConfig() Config {
	return Config{
		FailureThreshold:   4,
		ErrorRateThreshold: 0.5,
		MinRequests:        8,
		Window:             2 * time.Minute,
		CoolDown:           90 * time.Second,
		HalfOpenSuccesses:  2,
	}
}

// PipelineConfigs returns the configs for the three pipeline dependencies.
func PipelineConfigs() map[string]Config {
	return map[string]Config{
		ServiceGmail: EmailServiceConfig(),
		ServicePDF:   PDFServiceConfig(),
		ServiceAI:    AIServiceConfig(),
	}
}
