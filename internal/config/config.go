// Package config loads the engine policy file: thresholds, breaker settings
// and sweep schedules. Connection settings come from flags, not from here.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/bottleneck"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/diagnostics"
	"quote-sentinel/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Seconds per phase; phases left out keep their default
	BottleneckThresholds map[domain.Phase]int64 `yaml:"bottleneck_thresholds" validate:"dive,gt=0"`
	Alerting             alerting.Policy        `yaml:"alerting"`
	Diagnostics          diagnostics.Policy     `yaml:"diagnostics"`
	Breakers             BreakerConfig          `yaml:"breakers"`
	Tracker              TrackerConfig          `yaml:"tracker"`
	// Cron spec per sweep name; an empty spec disables the sweep
	Schedules map[string]string `yaml:"schedules"`
}

type BreakerConfig struct {
	Default        circuitbreaker.Config            `yaml:"default"`
	Services       map[string]circuitbreaker.Config `yaml:"services" validate:"dive"`
	Retry          circuitbreaker.RetryPolicy       `yaml:"retry"`
	DegradationTTL time.Duration                    `yaml:"degradation_ttl" validate:"gte=0"`
}

type TrackerConfig struct {
	MaxUpdateAttempts int `yaml:"max_update_attempts" validate:"gte=1,lte=10"`
}

func Default() Config {
	return Config{
		BottleneckThresholds: map[domain.Phase]int64(bottleneck.DefaultThresholds()),
		Alerting:             alerting.DefaultPolicy(),
		Diagnostics:          diagnostics.DefaultPolicy(),
		Breakers: BreakerConfig{
			Default:        circuitbreaker.DefaultConfig(),
			Services:       circuitbreaker.PipelineConfigs(),
			Retry:          circuitbreaker.DefaultRetryPolicy(),
			DegradationTTL: 6 * time.Hour,
		},
		Tracker: TrackerConfig{MaxUpdateAttempts: 3},
		Schedules: map[string]string{
			alerting.SweepStuck:            "*/15 * * * *",
			alerting.SweepSupplierResponse: "0 * * * *",
			alerting.SweepAcceptance:       "0 6 * * *",
			alerting.SweepFailureRate:      "*/30 * * * *",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var errs []error
	known := make(map[domain.Phase]bool, len(domain.Phases))
	for _, p := range domain.Phases {
		known[p] = true
	}
	for phase := range c.BottleneckThresholds {
		if !known[phase] {
			errs = append(errs, fmt.Errorf("unknown phase %q in bottleneck_thresholds", phase))
		}
	}

	sweeps := make(map[string]bool, len(alerting.SweepNames))
	for _, name := range alerting.SweepNames {
		sweeps[name] = true
	}
	for name, spec := range c.Schedules {
		if !sweeps[name] {
			errs = append(errs, fmt.Errorf("unknown sweep %q in schedules", name))
			continue
		}
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (c Config) Thresholds() bottleneck.Thresholds {
	return bottleneck.Thresholds(c.BottleneckThresholds)
}
