package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(1800), cfg.BottleneckThresholds[domain.PhaseQuoteGeneration])
	assert.Equal(t, 24*time.Hour, cfg.Alerting.StuckAfter)
	assert.Equal(t, 0.25, cfg.Alerting.FailureRateMax)
	assert.Equal(t, 300*time.Second, cfg.Diagnostics.CircuitBreakerWait)
	assert.Contains(t, cfg.Breakers.Services, circuitbreaker.ServiceGmail)
	assert.Len(t, cfg.Schedules, 4)
}

func TestLoad_OverridesMergeWithDefaults(t *testing.T) {
	path := writeConfig(t, `
bottleneck_thresholds:
  send: 120
alerting:
  failure_rate_max: 0.4
  stuck_after: 12h
breakers:
  services:
    gmail-service:
      failure_threshold: 2
      half_open_successes: 1
      cool_down: 30s
      window: 1m
schedules:
  stuck: "*/5 * * * *"
tracker:
  max_update_attempts: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(120), cfg.BottleneckThresholds[domain.PhaseSend])
	assert.Equal(t, int64(300), cfg.BottleneckThresholds[domain.PhaseDetection])
	assert.Equal(t, 0.4, cfg.Alerting.FailureRateMax)
	assert.Equal(t, 12*time.Hour, cfg.Alerting.StuckAfter)
	assert.Equal(t, 0.3, cfg.Alerting.AcceptanceMin)

	gmail := cfg.Breakers.Services[circuitbreaker.ServiceGmail]
	assert.Equal(t, uint32(2), gmail.FailureThreshold)
	assert.Equal(t, 30*time.Second, gmail.CoolDown)
	assert.Contains(t, cfg.Breakers.Services, circuitbreaker.ServicePDF)

	assert.Equal(t, "*/5 * * * *", cfg.Schedules[alerting.SweepStuck])
	assert.Equal(t, "0 6 * * *", cfg.Schedules[alerting.SweepAcceptance])
	assert.Equal(t, 5, cfg.Tracker.MaxUpdateAttempts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown phase", "bottleneck_thresholds:\n  shipping: 10\n"},
		{"negative threshold", "bottleneck_thresholds:\n  send: -1\n"},
		{"bad cron", "schedules:\n  stuck: \"every five minutes\"\n"},
		{"unknown sweep", "schedules:\n  disk: \"* * * * *\"\n"},
		{"rate above one", "alerting:\n  failure_rate_max: 1.5\n"},
		{"breaker without trip count", "breakers:\n  default:\n    failure_threshold: 0\n"},
		{"malformed yaml", "alerting: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyScheduleDisablesSweep(t *testing.T) {
	cfg, err := Load(writeConfig(t, "schedules:\n  acceptance: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Schedules[alerting.SweepAcceptance])
}
