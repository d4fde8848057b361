package domain

import (
	"math"
	"time"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether a step in this status has finished running.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

type WorkflowStep struct {
	Name            string         `json:"name"`
	Status          StepStatus     `json:"status"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *int64         `json:"duration_seconds,omitempty"`
	Error           string         `json:"error,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func NewStep(name string) WorkflowStep {
	return WorkflowStep{Name: name, Status: StepPending}
}

// Finish closes the step at the given time and computes its duration in whole
// seconds. A step that never started is treated as starting at end.
func (s *WorkflowStep) Finish(status StepStatus, end time.Time) int64 {
	if s.StartedAt == nil {
		start := end
		s.StartedAt = &start
	}
	s.Status = status
	s.CompletedAt = &end

	d := DurationSeconds(*s.StartedAt, end)
	s.DurationSeconds = &d
	return d
}

// DurationSeconds rounds end-start to the nearest second, never below zero.
func DurationSeconds(start, end time.Time) int64 {
	secs := math.Round(end.Sub(start).Seconds())
	if secs < 0 {
		return 0
	}
	return int64(secs)
}
