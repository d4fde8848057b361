package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/domain"
)

// Failure is what the engine classifies: one failed step and its context.
type Failure struct {
	WorkflowID         string
	StepName           string
	Message            string
	Err                error
	QuoteRequestID     string
	SuppliersContacted int
	SuppliersResponded int
}

func (f Failure) text() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	return strings.ToLower(msg)
}

func (f Failure) contains(substrs ...string) bool {
	text := f.text()
	for _, s := range substrs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Rule pairs a predicate with the issue it produces.
type Rule struct {
	Kind  domain.IssueKind
	Match func(f Failure) bool
	Build func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction)
}

var openServicePattern = regexp.MustCompile(`(?i)circuit breaker open for ([a-z0-9_.-]+)`)

// DefaultRules is the built-in catalogue. Order matters: the first match is
// the primary issue. Matching is substring based and best effort.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind: domain.IssueCircuitBreakerTriggered,
			Match: func(f Failure) bool {
				return errors.Is(f.Err, circuitbreaker.ErrCircuitOpen) || f.contains("circuit breaker open")
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				service := openService(f)
				return domain.DiagnosticIssue{
						Issue:       domain.IssueCircuitBreakerTriggered,
						Severity:    domain.IssueHigh,
						Description: fmt.Sprintf("Calls to %s are being rejected by an open circuit breaker", service),
						SuggestedFixes: []string{
							"Wait for the circuit breaker cool-down before retrying",
							fmt.Sprintf("Check the health of %s", service),
							"Reset the breaker once the dependency has recovered",
						},
						AutomatedFixAvailable: true,
					}, []domain.RecoveryAction{{
						Kind:    domain.ActionWaitForCircuitBreakerReset,
						Delay:   p.CircuitBreakerWait,
						Service: service,
					}}
			},
		},
		{
			Kind: domain.IssueNoSuppliersFound,
			Match: func(f Failure) bool {
				return f.contains("no suppliers", "no matching suppliers", "suppliers not found")
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				return domain.DiagnosticIssue{
					Issue:       domain.IssueNoSuppliersFound,
					Severity:    domain.IssueMedium,
					Description: "No suppliers matched the requested products",
					SuggestedFixes: []string{
						"Add suppliers for the requested product categories",
						"Review the product matching rules",
						"Handle the request as a manual quote",
					},
				}, nil
			},
		},
		{
			Kind: domain.IssueTimeout,
			Match: func(f Failure) bool {
				return errors.Is(f.Err, context.DeadlineExceeded) || f.contains("timeout", "timed out", "deadline exceeded")
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				return domain.DiagnosticIssue{
						Issue:       domain.IssueTimeout,
						Severity:    domain.IssueMedium,
						Description: fmt.Sprintf("Step %s timed out", f.StepName),
						SuggestedFixes: []string{
							"Retry with an extended timeout",
							"Check latency of the downstream service",
						},
						AutomatedFixAvailable: true,
					}, []domain.RecoveryAction{{
						Kind:       domain.ActionRetryWithExtendedTimeout,
						Multiplier: p.TimeoutMultiplier,
					}}
			},
		},
		{
			Kind: domain.IssueEmailSendFailure,
			Match: func(f Failure) bool {
				return f.contains("email", "smtp")
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				return domain.DiagnosticIssue{
						Issue:       domain.IssueEmailSendFailure,
						Severity:    domain.IssueHigh,
						Description: "Sending email failed",
						SuggestedFixes: []string{
							"Verify mailbox credentials and OAuth token",
							"Check the sending quota",
							"Retry the send after a short backoff",
						},
						AutomatedFixAvailable: true,
					}, []domain.RecoveryAction{{
						Kind:    domain.ActionRetryEmailSend,
						Backoff: p.EmailRetryBackoff,
					}}
			},
		},
		{
			Kind: domain.IssueQuoteGenerationFailure,
			Match: func(f Failure) bool {
				return f.contains("pdf", "quote generation", "generate quote")
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				return domain.DiagnosticIssue{
					Issue:       domain.IssueQuoteGenerationFailure,
					Severity:    domain.IssueHigh,
					Description: "The quote document could not be generated",
					SuggestedFixes: []string{
						"Check the quote template for missing fields",
						"Verify supplier prices were parsed",
						"Generate the quote manually",
					},
				}, nil
			},
		},
		{
			Kind: domain.IssueZeroSupplierResponses,
			Match: func(f Failure) bool {
				if f.StepName != "monitor_responses" {
					return false
				}
				return f.contains("no responses", "zero responses", "no supplier responses") ||
					(f.SuppliersContacted > 0 && f.SuppliersResponded == 0)
			},
			Build: func(f Failure, p Policy) (domain.DiagnosticIssue, []domain.RecoveryAction) {
				issue := domain.DiagnosticIssue{
					Issue:       domain.IssueZeroSupplierResponses,
					Severity:    domain.IssueMedium,
					Description: "No supplier has answered the quote request",
					SuggestedFixes: []string{
						"Send follow-up emails to contacted suppliers",
						"Contact alternative suppliers",
					},
				}
				if f.QuoteRequestID == "" {
					return issue, nil
				}
				issue.AutomatedFixAvailable = true
				return issue, []domain.RecoveryAction{{
					Kind:           domain.ActionSendSupplierFollowUps,
					QuoteRequestID: f.QuoteRequestID,
				}}
			},
		},
	}
}

func openService(f Failure) string {
	var open *circuitbreaker.OpenError
	if errors.As(f.Err, &open) {
		return open.Service
	}
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if m := openServicePattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return "unknown"
}
