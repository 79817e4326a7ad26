// Package domain defines the error taxonomy shared across the reliability core.
package domain

import (
	"fmt"
	"time"
)

// ErrorCategory classifies an error by subsystem.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryDatabase       ErrorCategory = "database"
	CategoryExternalAPI    ErrorCategory = "external_api"
	CategoryNetwork        ErrorCategory = "network"
	CategorySystem         ErrorCategory = "system"
	CategoryTimeout        ErrorCategory = "timeout"
)

// Severity ranks how urgent an error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// ErrorKind is a typed tag set at the throw site. Errors carrying a kind
// bypass the message-matching classifier entirely.
type ErrorKind string

const (
	KindUnknown        ErrorKind = ""
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindDatabase       ErrorKind = "database"
	KindExternalAPI    ErrorKind = "external_api"
	KindNetwork        ErrorKind = "network"
	KindMemory         ErrorKind = "memory"
	KindTimeout        ErrorKind = "timeout"
)

// EnhancedError wraps a native error with classification metadata.
type EnhancedError struct {
	Err           error
	Code          string
	Category      ErrorCategory
	Severity      Severity
	Recoverable   bool
	Retryable     bool
	CorrelationID string
	Actions       []RecoveryAction
}

func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// TaggedError attaches an ErrorKind at the throw site.
type TaggedError struct {
	Kind ErrorKind
	Err  error
}

func (e *TaggedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaggedError) Unwrap() error { return e.Err }

// Tag wraps err with an explicit kind.
func Tag(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: kind, Err: err}
}

// RecoveryActionType names one kind of recovery attempt.
type RecoveryActionType string

const (
	ActionRetry               RecoveryActionType = "retry"
	ActionFallback            RecoveryActionType = "fallback"
	ActionCircuitBreaker      RecoveryActionType = "circuit_breaker"
	ActionGracefulDegradation RecoveryActionType = "graceful_degradation"
	ActionRestartService      RecoveryActionType = "restart_service"
	ActionCleanup             RecoveryActionType = "cleanup"
)

// RecoveryAction records one recovery attempt.
type RecoveryAction struct {
	Type      RecoveryActionType `json:"type"`
	Success   bool               `json:"success"`
	Duration  time.Duration      `json:"duration"`
	Reason    string             `json:"reason"`
	Timestamp time.Time          `json:"timestamp"`
}

// AlertLevel ranks operator alerts.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Alert is an operator-facing notification about a failed or failing recovery.
type Alert struct {
	ID            string     `json:"id"`
	Level         AlertLevel `json:"level"`
	Type          string     `json:"type"`
	Message       string     `json:"message"`
	CorrelationID string     `json:"correlation_id"`
	Acknowledged  bool       `json:"acknowledged"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}
