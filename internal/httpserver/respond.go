package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gigaelk/worrybox/internal/core/domain"
)

// errorBody is the wire format of the error envelope.
type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp,omitempty"`
	Recoverable   bool   `json:"recoverable"`
	Retryable     bool   `json:"retryable"`
	Timeout       string `json:"timeout,omitempty"`
	RetryAfter    string `json:"retryAfter,omitempty"`
	Stack         string `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Error           errorBody               `json:"error"`
	RecoveryActions []domain.RecoveryAction `json:"recoveryActions,omitempty"`
	Timestamp       string                  `json:"timestamp,omitempty"`
}

// genericMessages hides raw error detail in production.
var genericMessages = map[domain.ErrorCategory]string{
	domain.CategoryValidation:     "The request contains invalid data.",
	domain.CategoryAuthentication: "Authentication is required.",
	domain.CategoryAuthorization:  "You do not have permission to perform this action.",
	domain.CategoryDatabase:       "A storage error occurred. Please try again shortly.",
	domain.CategoryExternalAPI:    "An upstream service is unavailable. Please try again shortly.",
	domain.CategoryNetwork:        "A network error occurred. Please try again shortly.",
	domain.CategoryTimeout:        "The request took too long to complete.",
	domain.CategorySystem:         "An internal error occurred.",
}

var statusByCategory = map[domain.ErrorCategory]int{
	domain.CategoryValidation:     http.StatusBadRequest,
	domain.CategoryAuthentication: http.StatusUnauthorized,
	domain.CategoryAuthorization:  http.StatusForbidden,
	domain.CategoryDatabase:       http.StatusServiceUnavailable,
	domain.CategoryExternalAPI:    http.StatusBadGateway,
	domain.CategoryNetwork:        http.StatusBadGateway,
	domain.CategoryTimeout:        http.StatusGatewayTimeout,
	domain.CategorySystem:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the structured error envelope. In production the
// message is the generic per-category text; in development the raw message
// and stack are included.
func writeError(w http.ResponseWriter, production bool, enhanced *domain.EnhancedError, actions []domain.RecoveryAction) {
	status := statusByCategory[enhanced.Category]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := errorBody{
		Code:          enhanced.Code,
		CorrelationID: enhanced.CorrelationID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Recoverable:   enhanced.Recoverable,
		Retryable:     enhanced.Retryable,
	}
	if production {
		body.Message = genericMessages[enhanced.Category]
		if body.Message == "" {
			body.Message = "An internal error occurred."
		}
	} else {
		body.Message = enhanced.Err.Error()
		body.Stack = string(debug.Stack())
	}

	writeJSON(w, status, errorEnvelope{Error: body, RecoveryActions: actions})
}

// writeTimeout renders the 408 response.
func writeTimeout(w http.ResponseWriter, correlationID string, timeout time.Duration) {
	writeJSON(w, http.StatusRequestTimeout, errorEnvelope{
		Error: errorBody{
			Code:          "REQUEST_TIMEOUT",
			Message:       fmt.Sprintf("request did not complete within %s", timeout),
			Timeout:       timeout.String(),
			CorrelationID: correlationID,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeBreakerOpen renders the 503 circuit breaker rejection.
func writeBreakerOpen(w http.ResponseWriter, correlationID string, retryAfter time.Duration) {
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{
		Error: errorBody{
			Code:          "CIRCUIT_BREAKER_OPEN",
			Message:       "service temporarily unavailable, circuit breaker is open",
			CorrelationID: correlationID,
			RetryAfter:    retryAfter.String(),
		},
	})
}
