package recovery

import (
	"errors"
	"strings"

	"github.com/gigaelk/worrybox/internal/core/domain"
)

// Classifier derives an EnhancedError from a raw error. Errors tagged at
// the throw site (domain.TaggedError) are classified by their kind; foreign
// errors fall back to substring matching against the message. The matching
// tables preserve the legacy heuristic: approximate, but explicit and
// testable here rather than scattered through call sites.
type Classifier struct{}

// kindCategory maps throw-site kinds onto categories.
var kindCategory = map[domain.ErrorKind]domain.ErrorCategory{
	domain.KindValidation:     domain.CategoryValidation,
	domain.KindAuthentication: domain.CategoryAuthentication,
	domain.KindAuthorization:  domain.CategoryAuthorization,
	domain.KindDatabase:       domain.CategoryDatabase,
	domain.KindExternalAPI:    domain.CategoryExternalAPI,
	domain.KindNetwork:        domain.CategoryNetwork,
	domain.KindMemory:         domain.CategorySystem,
	domain.KindTimeout:        domain.CategoryTimeout,
}

// categoryPatterns is checked in order; first match wins.
var categoryPatterns = []struct {
	category domain.ErrorCategory
	patterns []string
}{
	{domain.CategoryAuthentication, []string{"authentication", "unauthenticated", "invalid token", "jwt", "login"}},
	{domain.CategoryAuthorization, []string{"authorization", "forbidden", "permission", "not allowed"}},
	{domain.CategoryValidation, []string{"validation", "invalid", "required field", "must be"}},
	{domain.CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded", "etimedout"}},
	{domain.CategoryDatabase, []string{"database", "prisma", "postgres", "sql", "connection pool", "constraint"}},
	{domain.CategoryNetwork, []string{"enotfound", "econnrefused", "econnreset", "network", "socket", "dns"}},
	{domain.CategoryExternalAPI, []string{"api error", "upstream", "external service", "rate limit", "429"}},
}

// Classify builds an EnhancedError. It never returns nil for a non-nil err.
func (Classifier) Classify(err error, correlationID string) *domain.EnhancedError {
	var enhanced *domain.EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced
	}

	category := domain.CategorySystem
	memory := false

	var tagged *domain.TaggedError
	if errors.As(err, &tagged) && tagged.Kind != domain.KindUnknown {
		category = kindCategory[tagged.Kind]
		memory = tagged.Kind == domain.KindMemory
	} else {
		msg := strings.ToLower(err.Error())
		for _, entry := range categoryPatterns {
			if containsAny(msg, entry.patterns) {
				category = entry.category
				break
			}
		}
		if category == domain.CategorySystem && containsAny(msg, []string{"heap", "out of memory", "allocation failed"}) {
			memory = true
		}
	}

	return &domain.EnhancedError{
		Err:           err,
		Code:          codeFor(category),
		Category:      category,
		Severity:      severityFor(category, err, memory),
		Recoverable:   recoverableFor(category),
		Retryable:     retryableFor(category),
		CorrelationID: correlationID,
	}
}

func containsAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func codeFor(category domain.ErrorCategory) string {
	return strings.ToUpper(string(category)) + "_ERROR"
}

// severityFor preserves the coarse legacy heuristic: network failures
// (ENOTFOUND and friends) are critical, database and memory errors high,
// timeouts and connection resets medium, everything else low.
func severityFor(category domain.ErrorCategory, err error, memory bool) domain.Severity {
	switch {
	case strings.Contains(strings.ToLower(err.Error()), "econnreset"):
		return domain.SeverityMedium
	case category == domain.CategoryNetwork:
		return domain.SeverityCritical
	case category == domain.CategoryDatabase || memory:
		return domain.SeverityHigh
	case category == domain.CategoryTimeout:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func recoverableFor(category domain.ErrorCategory) bool {
	switch category {
	case domain.CategoryValidation, domain.CategoryAuthentication, domain.CategoryAuthorization:
		return false
	default:
		return true
	}
}

func retryableFor(category domain.ErrorCategory) bool {
	switch category {
	case domain.CategoryNetwork, domain.CategoryTimeout, domain.CategoryDatabase, domain.CategoryExternalAPI:
		return true
	default:
		return false
	}
}
