package dbrecovery

import (
	"context"

	"github.com/google/uuid"

	"github.com/gigaelk/worrybox/internal/core/domain"
	"github.com/gigaelk/worrybox/internal/infra/storage/postgres"
)

// ErrorArchiver persists handled errors through the recovery service, so
// archive writes queue and retry like any other database operation.
type ErrorArchiver struct {
	svc *Service
}

// NewErrorArchiver creates an archiver backed by svc.
func NewErrorArchiver(svc *Service) *ErrorArchiver {
	return &ErrorArchiver{svc: svc}
}

// Archive writes one error event. Best-effort: the caller logs failures
// and moves on.
func (a *ErrorArchiver) Archive(ctx context.Context, enhanced *domain.EnhancedError, ectx *domain.ErrorContext) error {
	ev := &postgres.ErrorEvent{
		ID:            uuid.New().String(),
		CorrelationID: ectx.CorrelationID,
		Code:          enhanced.Code,
		Category:      string(enhanced.Category),
		Severity:      string(enhanced.Severity),
		Message:       enhanced.Err.Error(),
		Path:          ectx.Request.Path,
		Method:        ectx.Request.Method,
		Recoverable:   enhanced.Recoverable,
		Retryable:     enhanced.Retryable,
		OccurredAt:    ectx.Timestamp,
	}

	_, err := a.svc.Execute(ctx, "archive_error_event", func(ctx context.Context, db *postgres.DB) (any, error) {
		return nil, postgres.InsertErrorEvent(ctx, db, ev)
	})
	return err
}
