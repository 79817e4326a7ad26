package postgres

import (
	"context"
	"fmt"
	"time"
)

// ErrorEvent is the persisted form of a handled error.
type ErrorEvent struct {
	ID            string    `db:"id"`
	CorrelationID string    `db:"correlation_id"`
	Code          string    `db:"code"`
	Category      string    `db:"category"`
	Severity      string    `db:"severity"`
	Message       string    `db:"message"`
	Path          string    `db:"path"`
	Method        string    `db:"method"`
	Recoverable   bool      `db:"recoverable"`
	Retryable     bool      `db:"retryable"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// InsertErrorEvent archives one handled error. Callers pass the handle
// they obtained from the recovery service; this package never holds one.
func InsertErrorEvent(ctx context.Context, db *DB, ev *ErrorEvent) error {
	const query = `
		INSERT INTO error_events (
			id, correlation_id, code, category, severity, message,
			path, method, recoverable, retryable, occurred_at
		) VALUES (
			:id, :correlation_id, :code, :category, :severity, :message,
			:path, :method, :recoverable, :retryable, :occurred_at
		)`

	if _, err := db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("failed to insert error event: %w", err)
	}
	return nil
}

// RecentErrorEvents returns the most recent archived events, newest first.
func RecentErrorEvents(ctx context.Context, db *DB, limit int) ([]*ErrorEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, correlation_id, code, category, severity, message,
		       path, method, recoverable, retryable, occurred_at
		FROM error_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	var events []*ErrorEvent
	if err := db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to select error events: %w", err)
	}
	return events, nil
}

// CountErrorEventsSince returns the number of events archived after cutoff.
func CountErrorEventsSince(ctx context.Context, db *DB, cutoff time.Time) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM error_events WHERE occurred_at > $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to count error events: %w", err)
	}
	return count, nil
}
