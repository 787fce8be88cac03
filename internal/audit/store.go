package audit

import (
	"context"
	"fmt"

	"edgeguard/internal/security/models"
)

// Store persists security events and audit entries. Both tables are
// append-only. Range queries return rows with Timestamp in [Start, End).
type Store interface {
	AppendEvents(ctx context.Context, events []models.SecurityEvent) error
	AppendEntries(ctx context.Context, entries []models.AuditEntry) error
	EventsInRange(ctx context.Context, r models.TimeRange) ([]models.SecurityEvent, error)
	EntriesInRange(ctx context.Context, r models.TimeRange) ([]models.AuditEntry, error)
}

// RejectedError reports rows a Store refused one by one while the rest of
// the batch was written. Rows holds the batch indexes of the refused rows,
// ascending. The rejection is final; callers must not retry.
type RejectedError struct {
	Rows []int
	Err  error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%d rows rejected: %v", len(e.Rows), e.Err)
}

// Rejected reports whether batch index i was refused.
func (e *RejectedError) Rejected(i int) bool {
	for _, r := range e.Rows {
		if r == i {
			return true
		}
	}
	return false
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
