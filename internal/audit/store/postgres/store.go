// Package postgres persists security events and audit entries in the
// security_events and audit_logs tables.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"edgeguard/internal/audit"
	"edgeguard/internal/audit/sanitize"
	"edgeguard/internal/security/models"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendEvents inserts events in one transaction, falling back to per-row
// inserts when the batch fails. Re-sent events are ignored by ID so a
// retried batch does not duplicate rows.
func (s *Store) AppendEvents(ctx context.Context, events []models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			id, event_type, severity, client_key, endpoint, method,
			request_id, details, blocked, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	return s.appendRows(ctx, query, "security event", len(events), func(i int) ([]any, error) {
		e := events[i]
		details, err := json.Marshal(e.Details)
		if err != nil {
			return nil, fmt.Errorf("encode event details: %w", err)
		}
		return []any{
			e.ID,
			string(e.Type),
			string(e.Severity),
			e.ClientKey,
			e.Endpoint,
			e.Method,
			e.RequestID,
			details,
			e.Blocked,
			e.Timestamp,
		}, nil
	})
}

func (s *Store) AppendEntries(ctx context.Context, entries []models.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (
			id, request_id, client_key, method, endpoint, response_status,
			response_time_ms, success, sanitized_body, sanitized_headers,
			compliance_flags, user_agent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	return s.appendRows(ctx, query, "audit entry", len(entries), func(i int) ([]any, error) {
		e := entries[i]
		body, err := json.Marshal(e.SanitizedBody)
		if err != nil {
			return nil, fmt.Errorf("encode sanitized body: %w", err)
		}
		headers, err := json.Marshal(e.SanitizedHeaders)
		if err != nil {
			return nil, fmt.Errorf("encode sanitized headers: %w", err)
		}
		flags, err := json.Marshal(nonNil(e.ComplianceFlags))
		if err != nil {
			return nil, fmt.Errorf("encode compliance flags: %w", err)
		}
		return []any{
			e.ID,
			e.RequestID,
			e.ClientKey,
			e.Method,
			e.Endpoint,
			e.ResponseStatus,
			e.ResponseTimeMs,
			e.Success,
			body,
			headers,
			flags,
			e.UserAgent,
			e.Timestamp,
		}, nil
	})
}

func (s *Store) EventsInRange(ctx context.Context, r models.TimeRange) ([]models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, severity, client_key, endpoint, method,
			   request_id, details, blocked, created_at
		FROM security_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	events := make([]models.SecurityEvent, 0)
	for rows.Next() {
		var (
			e        models.SecurityEvent
			typ, sev string
			details  []byte
		)
		if err := rows.Scan(&e.ID, &typ, &sev, &e.ClientKey, &e.Endpoint, &e.Method,
			&e.RequestID, &details, &e.Blocked, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		e.Type = models.EventType(typ)
		e.Severity = models.Severity(sev)
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode event details: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return events, nil
}

func (s *Store) EntriesInRange(ctx context.Context, r models.TimeRange) ([]models.AuditEntry, error) {
	query := `
		SELECT id, request_id, client_key, method, endpoint, response_status,
			   response_time_ms, success, sanitized_body, sanitized_headers,
			   compliance_flags, user_agent, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var (
			e                    models.AuditEntry
			body, headers, flags []byte
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ClientKey, &e.Method, &e.Endpoint, &e.ResponseStatus,
			&e.ResponseTimeMs, &e.Success, &body, &headers, &flags, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.SanitizedBody, err = sanitize.FromJSON(body); err != nil {
			return nil, fmt.Errorf("decode sanitized body: %w", err)
		}
		if e.SanitizedHeaders, err = sanitize.FromJSON(headers); err != nil {
			return nil, fmt.Errorf("decode sanitized headers: %w", err)
		}
		if err := json.Unmarshal(flags, &e.ComplianceFlags); err != nil {
			return nil, fmt.Errorf("decode compliance flags: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// appendRows writes n rows built by build. The batch goes in one
// transaction; if that fails, each row is retried on its own so a single
// bad row cannot take the rest of the batch with it. Rows that fail alone
// are reported through *audit.RejectedError. When no row gets through the
// batch error is returned unchanged and the caller may retry.
func (s *Store) appendRows(ctx context.Context, query, what string, n int, build func(i int) ([]any, error)) error {
	var (
		rows     = make([][]any, n)
		rejected []int
		firstErr error
	)
	valid := 0
	for i := range n {
		args, err := build(i)
		if err != nil {
			rejected = append(rejected, i)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rows[i] = args
		valid++
	}
	if valid == 0 {
		return rejectedError(rejected, firstErr)
	}

	batchErr := s.inTx(ctx, query, what, rows)
	if batchErr == nil {
		return rejectedError(rejected, firstErr)
	}
	if ctx.Err() != nil {
		return batchErr
	}

	written := 0
	for i, args := range rows {
		if args == nil {
			continue
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			if ctx.Err() != nil {
				return batchErr
			}
			rejected = append(rejected, i)
			if firstErr == nil {
				firstErr = fmt.Errorf("insert %s: %w", what, err)
			}
			continue
		}
		written++
	}
	if written == 0 {
		return batchErr
	}
	slices.Sort(rejected)
	return rejectedError(rejected, firstErr)
}

func rejectedError(rows []int, err error) error {
	if len(rows) == 0 {
		return nil
	}
	return &audit.RejectedError{Rows: rows, Err: err}
}

// inTx prepares query once and executes it for every non-nil row in a
// single transaction.
func (s *Store) inTx(ctx context.Context, query, what string, rows [][]any) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // original error wins
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if args == nil {
			continue
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", what, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func nonNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
