package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"edgeguard/internal/audit"
	"edgeguard/internal/security/models"
)

// =============================================================================
// Audit Postgres Store Test Suite
// =============================================================================
// Justification: a batch insert is all-or-nothing inside its transaction, so
// the row-by-row fallback is what keeps one bad record from costing the sink
// a whole batch. The SQL round trip is exercised against sqlmock.

type PostgresStoreSuite struct {
	suite.Suite
	mock  sqlmock.Sqlmock
	store *Store
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.mock = mock
	s.store = New(db)
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	insertEvents  = `INSERT INTO security_events`
	insertEntries = `INSERT INTO audit_logs`
)

func sampleEvent(id string) models.SecurityEvent {
	return models.SecurityEvent{
		ID:        id,
		Type:      models.EventDDoSDetected,
		Severity:  models.SeverityCritical,
		ClientKey: "198.51.100.9",
		Endpoint:  "/api/chat",
		Method:    "POST",
		RequestID: "req-" + id,
		Details:   models.DDoSInfo(models.DDoSDetails{Threshold: 5, Count: 6}),
		Blocked:   true,
		Timestamp: t0,
	}
}

func eventArgs(e models.SecurityEvent) []driver.Value {
	return []driver.Value{
		e.ID, string(e.Type), string(e.Severity), e.ClientKey, e.Endpoint, e.Method,
		e.RequestID, sqlmock.AnyArg(), e.Blocked, e.Timestamp,
	}
}

// =============================================================================
// Batch Inserts
// =============================================================================

func (s *PostgresStoreSuite) TestAppendEventsWritesBatchInOneTransaction() {
	events := []models.SecurityEvent{sampleEvent("e1"), sampleEvent("e2")}

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare(insertEvents)
	for _, e := range events {
		prep.ExpectExec().WithArgs(eventArgs(e)...).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	s.mock.ExpectCommit()

	s.NoError(s.store.AppendEvents(context.Background(), events))
}

func (s *PostgresStoreSuite) TestAppendEventsEmptyBatchIsNoop() {
	s.NoError(s.store.AppendEvents(context.Background(), nil))
}

func (s *PostgresStoreSuite) TestAppendEntriesEncodesJSONColumns() {
	entry := models.AuditEntry{
		ID:              "a1",
		RequestID:       "req-a1",
		ClientKey:       "203.0.113.7",
		Method:          "GET",
		Endpoint:        "/orders",
		ResponseStatus:  200,
		ResponseTimeMs:  12.5,
		Success:         true,
		ComplianceFlags: nil,
		UserAgent:       "curl/8.0",
		Timestamp:       t0,
	}

	s.mock.ExpectBegin()
	s.mock.ExpectPrepare(insertEntries).ExpectExec().WithArgs(
		"a1", "req-a1", "203.0.113.7", "GET", "/orders", 200, 12.5, true,
		[]byte("null"), []byte("null"), []byte("[]"), "curl/8.0", t0,
	).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.store.AppendEntries(context.Background(), []models.AuditEntry{entry}))
}

// =============================================================================
// Poisoned Batches
// =============================================================================

func (s *PostgresStoreSuite) TestBadRowFallsBackToPerRowInserts() {
	good1, poison, good2 := sampleEvent("e1"), sampleEvent("e2"), sampleEvent("e3")
	poison.Method = strings.Repeat("X", 40)
	tooLong := errors.New("value too long for type character varying(16)")

	s.mock.ExpectBegin()
	prep := s.mock.ExpectPrepare(insertEvents)
	prep.ExpectExec().WithArgs(eventArgs(good1)...).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(eventArgs(poison)...).WillReturnError(tooLong)
	s.mock.ExpectRollback()

	s.mock.ExpectExec(insertEvents).WithArgs(eventArgs(good1)...).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(insertEvents).WithArgs(eventArgs(poison)...).WillReturnError(tooLong)
	s.mock.ExpectExec(insertEvents).WithArgs(eventArgs(good2)...).WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.store.AppendEvents(context.Background(), []models.SecurityEvent{good1, poison, good2})

	var rejected *audit.RejectedError
	s.Require().ErrorAs(err, &rejected)
	s.Equal([]int{1}, rejected.Rows)
	s.ErrorIs(err, tooLong)
}

func (s *PostgresStoreSuite) TestBatchIsRetryableWhenNoRowGetsThrough() {
	down := errors.New("connection refused")
	events := []models.SecurityEvent{sampleEvent("e1"), sampleEvent("e2")}

	s.mock.ExpectBegin().WillReturnError(down)
	for _, e := range events {
		s.mock.ExpectExec(insertEvents).WithArgs(eventArgs(e)...).WillReturnError(down)
	}

	err := s.store.AppendEvents(context.Background(), events)

	s.Require().Error(err)
	var rejected *audit.RejectedError
	s.False(errors.As(err, &rejected), "a store outage must stay retryable")
	s.ErrorIs(err, down)
}

func (s *PostgresStoreSuite) TestFailedCommitRecoveredRowByRow() {
	events := []models.SecurityEvent{sampleEvent("e1")}

	s.mock.ExpectBegin()
	s.mock.ExpectPrepare(insertEvents).ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
	s.mock.ExpectExec(insertEvents).WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(s.store.AppendEvents(context.Background(), events))
}

// =============================================================================
// Range Queries
// =============================================================================

func (s *PostgresStoreSuite) TestEventsInRangeDecodesRows() {
	r := models.TimeRange{Start: t0, End: t0.Add(time.Hour)}
	details, err := json.Marshal(models.DDoSInfo(models.DDoSDetails{Threshold: 5, Count: 6}))
	s.Require().NoError(err)

	s.mock.ExpectQuery(`SELECT .+ FROM security_events`).WithArgs(r.Start, r.End).WillReturnRows(
		sqlmock.NewRows([]string{"id", "event_type", "severity", "client_key", "endpoint", "method",
			"request_id", "details", "blocked", "created_at"}).
			AddRow("e1", "ddos_detected", "critical", "198.51.100.9", "/api/chat", "POST",
				"req-e1", details, true, t0.Add(time.Minute)),
	)

	events, err := s.store.EventsInRange(context.Background(), r)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(models.EventDDoSDetected, events[0].Type)
	s.Equal(models.SeverityCritical, events[0].Severity)
	s.Equal(models.DetailsDDoS, events[0].Details.Kind)
	s.True(events[0].Blocked)
}

func (s *PostgresStoreSuite) TestEntriesInRangeDecodesJSONColumns() {
	r := models.TimeRange{Start: t0, End: t0.Add(time.Hour)}

	s.mock.ExpectQuery(`SELECT .+ FROM audit_logs`).WithArgs(r.Start, r.End).WillReturnRows(
		sqlmock.NewRows([]string{"id", "request_id", "client_key", "method", "endpoint", "response_status",
			"response_time_ms", "success", "sanitized_body", "sanitized_headers",
			"compliance_flags", "user_agent", "created_at"}).
			AddRow("a1", "req-a1", "203.0.113.7", "POST", "/login", 401,
				3.2, false, []byte(`{"password":"[REDACTED]"}`), []byte(`{"Authorization":"[REDACTED]"}`),
				[]byte(`["sensitive_data_redacted"]`), "curl/8.0", t0),
	)

	entries, err := s.store.EntriesInRange(context.Background(), r)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	got := entries[0]
	s.Equal(401, got.ResponseStatus)
	s.Equal([]string{"sensitive_data_redacted"}, got.ComplianceFlags)
	pw, ok := got.SanitizedBody.Get("password")
	s.Require().True(ok)
	s.Equal("[REDACTED]", pw.Scalar())
}

func (s *PostgresStoreSuite) TestQueryFailureIsWrapped() {
	r := models.TimeRange{Start: t0, End: t0.Add(time.Hour)}
	s.mock.ExpectQuery(`SELECT .+ FROM security_events`).WillReturnError(errors.New("relation does not exist"))

	_, err := s.store.EventsInRange(context.Background(), r)
	s.ErrorContains(err, "query security events")
}
