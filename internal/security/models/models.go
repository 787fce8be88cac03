// Package models holds the gateway's security domain types: events, audit
// entries, block entries, request descriptors and pipeline decisions.
package models

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"edgeguard/internal/audit/sanitize"
)

type EventType string

const (
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventDDoSDetected       EventType = "ddos_detected"
	EventInvalidInput       EventType = "invalid_input"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventSecurityViolation  EventType = "security_violation"
	EventIPBlocked          EventType = "ip_blocked"
	EventIPUnblocked        EventType = "ip_unblocked"
	EventInternalError      EventType = "internal_error"
	EventDependencyFailure  EventType = "dependency_failure"
)

// AllEventTypes lists every event type in a stable order.
var AllEventTypes = []EventType{
	EventRateLimitExceeded, EventDDoSDetected, EventInvalidInput, EventSuspiciousActivity,
	EventSecurityViolation, EventIPBlocked, EventIPUnblocked, EventInternalError, EventDependencyFailure,
}

func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Max returns the more severe of s and o.
func (s Severity) Max(o Severity) Severity {
	if o.Rank() > s.Rank() {
		return o
	}
	return s
}

// SecurityEvent records one security-relevant observation. Events are
// append-only and never modified after creation.
type SecurityEvent struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	Severity  Severity     `json:"severity"`
	ClientKey string       `json:"client_key"`
	Endpoint  string       `json:"endpoint"`
	Method    string       `json:"method,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Details   EventDetails `json:"details"`
	Blocked   bool         `json:"blocked"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewSecurityEvent builds an event for req. req may be nil for events that
// do not originate from a request (admin actions, workers).
func NewSecurityEvent(t EventType, sev Severity, req *RequestDescriptor, details EventDetails, blocked bool, now time.Time) SecurityEvent {
	ev := SecurityEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  sev,
		Details:   details,
		Blocked:   blocked,
		Timestamp: now,
	}
	if req != nil {
		ev.ClientKey = req.ClientKey
		ev.Endpoint = req.Path
		ev.Method = req.Method
		ev.RequestID = req.RequestID
	}
	return ev
}

// AuditEntry is the sanitized record of one completed request.
type AuditEntry struct {
	ID               string         `json:"id"`
	RequestID        string         `json:"request_id"`
	ClientKey        string         `json:"client_key"`
	Method           string         `json:"method"`
	Endpoint         string         `json:"endpoint"`
	ResponseStatus   int            `json:"response_status"`
	ResponseTimeMs   float64        `json:"response_time_ms"`
	Success          bool           `json:"success"`
	SanitizedBody    sanitize.Value `json:"sanitized_body"`
	SanitizedHeaders sanitize.Value `json:"sanitized_headers"`
	ComplianceFlags  []string       `json:"compliance_flags"`
	UserAgent        string         `json:"user_agent"`
	Timestamp        time.Time      `json:"timestamp"`
}

type BlockSource string

const (
	BlockSourceDDoS    BlockSource = "ddos"
	BlockSourceAdmin   BlockSource = "admin"
	BlockSourceAnomaly BlockSource = "anomaly"
)

// BlockEntry denies every request from Key until ExpiresAt. A nil ExpiresAt
// blocks until explicitly removed.
type BlockEntry struct {
	Key       string      `json:"ip"`
	Reason    string      `json:"reason"`
	Source    BlockSource `json:"source"`
	CreatedBy string      `json:"created_by,omitempty"`
	BlockedAt time.Time   `json:"blocked_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// NewBlockEntry creates a block starting at now. duration <= 0 means permanent.
func NewBlockEntry(key, reason string, source BlockSource, duration time.Duration, now time.Time) BlockEntry {
	entry := BlockEntry{
		Key:       key,
		Reason:    reason,
		Source:    source,
		BlockedAt: now,
	}
	if duration > 0 {
		expires := now.Add(duration)
		entry.ExpiresAt = &expires
	}
	return entry
}

// Active reports whether the block still applies at now. The block covers
// [BlockedAt, ExpiresAt).
func (b BlockEntry) Active(now time.Time) bool {
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// Remaining returns the time left on the block, zero for permanent or expired blocks.
func (b BlockEntry) Remaining(now time.Time) time.Duration {
	if b.ExpiresAt == nil || !now.Before(*b.ExpiresAt) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

// RateLimitState is the fixed-window counter for one key.
type RateLimitState struct {
	Count        int           `json:"count"`
	WindowStart  time.Time     `json:"window_start"`
	WindowLength time.Duration `json:"window_length"`
}

// ResetAt is when the current window closes.
func (s RateLimitState) ResetAt() time.Time {
	return s.WindowStart.Add(s.WindowLength)
}

// MethodOther replaces any request method outside the standard set, so
// stored records never carry a client-chosen method string.
const MethodOther = "OTHER"

// NormalizeMethod returns m when it is a standard HTTP method and
// MethodOther otherwise. Matching is case-sensitive, as in net/http.
func NormalizeMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return m
	}
	return MethodOther
}

// RequestDescriptor is everything the pipeline needs to judge one request.
// Method is already normalized.
type RequestDescriptor struct {
	RequestID     string
	ClientKey     string
	Method        string
	Path          string
	RawQuery      string
	Headers       http.Header
	ContentType   string
	ContentLength int64
	Body          []byte
	UserAgent     string
	ReceivedAt    time.Time
}

// HasBody reports whether the request carries a payload to validate.
func (r *RequestDescriptor) HasBody() bool {
	return len(r.Body) > 0 || r.ContentLength > 0
}
