package audit

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"edgeguard/internal/audit/sanitize"
	"edgeguard/internal/security/models"
)

// maxTextBody bounds how much of a plain-text body is kept in the audit log.
const maxTextBody = 1024

// Record is the raw description of a completed request handed to LogAudit.
// The sink turns it into a sanitized AuditEntry; raw bodies never reach a store.
type Record struct {
	RequestID   string
	ClientKey   string
	Method      string
	Endpoint    string
	Status      int
	Duration    time.Duration
	ContentType string
	Body        []byte
	Headers     http.Header
	UserAgent   string
	Timestamp   time.Time
}

// NewEntry sanitizes rec and derives its compliance flags.
func NewEntry(rec Record) models.AuditEntry {
	body, bodyReport := sanitize.Walk(bodyValue(rec.ContentType, rec.Body))
	// Only body fields drive the sensitive-data flag; auth headers are on
	// nearly every request.
	headers, _ := sanitize.Walk(sanitize.FromHeaders(rec.Headers))

	return models.AuditEntry{
		ID:               uuid.NewString(),
		RequestID:        rec.RequestID,
		ClientKey:        rec.ClientKey,
		Method:           rec.Method,
		Endpoint:         rec.Endpoint,
		ResponseStatus:   rec.Status,
		ResponseTimeMs:   float64(rec.Duration.Microseconds()) / 1000,
		Success:          rec.Status > 0 && rec.Status < http.StatusBadRequest,
		SanitizedBody:    body,
		SanitizedHeaders: headers,
		ComplianceFlags:  ComplianceFlags(rec.Endpoint, bodyReport),
		UserAgent:        rec.UserAgent,
		Timestamp:        rec.Timestamp,
	}
}

// bodyValue parses JSON and form bodies so Walk can redact fields. Plain
// text is kept truncated; any other payload is summarized by size only.
func bodyValue(contentType string, body []byte) sanitize.Value {
	if len(body) == 0 {
		return sanitize.Null()
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if v, err := sanitize.FromJSON(body); err == nil {
			return v
		}
	case mediaType == "application/x-www-form-urlencoded":
		if values, err := url.ParseQuery(string(body)); err == nil {
			return sanitize.FromForm(values)
		}
	case mediaType == "text/plain":
		return sanitize.String(truncate(string(body), maxTextBody))
	}
	return sanitize.Map(map[string]sanitize.Value{
		"omitted_bytes": sanitize.FromAny(len(body)),
		"content_type":  sanitize.String(mediaType),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
