// Package middleware runs every proxied request through the security
// pipeline and records the outcome in the audit log.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"edgeguard/internal/audit"
	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/platform/httputil"
	"edgeguard/pkg/platform/middleware/request"
	"edgeguard/pkg/requestcontext"
)

type Checker interface {
	CheckRequest(ctx context.Context, req *models.RequestDescriptor) *models.Decision
}

type Auditor interface {
	LogAudit(ctx context.Context, rec audit.Record)
}

type Middleware struct {
	checker Checker
	auditor Auditor
	maxBody int64
	logger  *slog.Logger
}

// New wires the middleware. maxBody bounds how much of a body is buffered
// for inspection; one extra byte is read so oversize bodies are detectable.
func New(checker Checker, auditor Auditor, maxBody int64, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{checker: checker, auditor: auditor, maxBody: maxBody, logger: logger}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		now := requestcontext.Now(ctx)

		body, err := m.readBody(r)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to read request body",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
			return
		}

		desc := &models.RequestDescriptor{
			RequestID:     requestcontext.RequestID(ctx),
			ClientKey:     requestcontext.ClientIP(ctx),
			Method:        models.NormalizeMethod(r.Method),
			Path:          r.URL.Path,
			RawQuery:      r.URL.RawQuery,
			Headers:       r.Header,
			ContentType:   r.Header.Get("Content-Type"),
			ContentLength: r.ContentLength,
			Body:          body,
			UserAgent:     r.UserAgent(),
			ReceivedAt:    now,
		}

		sw := request.NewStatusWriter(w)
		decision := m.checker.CheckRequest(ctx, desc)
		if decision.Allowed {
			next.ServeHTTP(sw, r)
		} else {
			deny(sw, decision)
		}

		m.auditor.LogAudit(ctx, audit.Record{
			RequestID:   desc.RequestID,
			ClientKey:   desc.ClientKey,
			Method:      desc.Method,
			Endpoint:    desc.Path,
			Status:      sw.Status(),
			Duration:    time.Since(start),
			ContentType: desc.ContentType,
			Body:        body,
			Headers:     r.Header,
			UserAgent:   desc.UserAgent,
			Timestamp:   now,
		})
	})
}

// readBody buffers at most maxBody+1 bytes and puts them back on r so the
// downstream handler still sees the full stream.
func (m *Middleware) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, m.maxBody+1))
	if err != nil {
		return nil, err
	}
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	return buf, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// deny writes the client-safe denial. The pipeline has already logged it.
func deny(w http.ResponseWriter, d *models.Decision) {
	if secs := retryAfterSeconds(d.RetryAfter); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httputil.WriteDenied(w, d.Status, d.Code, d.Reason)
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
