// Package pipeline runs the per-request admission checks and turns their
// outcome into a Decision.
//
// Stages run in a fixed order and the first denial wins:
//
//	block_check -> ddos_check -> rate_limit_check -> input_validation -> anomaly_check
//
// Dependency failures and panics inside a stage fail open: the request is
// allowed and a dependency_failure or internal_error event is recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edgeguard/internal/security/anomaly"
	"edgeguard/internal/security/config"
	"edgeguard/internal/security/metrics"
	"edgeguard/internal/security/models"
	"edgeguard/internal/security/service/blocking"
	"edgeguard/internal/security/store/tokenbucket"
	"edgeguard/internal/security/store/window"
	"edgeguard/internal/security/validator"
	"edgeguard/pkg/platform/privacy"
	"edgeguard/pkg/requestcontext"
)

const systemActor = "system"

// BlockService is the block registry as the pipeline sees it.
type BlockService interface {
	IsBlocked(ctx context.Context, key string) (*models.BlockEntry, error)
	Block(ctx context.Context, p blocking.BlockParams) (models.BlockEntry, error)
}

// EventSink receives every event the pipeline emits. LogEvent must not block.
type EventSink interface {
	LogEvent(ctx context.Context, event models.SecurityEvent)
}

// HistorySource returns a client's recently completed requests.
type HistorySource interface {
	RecentRequests(ctx context.Context, clientKey string, since time.Time) ([]models.AuditEntry, error)
}

// Stages holds the collaborators each stage delegates to. Buckets may be nil
// to disable token-bucket smoothing.
type Stages struct {
	Blocks    BlockService
	DDoS      *window.Store
	RateLimit *window.Store
	Buckets   *tokenbucket.Store
	Validator *validator.Validator
	Detector  *anomaly.Detector
	Events    EventSink
	History   HistorySource
}

type Pipeline struct {
	stages    Stages
	allowlist []netip.Prefix

	ddosBlock    time.Duration
	waitBudget   time.Duration
	blockOnScan  bool
	anomalyBlock time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// New validates cfg and wires the stages. Every collaborator except
// Stages.Buckets is required.
func New(cfg *config.Config, stages Stages, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("security config is required")
	}
	switch {
	case stages.Blocks == nil:
		return nil, fmt.Errorf("block service is required")
	case stages.DDoS == nil:
		return nil, fmt.Errorf("ddos counter is required")
	case stages.RateLimit == nil:
		return nil, fmt.Errorf("rate limit counter is required")
	case stages.Validator == nil:
		return nil, fmt.Errorf("input validator is required")
	case stages.Detector == nil:
		return nil, fmt.Errorf("anomaly detector is required")
	case stages.Events == nil:
		return nil, fmt.Errorf("event sink is required")
	case stages.History == nil:
		return nil, fmt.Errorf("history source is required")
	}
	allowlist, err := cfg.AllowlistPrefixes()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		stages:       stages,
		allowlist:    allowlist,
		ddosBlock:    cfg.DDoS.BlockDuration,
		waitBudget:   cfg.TokenBucket.WaitBudget,
		blockOnScan:  cfg.Anomaly.BlockOnScan,
		anomalyBlock: cfg.Anomaly.BlockDuration,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("edgeguard/security")
	}
	return p, nil
}

// check is the state of one CheckRequest call.
type check struct {
	req      *models.RequestDescriptor
	now      time.Time
	stage    models.Stage
	failOpen bool
}

type stage struct {
	name models.Stage
	run  func(ctx context.Context, c *check) *models.Decision
}

// CheckRequest judges req and returns the decision. It never returns nil and
// never panics.
func (p *Pipeline) CheckRequest(ctx context.Context, req *models.RequestDescriptor) (decision *models.Decision) {
	start := time.Now()
	c := &check{req: req, now: requestcontext.Now(ctx), stage: models.StageBlockCheck}

	ctx, span := p.tracer.Start(ctx, "security.check_request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Path),
		attribute.String("client.prefix", privacy.AnonymizeIP(req.ClientKey)),
	))
	defer func() {
		if r := recover(); r != nil {
			decision = p.recovered(ctx, c, r)
		}
		span.SetAttributes(
			attribute.String("security.stage", string(decision.Stage)),
			attribute.Bool("security.allowed", decision.Allowed),
			attribute.Bool("security.fail_open", decision.FailOpen),
		)
		if decision.FailOpen {
			span.SetStatus(codes.Error, "failed open at "+string(c.stage))
		}
		span.End()
		p.metrics.ObserveDecision(string(decision.Stage), decision.Allowed, time.Since(start))
	}()

	for _, st := range p.plan(req) {
		c.stage = st.name
		if d := st.run(ctx, c); d != nil {
			p.logger.InfoContext(ctx, "request denied",
				"stage", d.Stage,
				"reason", d.Reason,
				"client_prefix", privacy.AnonymizeIP(req.ClientKey),
				"endpoint", req.Path,
				"request_id", req.RequestID,
			)
			return d
		}
	}

	d := models.Allow()
	d.FailOpen = c.failOpen
	return d
}

// IsAllowlisted reports whether key falls inside a configured allowlist entry.
func (p *Pipeline) IsAllowlisted(key string) bool {
	if len(p.allowlist) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(key)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.allowlist {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (p *Pipeline) plan(req *models.RequestDescriptor) []stage {
	stages := make([]stage, 0, 5)
	stages = append(stages, stage{models.StageBlockCheck, p.checkBlocked})
	trusted := p.IsAllowlisted(req.ClientKey)
	if !trusted {
		stages = append(stages,
			stage{models.StageDDoSCheck, p.checkDDoS},
			stage{models.StageRateLimitCheck, p.checkRateLimit},
		)
	}
	if p.stages.Validator.Applies(req) {
		stages = append(stages, stage{models.StageInputValidation, p.checkInput})
	}
	if !trusted {
		stages = append(stages, stage{models.StageAnomalyCheck, p.checkAnomaly})
	}
	return stages
}

func (p *Pipeline) checkBlocked(ctx context.Context, c *check) *models.Decision {
	entry, err := p.stages.Blocks.IsBlocked(ctx, c.req.ClientKey)
	if err != nil {
		p.failOpen(ctx, c, "block_registry", err)
		return nil
	}
	if entry == nil {
		return nil
	}
	d := models.Deny(models.StageBlockCheck, http.StatusForbidden, "blocked", models.ReasonBlocked)
	d.RetryAfter = entry.Remaining(c.now)
	return d
}

func (p *Pipeline) checkDDoS(ctx context.Context, c *check) *models.Decision {
	res := p.stages.DDoS.Record(c.req.ClientKey, c.now)
	if res.Allowed {
		return nil
	}

	entry, err := p.stages.Blocks.Block(ctx, blocking.BlockParams{
		Key:      c.req.ClientKey,
		Reason:   "DDoS threshold exceeded",
		Source:   models.BlockSourceDDoS,
		Duration: p.ddosBlock,
		Actor:    systemActor,
		Request:  c.req,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to block client after burst",
			"client_prefix", privacy.AnonymizeIP(c.req.ClientKey),
			"error", err,
			"request_id", c.req.RequestID,
		)
	}
	p.stages.DDoS.Reset(c.req.ClientKey)

	blockedUntil := c.now.Add(p.ddosBlock)
	if entry.ExpiresAt != nil {
		blockedUntil = *entry.ExpiresAt
	}
	d := models.Deny(models.StageDDoSCheck, http.StatusTooManyRequests, string(models.EventDDoSDetected), models.ReasonDDoS)
	d.RetryAfter = blockedUntil.Sub(c.now)
	d.Event = p.emit(ctx, c, models.EventDDoSDetected, models.SeverityCritical, models.DDoSInfo(models.DDoSDetails{
		Threshold:       res.Threshold,
		Count:           res.Count,
		WindowMs:        p.stages.DDoS.Window().Milliseconds(),
		BlockDurationMs: p.ddosBlock.Milliseconds(),
		BlockedUntil:    blockedUntil,
	}))
	return d
}

func (p *Pipeline) checkRateLimit(ctx context.Context, c *check) *models.Decision {
	res := p.stages.RateLimit.Record(c.req.ClientKey, c.now)
	if !res.Allowed {
		d := models.Deny(models.StageRateLimitCheck, http.StatusTooManyRequests, "rate_limited", models.ReasonRateLimited)
		d.RetryAfter = res.ResetAt.Sub(c.now)
		d.Event = p.emit(ctx, c, models.EventRateLimitExceeded, models.SeverityMedium, models.RateLimitInfo(models.RateLimitDetails{
			Limiter:  "window",
			Limit:    res.Threshold,
			Count:    res.Count,
			WindowMs: p.stages.RateLimit.Window().Milliseconds(),
			ResetAt:  res.ResetAt,
		}))
		return d
	}

	buckets := p.stages.Buckets
	if buckets == nil || buckets.TryAcquire(c.req.ClientKey, c.now) {
		return nil
	}

	var waited time.Duration
	if p.waitBudget > 0 {
		waitStart := time.Now()
		wctx, cancel := context.WithTimeout(ctx, p.waitBudget)
		err := buckets.AcquireBlocking(wctx, c.req.ClientKey)
		cancel()
		waited = time.Since(waitStart)
		if err == nil {
			p.metrics.IncrementTokenWait("acquired")
			return nil
		}
		p.metrics.IncrementTokenWait("aborted")
		if !errors.Is(err, tokenbucket.ErrWaitAborted) {
			p.logger.WarnContext(ctx, "token wait failed", "error", err, "request_id", c.req.RequestID)
		}
	}

	d := models.Deny(models.StageRateLimitCheck, http.StatusTooManyRequests, "rate_limited", models.ReasonRateLimited)
	d.RetryAfter = buckets.Interval()
	d.Event = p.emit(ctx, c, models.EventRateLimitExceeded, models.SeverityLow, models.RateLimitInfo(models.RateLimitDetails{
		Limiter:   "token_bucket",
		ResetAt:   c.now.Add(buckets.Interval()),
		WaitedMs:  waited.Milliseconds(),
		Remaining: buckets.Tokens(c.req.ClientKey, c.now),
	}))
	return d
}

func (p *Pipeline) checkInput(ctx context.Context, c *check) *models.Decision {
	res := p.stages.Validator.Validate(c.req)
	if res.Allowed {
		return nil
	}
	d := models.Deny(models.StageInputValidation, res.Status, string(res.EventType), res.Reason)
	d.Event = p.emit(ctx, c, res.EventType, res.Severity, models.InputInfo(res.Details))
	return d
}

func (p *Pipeline) checkAnomaly(ctx context.Context, c *check) *models.Decision {
	history, err := p.stages.History.RecentRequests(ctx, c.req.ClientKey, c.now.Add(-p.stages.Detector.Window()))
	if err != nil {
		p.failOpen(ctx, c, "audit_history", err)
		return nil
	}
	a := p.stages.Detector.Assess(c.req, history, c.now)
	if !a.Flagged {
		return nil
	}
	if !a.BlockRecommended || !p.blockOnScan {
		p.record(ctx, c, models.EventSuspiciousActivity, a.Severity, a.Details(), false)
		return nil
	}

	if _, err := p.stages.Blocks.Block(ctx, blocking.BlockParams{
		Key:      c.req.ClientKey,
		Reason:   "Endpoint scanning detected",
		Source:   models.BlockSourceAnomaly,
		Duration: p.anomalyBlock,
		Actor:    systemActor,
		Request:  c.req,
	}); err != nil {
		p.logger.ErrorContext(ctx, "failed to block scanning client",
			"client_prefix", privacy.AnonymizeIP(c.req.ClientKey),
			"error", err,
			"request_id", c.req.RequestID,
		)
	}
	d := models.Deny(models.StageAnomalyCheck, http.StatusForbidden, string(models.EventSuspiciousActivity), models.ReasonSuspiciousActivity)
	d.RetryAfter = p.anomalyBlock
	d.Event = p.emit(ctx, c, models.EventSuspiciousActivity, a.Severity, a.Details())
	return d
}

// failOpen records a dependency failure and lets the check continue.
func (p *Pipeline) failOpen(ctx context.Context, c *check, dependency string, err error) {
	c.failOpen = true
	p.metrics.IncrementFailOpen(string(c.stage))
	p.metrics.IncrementDependencyError(dependency, string(c.stage))
	p.logger.WarnContext(ctx, "security check failed open",
		"stage", c.stage,
		"dependency", dependency,
		"error", err,
		"request_id", c.req.RequestID,
	)
	p.record(ctx, c, models.EventDependencyFailure, models.SeverityMedium, models.ErrorInfo(models.ErrorDetails{
		Stage:      string(c.stage),
		Dependency: dependency,
		Message:    "dependency unavailable",
	}), false)
}

// recovered turns a panic inside a stage into a fail-open allow.
func (p *Pipeline) recovered(ctx context.Context, c *check, r any) *models.Decision {
	p.metrics.IncrementFailOpen(string(c.stage))
	p.logger.ErrorContext(ctx, "security check panicked",
		"stage", c.stage,
		"panic", fmt.Sprint(r),
		"request_id", c.req.RequestID,
	)
	d := models.Allow()
	d.FailOpen = true
	func() {
		// The sink itself may be what panicked.
		defer func() { _ = recover() }()
		d.Event = p.record(ctx, c, models.EventInternalError, models.SeverityHigh, models.ErrorInfo(models.ErrorDetails{
			Stage:   string(c.stage),
			Message: "internal error during security check",
		}), false)
	}()
	return d
}

// emit records the event behind a denial.
func (p *Pipeline) emit(ctx context.Context, c *check, t models.EventType, sev models.Severity, details models.EventDetails) *models.SecurityEvent {
	return p.record(ctx, c, t, sev, details, true)
}

func (p *Pipeline) record(ctx context.Context, c *check, t models.EventType, sev models.Severity, details models.EventDetails, blocked bool) *models.SecurityEvent {
	event := models.NewSecurityEvent(t, sev, c.req, details, blocked, c.now)
	p.metrics.IncrementEvent(string(t), string(sev))
	p.stages.Events.LogEvent(ctx, event)
	return &event
}
