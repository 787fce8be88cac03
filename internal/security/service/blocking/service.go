// Package blocking owns the IP block registry: a local store on the request
// path, an optional durable store for restarts and an optional shared mirror
// for multi-replica deployments.
package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"edgeguard/internal/security/metrics"
	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/platform/circuit"
	"edgeguard/pkg/requestcontext"
)

type Store interface {
	Block(ctx context.Context, entry models.BlockEntry) error
	Unblock(ctx context.Context, key string) (bool, error)
	IsBlocked(ctx context.Context, key string, now time.Time) (*models.BlockEntry, error)
	List(ctx context.Context, now time.Time) ([]models.BlockEntry, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Mirror interface {
	Block(ctx context.Context, entry models.BlockEntry, now time.Time) error
	Unblock(ctx context.Context, key string) (bool, error)
	IsBlocked(ctx context.Context, key string, now time.Time) (*models.BlockEntry, error)
}

type EventLogger interface {
	LogEvent(ctx context.Context, event models.SecurityEvent)
}

// BlockParams describes a block to create. Request, when set, supplies the
// endpoint and request ID for the emitted ip_blocked event.
type BlockParams struct {
	Key      string
	Reason   string
	Source   models.BlockSource
	Duration time.Duration
	Actor    string
	Request  *models.RequestDescriptor
}

type Service struct {
	local         Store
	durable       Store
	mirror        Mirror
	breaker       *circuit.Breaker
	events        EventLogger
	metrics       *metrics.Metrics
	logger        *slog.Logger
	mirrorTimeout time.Duration
}

type Option func(*Service)

// WithDurableStore persists blocks so Restore can reload them after a restart.
func WithDurableStore(store Store) Option {
	return func(s *Service) {
		s.durable = store
	}
}

// WithMirror shares blocks with other replicas. Mirror calls go through a
// circuit breaker and never fail a request.
func WithMirror(mirror Mirror) Option {
	return func(s *Service) {
		s.mirror = mirror
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithEventLogger(events EventLogger) Option {
	return func(s *Service) {
		s.events = events
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMirrorTimeout bounds each mirror call. Default is 50ms.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.mirrorTimeout = d
		}
	}
}

func New(local Store, opts ...Option) (*Service, error) {
	if local == nil {
		return nil, fmt.Errorf("local block store is required")
	}
	svc := &Service{
		local:         local,
		logger:        slog.Default(),
		mirrorTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.mirror != nil && svc.breaker == nil {
		svc.breaker = circuit.New("block_mirror")
	}
	return svc, nil
}

// Block records a block for p.Key starting now. Only a local failure is
// returned; durable and mirror failures are logged and counted.
func (s *Service) Block(ctx context.Context, p BlockParams) (models.BlockEntry, error) {
	if p.Key == "" {
		return models.BlockEntry{}, dErrors.New(dErrors.CodeValidation, "client key is required")
	}
	now := requestcontext.Now(ctx)
	entry := models.NewBlockEntry(p.Key, p.Reason, p.Source, p.Duration, now)
	entry.CreatedBy = p.Actor

	if err := s.local.Block(ctx, entry); err != nil {
		return models.BlockEntry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record block")
	}
	if s.durable != nil {
		if err := s.durable.Block(ctx, entry); err != nil {
			s.dependencyFailed(ctx, "postgres", "block", err)
		}
	}
	s.mirrorCall(ctx, "block", now, func(mctx context.Context) error {
		return s.mirror.Block(mctx, entry, now)
	})

	s.metrics.IncrementBlocks(string(p.Source))
	s.logger.InfoContext(ctx, "client blocked",
		"client_key", entry.Key,
		"reason", entry.Reason,
		"source", entry.Source,
		"expires_at", entry.ExpiresAt,
		"request_id", requestcontext.RequestID(ctx),
	)

	severity := models.SeverityHigh
	if p.Source == models.BlockSourceAdmin {
		severity = models.SeverityMedium
	}
	s.emit(ctx, models.NewSecurityEvent(models.EventIPBlocked, severity, p.Request,
		models.BlockInfo(models.BlockDetails{
			Reason:    entry.Reason,
			Source:    entry.Source,
			Actor:     entry.CreatedBy,
			ExpiresAt: entry.ExpiresAt,
		}), true, now), entry.Key)
	return entry, nil
}

// Unblock removes any block for key from every store. It reports whether a
// block existed anywhere and never fails for an absent key.
func (s *Service) Unblock(ctx context.Context, key, actor string) (bool, error) {
	if key == "" {
		return false, dErrors.New(dErrors.CodeValidation, "client key is required")
	}
	now := requestcontext.Now(ctx)

	removed, err := s.local.Unblock(ctx, key)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove block")
	}
	if s.durable != nil {
		ok, err := s.durable.Unblock(ctx, key)
		if err != nil {
			s.dependencyFailed(ctx, "postgres", "unblock", err)
		}
		removed = removed || ok
	}
	s.mirrorCall(ctx, "unblock", now, func(mctx context.Context) error {
		ok, err := s.mirror.Unblock(mctx, key)
		removed = removed || ok
		return err
	})

	s.metrics.IncrementUnblocks()
	s.logger.InfoContext(ctx, "client unblocked",
		"client_key", key,
		"actor", actor,
		"was_blocked", removed,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, models.NewSecurityEvent(models.EventIPUnblocked, models.SeverityLow, nil,
		models.BlockInfo(models.BlockDetails{
			Reason: "manual unblock",
			Source: models.BlockSourceAdmin,
			Actor:  actor,
		}), false, now), key)
	return removed, nil
}

// IsBlocked returns the active block for key, checking the local store first
// and the mirror on a local miss. Mirror hits are cached locally. A mirror
// failure is returned as a dependency error so the caller can fail open.
func (s *Service) IsBlocked(ctx context.Context, key string) (*models.BlockEntry, error) {
	now := requestcontext.Now(ctx)
	entry, err := s.local.IsBlocked(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up block")
	}
	if entry != nil || s.mirror == nil {
		return entry, nil
	}
	if !s.breaker.Allow(now) {
		return nil, nil
	}

	mctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()
	mirrored, err := s.mirror.IsBlocked(mctx, key, now)
	if err != nil {
		s.recordMirrorFailure(ctx, "lookup", now, err)
		return nil, dErrors.Dependency(err, "block mirror lookup failed")
	}
	s.recordMirrorSuccess(ctx)
	if mirrored == nil {
		return nil, nil
	}
	if err := s.local.Block(ctx, *mirrored); err != nil {
		s.logger.WarnContext(ctx, "failed to cache mirrored block", "client_key", key, "error", err)
	}
	return mirrored, nil
}

// List returns the blocks active now, newest first.
func (s *Service) List(ctx context.Context) ([]models.BlockEntry, error) {
	entries, err := s.local.List(ctx, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list blocks")
	}
	if entries == nil {
		entries = []models.BlockEntry{}
	}
	return entries, nil
}

// Sweep removes expired blocks from the local and durable stores and returns
// how many local entries went.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	removed, err := s.local.Sweep(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep blocks")
	}
	if s.durable != nil {
		if _, err := s.durable.Sweep(ctx, now); err != nil {
			s.dependencyFailed(ctx, "postgres", "sweep", err)
		}
	}
	return removed, nil
}

// Restore loads every active block from the durable store into the local one.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.durable == nil {
		return 0, nil
	}
	entries, err := s.durable.List(ctx, requestcontext.Now(ctx))
	if err != nil {
		s.metrics.IncrementDependencyError("postgres", "restore")
		return 0, dErrors.Dependency(err, "failed to load persisted blocks")
	}
	for _, entry := range entries {
		if err := s.local.Block(ctx, entry); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore block")
		}
	}
	s.logger.InfoContext(ctx, "restored persisted blocks", "count", len(entries))
	return len(entries), nil
}

func (s *Service) mirrorCall(ctx context.Context, op string, now time.Time, call func(context.Context) error) {
	if s.mirror == nil {
		return
	}
	if !s.breaker.Allow(now) {
		s.logger.DebugContext(ctx, "block mirror circuit open, skipping", "operation", op)
		return
	}
	mctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()
	if err := call(mctx); err != nil {
		s.recordMirrorFailure(ctx, op, now, err)
		return
	}
	s.recordMirrorSuccess(ctx)
}

func (s *Service) recordMirrorFailure(ctx context.Context, op string, now time.Time, err error) {
	s.metrics.IncrementDependencyError("redis", op)
	s.logger.WarnContext(ctx, "block mirror call failed",
		"operation", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if change := s.breaker.RecordFailure(now); change.Opened {
		s.metrics.IncrementCircuitTransition(s.breaker.Name(), circuit.StateOpen.String())
		s.logger.WarnContext(ctx, "block mirror circuit opened", "breaker", s.breaker.Name())
	}
}

func (s *Service) recordMirrorSuccess(ctx context.Context) {
	if change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.IncrementCircuitTransition(s.breaker.Name(), circuit.StateClosed.String())
		s.logger.InfoContext(ctx, "block mirror circuit closed", "breaker", s.breaker.Name())
	}
}

func (s *Service) dependencyFailed(ctx context.Context, dependency, op string, err error) {
	s.metrics.IncrementDependencyError(dependency, op)
	s.logger.ErrorContext(ctx, "block persistence failed",
		"dependency", dependency,
		"operation", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) emit(ctx context.Context, event models.SecurityEvent, key string) {
	if event.ClientKey == "" {
		event.ClientKey = key
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	s.metrics.IncrementEvent(string(event.Type), string(event.Severity))
	if s.events != nil {
		s.events.LogEvent(ctx, event)
	}
}
