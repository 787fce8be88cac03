// Package audit records security events and sanitized request audit
// entries, and answers the aggregate queries behind the stats and
// compliance endpoints.
//
// The Sink never blocks its callers. Records go into a bounded ring buffer
// (oldest dropped on overflow) drained by one goroutine in batches, with
// exponential-backoff retries against the Store. Every loss is counted and
// logged.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"edgeguard/internal/security/models"
	"edgeguard/pkg/requestcontext"
)

const (
	kindEvent = "event"
	kindEntry = "entry"
)

// record is one buffered item: exactly one of event or entry is set.
type record struct {
	event *models.SecurityEvent
	entry *models.AuditEntry
}

func (r record) kind() string {
	if r.event != nil {
		return kindEvent
	}
	return kindEntry
}

type Sink struct {
	store   Store
	buffer  *RingBuffer[record]
	history *recentHistory
	logger  *slog.Logger
	metrics *Metrics

	maxRetries    int
	retryBackoff  time.Duration
	flushInterval time.Duration
	writeTimeout  time.Duration
	batchSize     int
	historyLimit  int
	historyKeys   int

	wake      chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// closeMu orders enqueue against Close: a record admitted under the
	// read lock is in the buffer before the final flush starts.
	closeMu sync.RWMutex
	closed  bool

	written           atomic.Int64
	retries           atomic.Int64
	droppedAfterRetry atomic.Int64
	droppedClosed     atomic.Int64
}

// Option configures the Sink.
type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithQueueSize sets the ring buffer capacity. Default 10000.
func WithQueueSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.buffer = NewRingBuffer[record](n)
		}
	}
}

// WithBatchSize sets how many records one store write carries. Default 100.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the drain loop runs when the buffer holds
// less than a batch. Default 1s.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithMaxRetries sets retries per batch after the first attempt. Default 3.
func WithMaxRetries(n int) Option {
	return func(s *Sink) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base backoff, doubled per retry. Default 100ms.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.retryBackoff = d
		}
	}
}

// WithHistory bounds the per-client request history kept for the anomaly
// detector: limit entries per key across at most maxKeys keys.
func WithHistory(limit, maxKeys int) Option {
	return func(s *Sink) {
		s.historyLimit = limit
		s.historyKeys = maxKeys
	}
}

// New creates a Sink and starts its drain goroutine. Call Close on shutdown.
func New(store Store, opts ...Option) (*Sink, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	s := &Sink{
		store:         store,
		buffer:        NewRingBuffer[record](10000),
		logger:        slog.Default(),
		maxRetries:    3,
		retryBackoff:  100 * time.Millisecond,
		flushInterval: time.Second,
		writeTimeout:  5 * time.Second,
		batchSize:     100,
		historyLimit:  200,
		historyKeys:   100000,
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = newRecentHistory(s.historyLimit, s.historyKeys)

	s.wg.Add(1)
	go s.drainLoop()
	return s, nil
}

// LogEvent queues event for persistence. It never blocks.
func (s *Sink) LogEvent(ctx context.Context, event models.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	s.enqueue(ctx, record{event: &event})
}

// LogAudit sanitizes rec, derives its compliance flags and queues the
// resulting entry. It never blocks.
func (s *Sink) LogAudit(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = requestcontext.Now(ctx)
	}
	entry := NewEntry(rec)
	s.history.record(entry)
	s.enqueue(ctx, record{entry: &entry})
}

// RecentRequests returns clientKey's requests completed at or after since,
// oldest first. Served from memory; it never touches the store.
func (s *Sink) RecentRequests(_ context.Context, clientKey string, since time.Time) ([]models.AuditEntry, error) {
	return s.history.since(clientKey, since), nil
}

// PruneHistory forgets clients with no request since cutoff.
func (s *Sink) PruneHistory(cutoff time.Time) int {
	return s.history.prune(cutoff)
}

// HistoryLen is the number of clients with recorded history.
func (s *Sink) HistoryLen() int {
	return s.history.len()
}

func (s *Sink) enqueue(ctx context.Context, r record) {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		s.droppedClosed.Add(1)
		s.logger.WarnContext(ctx, "audit sink closed, record dropped",
			"kind", r.kind(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	evicted := s.buffer.Enqueue(r)
	s.closeMu.RUnlock()

	if evicted {
		s.metrics.IncDropped()
		if dropped := s.buffer.Dropped(); dropped == 1 || dropped%1000 == 0 {
			s.logger.WarnContext(ctx, "audit buffer full, oldest record dropped",
				"dropped_total", dropped,
				"capacity", s.buffer.Cap(),
			)
		}
	}
	s.metrics.IncEnqueued(r.kind())
	depth := s.buffer.Len()
	s.metrics.SetQueueDepth(depth)
	if depth >= s.batchSize {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Flush writes everything currently buffered, or stops when ctx ends.
func (s *Sink) Flush(ctx context.Context) error {
	for s.buffer.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.flushBatch()
	}
	return nil
}

// Close stops the drain loop and writes what is left, giving up after 5s.
// Records logged after Close are dropped and counted.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		close(s.stop)
		s.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = s.Flush(ctx); err != nil {
			s.logger.Warn("failed to drain audit buffer on shutdown",
				"error", err,
				"remaining", s.buffer.Len(),
			)
		}
	})
	return err
}

// Stats reports the sink's own health.
func (s *Sink) Stats() models.SinkStats {
	return models.SinkStats{
		Queued:            s.buffer.Len(),
		Written:           s.written.Load(),
		Dropped:           s.buffer.Dropped() + s.droppedClosed.Load(),
		DroppedAfterRetry: s.droppedAfterRetry.Load(),
		Retries:           s.retries.Load(),
	}
}

func (s *Sink) drainLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.drainAvailable()
		case <-s.wake:
			s.drainAvailable()
		}
	}
}

// drainAvailable flushes full batches while they are available, then one
// partial batch, checking for shutdown between batches.
func (s *Sink) drainAvailable() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		n := s.buffer.Len()
		if n == 0 {
			return
		}
		s.flushBatch()
		if n <= s.batchSize {
			return
		}
	}
}

func (s *Sink) flushBatch() {
	batch := s.buffer.DequeueBatch(s.batchSize)
	if len(batch) == 0 {
		return
	}
	start := time.Now()

	var (
		events  []models.SecurityEvent
		entries []models.AuditEntry
	)
	for _, r := range batch {
		if r.event != nil {
			events = append(events, *r.event)
		} else {
			entries = append(entries, *r.entry)
		}
	}

	if len(events) > 0 {
		s.writeWithRetry(kindEvent, len(events), func(ctx context.Context) error {
			return s.store.AppendEvents(ctx, events)
		})
	}
	if len(entries) > 0 {
		s.writeWithRetry(kindEntry, len(entries), func(ctx context.Context) error {
			return s.store.AppendEntries(ctx, entries)
		})
	}

	s.metrics.ObserveFlushDuration(time.Since(start).Seconds())
	s.metrics.SetQueueDepth(s.buffer.Len())
}

func (s *Sink) writeWithRetry(kind string, n int, write func(context.Context) error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.retries.Add(1)
			s.metrics.IncRetries()
			time.Sleep(s.retryBackoff * time.Duration(1<<(attempt-1)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		lastErr = write(ctx)
		cancel()
		if lastErr == nil {
			s.written.Add(int64(n))
			s.metrics.AddWritten(kind, n)
			return
		}
		var rejected *RejectedError
		if errors.As(lastErr, &rejected) {
			s.settleRejected(kind, n, rejected)
			return
		}
	}

	s.droppedAfterRetry.Add(int64(n))
	s.metrics.AddDroppedAfterRetry(kind, n)
	s.logger.Error("audit records dropped after retries",
		"kind", kind,
		"count", n,
		"attempts", s.maxRetries+1,
		"error", lastErr,
	)
}

// settleRejected accounts a batch the store partly accepted. The rejected
// rows failed individually and would fail again, so they are not retried.
func (s *Sink) settleRejected(kind string, n int, rejected *RejectedError) {
	k := min(len(rejected.Rows), n)
	if ok := n - k; ok > 0 {
		s.written.Add(int64(ok))
		s.metrics.AddWritten(kind, ok)
	}
	s.droppedAfterRetry.Add(int64(k))
	s.metrics.AddDroppedAfterRetry(kind, k)
	s.logger.Error("audit records rejected by store",
		"kind", kind,
		"count", k,
		"batch", n,
		"error", rejected.Err,
	)
}
