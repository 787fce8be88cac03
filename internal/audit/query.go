package audit

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/requestcontext"
)

const (
	topN          = 10
	maxViolations = 100
)

// QueryMetrics derives aggregate security metrics for r from the store.
func (s *Sink) QueryMetrics(ctx context.Context, r models.TimeRange) (*models.SecurityMetrics, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	events, entries, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}

	m := &models.SecurityMetrics{
		Range:            r,
		TotalRequests:    len(entries),
		TotalEvents:      len(events),
		BlockedRequests:  countBlocked(events),
		EventsByType:     map[models.EventType]int{},
		EventsBySeverity: map[models.Severity]int{},
		TopOffenders:     topOffenders(events),
		TopEndpoints:     topEndpoints(entries),
		Threats:          threatTrends(events, r),
		ComplianceFlags:  flagCounts(entries),
		Sink:             s.Stats(),
	}
	for _, e := range events {
		m.EventsByType[e.Type]++
		m.EventsBySeverity[e.Severity]++
	}

	times := make([]float64, len(entries))
	var total float64
	for i, e := range entries {
		times[i] = e.ResponseTimeMs
		total += e.ResponseTimeMs
	}
	m.ResponseTimeMs = percentiles(times)
	if len(entries) > 0 {
		m.AvgResponseMs = total / float64(len(entries))
	}
	m.ErrorRate = errorRate(entries)
	return m, nil
}

// GenerateComplianceReport builds a report of kind over r. Framework
// reports (gdpr, pci_dss, soc2) consider only requests carrying their flag;
// the security report covers everything.
func (s *Sink) GenerateComplianceReport(ctx context.Context, kind models.ReportKind, r models.TimeRange) (*models.ComplianceReport, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown report type %q", kind))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	events, entries, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}

	scoped := entries
	if flag := kind.FlagFor(); flag != "" {
		scoped = filterByFlag(entries, flag)
	}

	clients := map[string]struct{}{}
	failed := 0
	for _, e := range scoped {
		clients[e.ClientKey] = struct{}{}
		if !e.Success {
			failed++
		}
	}
	summary := models.ReportSummary{
		TotalRequests:   len(entries),
		FlaggedRequests: len(scoped),
		FailedRequests:  failed,
		TotalEvents:     len(events),
		BlockedRequests: countBlocked(events),
		UniqueClients:   len(clients),
		ErrorRate:       errorRate(scoped),
	}
	for _, e := range events {
		switch e.Severity {
		case models.SeverityCritical:
			summary.CriticalEvents++
		case models.SeverityHigh:
			summary.HighEvents++
		}
	}

	report := &models.ComplianceReport{
		ID:           uuid.NewString(),
		ReportType:   kind,
		Period:       r,
		GeneratedAt:  requestcontext.Now(ctx),
		Summary:      summary,
		FlagCounts:   flagCounts(entries),
		TopEndpoints: topEndpoints(scoped),
		TopOffenders: topOffenders(events),
		Threats:      threatTrends(events, r),
		Violations:   violations(events, kind),
	}
	report.Recommendations = recommendations(kind, report, events)
	return report, nil
}

func (s *Sink) load(ctx context.Context, r models.TimeRange) ([]models.SecurityEvent, []models.AuditEntry, error) {
	events, err := s.store.EventsInRange(ctx, r)
	if err != nil {
		return nil, nil, dErrors.Dependency(err, "failed to load security events")
	}
	entries, err := s.store.EntriesInRange(ctx, r)
	if err != nil {
		return nil, nil, dErrors.Dependency(err, "failed to load audit entries")
	}
	return events, entries, nil
}

// countBlocked counts denied requests. Block bookkeeping events are not
// requests and are skipped.
func countBlocked(events []models.SecurityEvent) int {
	n := 0
	for _, e := range events {
		if e.Blocked && e.Type != models.EventIPBlocked && e.Type != models.EventIPUnblocked {
			n++
		}
	}
	return n
}

func errorRate(entries []models.AuditEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	failed := 0
	for _, e := range entries {
		if !e.Success {
			failed++
		}
	}
	return float64(failed) / float64(len(entries))
}

// percentiles uses the nearest-rank method over a full sort.
func percentiles(samples []float64) models.Percentiles {
	if len(samples) == 0 {
		return models.Percentiles{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return models.Percentiles{
		P50: nearestRank(sorted, 50),
		P95: nearestRank(sorted, 95),
		P99: nearestRank(sorted, 99),
	}
}

func nearestRank(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// threatTrends ranks event types by count and compares the second half of
// r with the first half.
func threatTrends(events []models.SecurityEvent, r models.TimeRange) []models.ThreatTrend {
	mid := r.Midpoint()
	type split struct{ prior, recent int }
	byType := map[models.EventType]*split{}
	for _, e := range events {
		sp, ok := byType[e.Type]
		if !ok {
			sp = &split{}
			byType[e.Type] = sp
		}
		if e.Timestamp.Before(mid) {
			sp.prior++
		} else {
			sp.recent++
		}
	}

	out := make([]models.ThreatTrend, 0, len(byType))
	for t, sp := range byType {
		out = append(out, models.ThreatTrend{Type: t, Count: sp.prior + sp.recent, Trend: trend(sp.prior, sp.recent)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Type < out[j].Type
		}
		return out[i].Count > out[j].Count
	})
	return out
}

func trend(prior, recent int) models.Trend {
	if prior == 0 {
		if recent > 0 {
			return models.TrendIncreasing
		}
		return models.TrendStable
	}
	ratio := float64(recent) / float64(prior)
	switch {
	case ratio > 1.2:
		return models.TrendIncreasing
	case ratio < 0.8:
		return models.TrendDecreasing
	}
	return models.TrendStable
}

func topOffenders(events []models.SecurityEvent) []models.KeyCount {
	counts := map[string]int{}
	for _, e := range events {
		if e.ClientKey == "" || e.Type == models.EventIPUnblocked {
			continue
		}
		counts[e.ClientKey]++
	}
	return top(counts)
}

func topEndpoints(entries []models.AuditEntry) []models.KeyCount {
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Endpoint]++
	}
	return top(counts)
}

func top(counts map[string]int) []models.KeyCount {
	out := make([]models.KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.KeyCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Key < out[j].Key
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func flagCounts(entries []models.AuditEntry) map[string]int {
	counts := map[string]int{}
	for _, e := range entries {
		for _, f := range e.ComplianceFlags {
			counts[f]++
		}
	}
	return counts
}

func filterByFlag(entries []models.AuditEntry, flag string) []models.AuditEntry {
	var out []models.AuditEntry
	for _, e := range entries {
		for _, f := range e.ComplianceFlags {
			if f == flag {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// violations lists the newest medium-or-worse events for the security
// report and high-or-worse events for framework reports.
func violations(events []models.SecurityEvent, kind models.ReportKind) []models.Violation {
	minRank := models.SeverityHigh.Rank()
	if kind == models.ReportSecurity {
		minRank = models.SeverityMedium.Rank()
	}
	out := make([]models.Violation, 0)
	for _, e := range events {
		if e.Severity.Rank() < minRank || e.Type == models.EventIPBlocked || e.Type == models.EventIPUnblocked {
			continue
		}
		out = append(out, models.Violation{
			Timestamp:   e.Timestamp,
			Type:        e.Type,
			Severity:    e.Severity,
			ClientKey:   e.ClientKey,
			Endpoint:    e.Endpoint,
			Description: e.Details.Summary(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > maxViolations {
		out = out[:maxViolations]
	}
	return out
}

func recommendations(kind models.ReportKind, report *models.ComplianceReport, events []models.SecurityEvent) []string {
	var recs []string
	byType := map[models.EventType]int{}
	for _, e := range events {
		byType[e.Type]++
	}
	sum := report.Summary

	if sum.CriticalEvents > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d critical security events and confirm the offending clients are blocked", sum.CriticalEvents))
	}
	if byType[models.EventDDoSDetected] > 0 {
		recs = append(recs, "Review DDoS thresholds and consider upstream network filtering for repeat offenders")
	}
	if sum.TotalRequests > 0 && float64(byType[models.EventRateLimitExceeded])/float64(sum.TotalRequests) > 0.1 {
		recs = append(recs, "More than 10% of requests hit the rate limit; review per-client limits")
	}
	if byType[models.EventDependencyFailure] > 0 {
		recs = append(recs, "Security checks failed open because a dependency was unavailable; check store and cache health")
	}
	if sum.ErrorRate > 0.05 {
		recs = append(recs, fmt.Sprintf("Error rate is %.1f%%; review failing endpoints", sum.ErrorRate*100))
	}

	switch kind {
	case models.ReportGDPR:
		if sum.FlaggedRequests > 0 {
			recs = append(recs, "Confirm a lawful basis is recorded for personal data access and exports")
		}
	case models.ReportPCIDSS:
		if sum.FlaggedRequests > 0 {
			recs = append(recs, "Verify cardholder data is tokenized before it reaches application endpoints")
		}
	case models.ReportSOC2:
		if sum.FlaggedRequests > 0 {
			recs = append(recs, "Review access to administrative and sensitive-data endpoints")
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "No action required for this period")
	}
	return recs
}
